package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gasnotifier/internal/browser"
	"gasnotifier/internal/config"
	"gasnotifier/internal/logging"
	"gasnotifier/internal/mangle"
)

// StopSignal is polled during the final linger.
type StopSignal interface {
	Stopped() bool
}

type neverStop struct{}

func (neverStop) Stopped() bool { return false }

// NeverStop is a StopSignal that never fires.
var NeverStop StopSignal = neverStop{}

// SessionOpener starts a browser session. *browser.Driver implements it.
type SessionOpener interface {
	Open(ctx context.Context) (*browser.Session, error)
}

// Steps are the page-level operations a run is made of.
type Steps interface {
	Navigate(ctx context.Context, page browser.Page, recipient, seed string) error
	AwaitSessionReady(ctx context.Context, page browser.Page) error
	AwaitConversation(ctx context.Context, page browser.Page) error
	TypeAndSend(ctx context.Context, page browser.Page, message string, commitDelay time.Duration) error
}

// BrowserSteps joins an opener and a typist into Steps.
type BrowserSteps struct {
	*browser.ConversationOpener
	*browser.Typist
}

// NewBrowserSteps wires the opener and typist for cfg.
func NewBrowserSteps(cfg config.Config, logger *zap.Logger) BrowserSteps {
	opener := browser.NewConversationOpener(cfg.Browser, cfg.Delivery, logger)
	return BrowserSteps{
		ConversationOpener: opener,
		Typist:             browser.NewTypist(opener.ChatInput(), cfg.Delivery),
	}
}

// Journal stores run facts and answers derived queries. *mangle.Engine
// implements it.
type Journal interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
	Holds(ctx context.Context, predicate string, args ...interface{}) (bool, error)
}

// FactLog exposes the facts asserted into a journal. *mangle.Engine
// implements it.
type FactLog interface {
	Facts() []mangle.Fact
	FactsByPredicate(predicate string) []mangle.Fact
}

// Tracer receives trace events. *recorder.Recorder implements it.
type Tracer interface {
	Log(eventType, jobID string, data interface{})
}

// Timings are the fixed dwells of a run.
type Timings struct {
	CommitDelay         time.Duration
	GreetingCommitDelay time.Duration
	MenuWait            time.Duration
	PreSendWait         time.Duration
	TestLinger          time.Duration
	GreetingLinger      time.Duration
	StopPoll            time.Duration
}

// TimingsFromConfig parses the delivery durations, falling back to defaults.
func TimingsFromConfig(c config.DeliveryConfig) Timings {
	return Timings{
		CommitDelay:         config.Duration(c.CommitDelay, time.Second),
		GreetingCommitDelay: config.Duration(c.GreetingCommitDelay, 2*time.Second),
		MenuWait:            config.Duration(c.MenuWait, 10*time.Second),
		PreSendWait:         config.Duration(c.PreSendWait, 5*time.Second),
		TestLinger:          config.Duration(c.TestLinger, 20*time.Second),
		GreetingLinger:      config.Duration(c.GreetingLinger, 20*time.Second),
		StopPoll:            config.Duration(c.StopPoll, time.Second),
	}
}

// Script holds the texts typed around the payload in greeting mode.
type Script struct {
	MenuOption        string
	MorningGreeting   string
	AfternoonGreeting string
}

// DefaultScript answers the building bot in Portuguese.
func DefaultScript() Script {
	return Script{MenuOption: "1", MorningGreeting: "Bom dia!", AfternoonGreeting: "Boa tarde!"}
}

// ScriptFromConfig overlays configured texts on DefaultScript.
func ScriptFromConfig(c config.DeliveryConfig) Script {
	s := DefaultScript()
	if c.MenuOption != "" {
		s.MenuOption = c.MenuOption
	}
	if c.MorningGreeting != "" {
		s.MorningGreeting = c.MorningGreeting
	}
	if c.AfternoonGreeting != "" {
		s.AfternoonGreeting = c.AfternoonGreeting
	}
	return s
}

// Greeting picks the morning text before noon, the afternoon one otherwise.
func (s Script) Greeting(now time.Time) string {
	if now.Hour() < 12 {
		return s.MorningGreeting
	}
	return s.AfternoonGreeting
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

func WithLogger(l *zap.Logger) Option { return func(s *Sequencer) { s.logger = l } }
func WithJournal(j Journal) Option    { return func(s *Sequencer) { s.journal = j } }
func WithTracer(t Tracer) Option      { return func(s *Sequencer) { s.tracer = t } }
func WithScript(sc Script) Option     { return func(s *Sequencer) { s.script = sc } }

// WithClock replaces time.Now for greeting selection and outcome stamps.
func WithClock(now func() time.Time) Option { return func(s *Sequencer) { s.now = now } }

// Sequencer drives one delivery from browser launch to teardown.
type Sequencer struct {
	opener  SessionOpener
	steps   Steps
	timings Timings
	script  Script

	logger  *zap.Logger
	journal Journal
	tracer  Tracer
	now     func() time.Time
}

// NewSequencer builds a sequencer. Without WithJournal each run gets a fresh
// in-memory journal.
func NewSequencer(opener SessionOpener, steps Steps, timings Timings, opts ...Option) *Sequencer {
	s := &Sequencer{
		opener:  opener,
		steps:   steps,
		timings: timings,
		script:  DefaultScript(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String(logging.Layer, "sequencer"))
	return s
}

// Run executes req and returns its outcome. It never panics on step errors
// and always closes the session it opened.
func (s *Sequencer) Run(ctx context.Context, jobID string, req Request, stop StopSignal) Outcome {
	if stop == nil {
		stop = NeverStop
	}
	r := &run{
		seq:   s,
		ctx:   ctx,
		jobID: jobID,
		req:   req,
		state: Launching,
		out: Outcome{
			JobID:     jobID,
			Mode:      req.Mode,
			Recipient: logging.MaskRecipient(req.Recipient),
			StartedAt: s.now(),
		},
		log: s.logger.With(
			zap.String(logging.JobID, jobID),
			zap.String(logging.Mode, string(req.Mode)),
			zap.String(logging.Recipient, logging.MaskRecipient(req.Recipient)),
		),
	}

	journal := s.journal
	if journal == nil {
		engine, err := mangle.NewEngine(config.MangleConfig{})
		if err != nil {
			r.out.States = []string{Launching.String()}
			return r.finish(fmt.Errorf("delivery journal: %w", err))
		}
		journal = engine
	}
	r.journal = journal

	if err := req.Validate(); err != nil {
		r.out.States = []string{Launching.String()}
		return r.finish(err)
	}

	r.assert(mangle.Fact{Predicate: mangle.PredRequested, Args: []interface{}{jobID, string(req.Mode)}})
	r.record(Launching)

	session, err := s.opener.Open(ctx)
	if err != nil {
		return r.finish(err)
	}
	if err := r.drive(session, stop); err != nil {
		return r.finish(err)
	}
	if err := r.enter(Closed); err != nil {
		return r.finish(err)
	}
	return r.finish(nil)
}

type run struct {
	seq     *Sequencer
	ctx     context.Context
	jobID   string
	req     Request
	journal Journal

	state State
	n     int
	out   Outcome
	log   *zap.Logger
}

// drive runs every step between launch and teardown and closes the session
// on the way out.
func (r *run) drive(session *browser.Session, stop StopSignal) error {
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.log.Warn("session teardown failed", zap.Error(cerr))
		}
		r.trace("teardown", nil)
	}()

	page := session.Page()
	t := r.seq.timings
	ctx := r.ctx

	seed := r.req.Body
	if r.req.Mode == ModeGreeting {
		seed = r.seq.script.Greeting(r.seq.now())
	}

	if err := r.enter(AwaitingLogin); err != nil {
		return err
	}
	if err := r.seq.steps.Navigate(ctx, page, r.req.Recipient, seed); err != nil {
		return err
	}
	if err := r.seq.steps.AwaitSessionReady(ctx, page); err != nil {
		return err
	}

	if err := r.enter(OpeningConversation); err != nil {
		return err
	}
	if err := r.seq.steps.AwaitConversation(ctx, page); err != nil {
		return err
	}

	linger := t.TestLinger
	if r.req.Mode == ModeGreeting {
		linger = t.GreetingLinger
		if err := r.send(page, TypingGreeting, "greeting", seed, t.GreetingCommitDelay); err != nil {
			return err
		}
		if err := r.dwell(AwaitingMenuWindow, t.MenuWait); err != nil {
			return err
		}
		if err := r.send(page, SelectingMenuOption, "menu_option", r.seq.script.MenuOption, t.GreetingCommitDelay); err != nil {
			return err
		}
		if err := r.dwell(AwaitingSendWindow, t.PreSendWait); err != nil {
			return err
		}
		if err := r.send(page, TypingPayload, "payload", r.req.Body, t.GreetingCommitDelay); err != nil {
			return err
		}
	} else {
		if err := r.send(page, TypingPayload, "payload", r.req.Body, t.CommitDelay); err != nil {
			return err
		}
	}

	if err := r.enter(LingerBeforeClose); err != nil {
		return err
	}
	r.linger(linger, stop)
	return nil
}

func (r *run) send(page browser.Page, state State, text, message string, commitDelay time.Duration) error {
	if err := r.enter(state); err != nil {
		return err
	}
	if err := r.seq.steps.TypeAndSend(r.ctx, page, message, commitDelay); err != nil {
		return err
	}
	r.assert(mangle.Fact{Predicate: mangle.PredCommitted, Args: []interface{}{r.jobID, text}})
	r.trace("commit", map[string]interface{}{"text": text})
	r.log.Info("message committed", zap.String("text", text))
	return nil
}

func (r *run) dwell(state State, d time.Duration) error {
	if err := r.enter(state); err != nil {
		return err
	}
	return browser.Sleep(r.ctx, d)
}

// linger keeps the session open for d so the client can flush the last
// message. A stop request or a cancelled context cuts it short.
func (r *run) linger(d time.Duration, stop StopSignal) {
	poll := r.seq.timings.StopPoll
	if poll <= 0 {
		poll = time.Second
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if stop.Stopped() {
			r.stopped("stop signal")
			return
		}
		select {
		case <-deadline.C:
			return
		case <-r.ctx.Done():
			r.stopped("context cancelled")
			return
		case <-ticker.C:
		}
	}
}

func (r *run) stopped(reason string) {
	r.out.Stopped = true
	r.assert(mangle.Fact{Predicate: mangle.PredStopRequested, Args: []interface{}{r.jobID}})
	r.trace("stop", map[string]interface{}{"reason": reason})
	r.log.Info("linger cut short", zap.String("reason", reason))
}

func (r *run) enter(next State) error {
	if !CanTransition(r.state, next) {
		return fmt.Errorf("illegal transition %s -> %s", r.state, next)
	}
	r.state = next
	r.record(next)
	return nil
}

func (r *run) record(state State) {
	r.n++
	r.out.States = append(r.out.States, state.String())
	r.assert(mangle.Fact{Predicate: mangle.PredTransitioned, Args: []interface{}{r.jobID, state.String(), int64(r.n)}})
	r.trace("state", map[string]interface{}{"state": state.String(), "seq": r.n})
	r.log.Info("delivery state", zap.String(logging.State, state.String()))
}

func (r *run) assert(f mangle.Fact) {
	if r.journal == nil {
		return
	}
	f.Timestamp = r.seq.now()
	// The run context may already be cancelled; journal writes are local.
	if err := r.journal.AddFacts(context.WithoutCancel(r.ctx), []mangle.Fact{f}); err != nil {
		r.log.Warn("journal write failed", zap.String("predicate", f.Predicate), zap.Error(err))
	}
}

func (r *run) trace(eventType string, data interface{}) {
	if r.seq.tracer != nil {
		r.seq.tracer.Log(eventType, r.jobID, data)
	}
}

func (r *run) finish(err error) Outcome {
	out := r.out
	out.FinishedAt = r.seq.now()

	if err == nil {
		delivered, qerr := r.journal.Holds(context.WithoutCancel(r.ctx), mangle.PredDelivered, r.jobID)
		switch {
		case qerr != nil:
			err = fmt.Errorf("query journal: %w", qerr)
		case !delivered:
			out.Status = StatusFailed
			out.Code = CodeUnconfirmed
			out.FailedState = r.state.String()
			out.Error = "payload commit not confirmed"
			r.snapshot(&out)
			r.log.Error("delivery outcome", zap.String("status", string(out.Status)), zap.String("code", out.Code))
			return out
		default:
			out.Status = StatusDelivered
			out.Code = CodeOK
			r.snapshot(&out)
			r.log.Info("delivery outcome",
				zap.String("status", string(out.Status)),
				zap.String("code", out.Code),
				zap.Bool("stopped", out.Stopped),
				zap.Duration("elapsed", out.FinishedAt.Sub(out.StartedAt)),
			)
			return out
		}
	}

	failedIn := r.state
	out.Status = StatusFailed
	out.FailedState = failedIn.String()
	out.Error = err.Error()
	out.FailureKind = browser.KindOf(err)
	switch {
	case out.FailureKind != "":
		out.Code = string(out.FailureKind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Code = CodeCancelled
	default:
		out.Code = CodeInternal
	}
	if CanTransition(r.state, Failed) {
		r.state = Failed
		out.States = append(out.States[:len(out.States):len(out.States)], Failed.String())
	}
	r.assert(mangle.Fact{Predicate: mangle.PredFailed, Args: []interface{}{r.jobID, out.Code}})
	r.trace("failure", map[string]interface{}{"state": failedIn.String(), "code": out.Code})
	r.snapshot(&out)
	r.log.Error("delivery outcome",
		zap.String("status", string(out.Status)),
		zap.String("code", out.Code),
		zap.String(logging.State, failedIn.String()),
		zap.Error(err),
	)
	return out
}

// snapshot copies the facts asserted for this job into the outcome.
func (r *run) snapshot(out *Outcome) {
	log, ok := r.journal.(FactLog)
	if !ok {
		return
	}
	for _, f := range log.FactsByPredicate(mangle.PredCommitted) {
		if ownFact(f, r.jobID) && len(f.Args) > 1 {
			out.Commits = append(out.Commits, fmt.Sprint(f.Args[1]))
		}
	}
	for _, f := range log.Facts() {
		if ownFact(f, r.jobID) {
			out.Journal = append(out.Journal, f)
		}
	}
}

func ownFact(f mangle.Fact, jobID string) bool {
	return len(f.Args) > 0 && f.Args[0] == jobID
}
