// Package supervisor runs each delivery in its own worker process and keeps
// a queryable record of the jobs it launched.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
	"gasnotifier/internal/logging"
)

var (
	ErrUnknownJob    = errors.New("unknown job")
	ErrWorkerCrashed = errors.New("worker exited during startup")
)

// Job identifies a launched worker.
type Job struct {
	ID        string        `json:"job_id"`
	Mode      delivery.Mode `json:"mode"`
	Recipient string        `json:"recipient"`
	Dir       string        `json:"dir"`
	PID       int           `json:"pid"`
	StartedAt time.Time     `json:"started_at"`
}

// Status is a point-in-time view of a job.
type Status struct {
	Job
	Running       bool              `json:"running"`
	ExitCode      *int              `json:"exit_code,omitempty"`
	StopRequested bool              `json:"stop_requested"`
	Outcome       *delivery.Outcome `json:"outcome,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
}

type jobEntry struct {
	job      Job
	done     chan struct{}
	exitCode int
	waitErr  error
}

// Supervisor launches workers and tracks them until they exit.
type Supervisor struct {
	cfg     config.SupervisorConfig
	spawner Spawner
	logger  *zap.Logger
	metrics *Metrics

	mu   sync.Mutex
	jobs map[string]*jobEntry

	newID func() string
	now   func() time.Time
}

// New builds a supervisor. metrics may be nil.
func New(cfg config.SupervisorConfig, spawner Spawner, logger *zap.Logger, metrics *Metrics) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		spawner: spawner,
		logger:  logger.With(zap.String(logging.Layer, "supervisor")),
		metrics: metrics,
		jobs:    make(map[string]*jobEntry),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Launch writes the request into a fresh job directory, spawns a worker for
// it and returns without waiting for the delivery.
func (s *Supervisor) Launch(ctx context.Context, req delivery.Request) (Job, error) {
	mode := string(req.Mode)
	fail := func(err error) (Job, error) {
		s.metrics.incLaunchFailure(mode)
		return Job{}, err
	}
	if err := req.Validate(); err != nil {
		return fail(fmt.Errorf("invalid request: %w", err))
	}

	id := s.newID()
	root, err := filepath.Abs(s.cfg.JobsDir)
	if err != nil {
		return fail(fmt.Errorf("resolve jobs dir: %w", err))
	}
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("create job dir: %w", err))
	}
	if err := writeJSONAtomic(filepath.Join(dir, RequestFile), req); err != nil {
		return fail(fmt.Errorf("write request: %w", err))
	}

	proc, err := s.spawner.Spawn(ctx, dir)
	if err != nil {
		s.logger.Error("spawn worker failed", zap.String(logging.JobID, id), zap.Error(err))
		return fail(fmt.Errorf("spawn worker: %w", err))
	}

	entry := &jobEntry{
		job: Job{
			ID:        id,
			Mode:      req.Mode,
			Recipient: logging.MaskRecipient(req.Recipient),
			Dir:       dir,
			PID:       proc.Pid(),
			StartedAt: s.now(),
		},
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[id] = entry
	s.mu.Unlock()
	s.metrics.incLaunched(mode)

	go s.reap(entry, proc)

	s.logger.Info("worker launched",
		zap.String(logging.JobID, id),
		zap.String(logging.Mode, mode),
		zap.String(logging.Recipient, entry.job.Recipient),
		zap.Int("pid", entry.job.PID),
	)

	if probe := s.cfg.GetCrashProbe(); probe > 0 {
		if err := s.probe(ctx, entry, probe); err != nil {
			s.metrics.incLaunchFailure(mode)
			return entry.job, err
		}
	}
	return entry.job, nil
}

// probe reports a worker that exits non-zero within the probe window.
func (s *Supervisor) probe(ctx context.Context, entry *jobEntry, window time.Duration) error {
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-entry.done:
		if entry.exitCode != 0 || entry.waitErr != nil {
			detail := LastError(filepath.Join(entry.job.Dir, LogFile))
			return fmt.Errorf("%w: job %s exit code %d: %s", ErrWorkerCrashed, entry.job.ID, entry.exitCode, detail)
		}
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}

func (s *Supervisor) reap(entry *jobEntry, proc Process) {
	code, err := proc.Wait()
	entry.exitCode = code
	entry.waitErr = err

	result := "delivered"
	if err != nil || code != 0 {
		result = "failed"
	}
	s.metrics.observeExit(result)
	s.logger.Info("worker exited",
		zap.String(logging.JobID, entry.job.ID),
		zap.Int("exit_code", code),
		zap.Error(err),
	)
	close(entry.done)
}

// RequestStop asks the job's worker to cut its final linger short.
func (s *Supervisor) RequestStop(id string) error {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if err := FileSignal(entry.job.Dir).Raise(); err != nil {
		return fmt.Errorf("write stop signal: %w", err)
	}
	s.metrics.incStop()
	s.logger.Info("stop requested", zap.String(logging.JobID, id))
	return nil
}

// Status returns the current view of a job launched by this supervisor.
func (s *Supervisor) Status(id string) (Status, error) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return s.status(entry), nil
}

// List returns every job launched by this supervisor, newest first.
func (s *Supervisor) List() []Status {
	s.mu.Lock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].job.StartedAt.After(entries[j].job.StartedAt)
	})
	out := make([]Status, len(entries))
	for i, e := range entries {
		out[i] = s.status(e)
	}
	return out
}

// Wait blocks until the job's worker exits or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id string) (Status, error) {
	s.mu.Lock()
	entry, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	select {
	case <-entry.done:
		return s.status(entry), nil
	case <-ctx.Done():
		return s.status(entry), ctx.Err()
	}
}

func (s *Supervisor) status(entry *jobEntry) Status {
	st := Status{
		Job:           entry.job,
		Running:       true,
		StopRequested: FileSignal(entry.job.Dir).Stopped(),
	}
	select {
	case <-entry.done:
		st.Running = false
		code := entry.exitCode
		st.ExitCode = &code
	default:
	}

	if out, err := ReadOutcome(entry.job.Dir); err == nil {
		st.Outcome = &out
	}
	if !st.Running && (st.Outcome == nil || !st.Outcome.Delivered()) {
		st.LastError = LastError(filepath.Join(entry.job.Dir, LogFile))
	}
	return st
}

// ReadOutcome loads <dir>/outcome.json.
func ReadOutcome(dir string) (delivery.Outcome, error) {
	var out delivery.Outcome
	data, err := os.ReadFile(filepath.Join(dir, OutcomeFile))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode outcome: %w", err)
	}
	return out, nil
}

// writeJSONAtomic writes v next to path and renames it into place so readers
// never see a partial file.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
