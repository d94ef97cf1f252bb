package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gasnotifier/internal/config"
)

// Step names reported in StepError.
const (
	StepLaunch           = "launch"
	StepAwaitLogin       = "await_login"
	StepOpenConversation = "open_conversation"
	StepType             = "type"
)

// ConversationOpener loads the messaging client, gets past the login screen
// and opens a pre-seeded conversation with a recipient.
type ConversationOpener struct {
	baseURL   string
	qr        Marker
	chatInput Marker
	qrPayload string

	loadTimeout         time.Duration
	loginTimeout        time.Duration
	conversationTimeout time.Duration

	waiter Waiter
	logger *zap.Logger

	// OnLoginQR runs once per readiness check when the login QR is shown.
	OnLoginQR func(ctx context.Context, page Page)
}

// NewConversationOpener builds an opener from config.
func NewConversationOpener(bcfg config.BrowserConfig, dcfg config.DeliveryConfig, logger *zap.Logger) *ConversationOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationOpener{
		baseURL:             strings.TrimRight(bcfg.BaseURL, "/"),
		qr:                  Marker{Name: "login_qr", Selector: bcfg.Selectors.LoginQR},
		chatInput:           Marker{Name: "chat_input", Selector: bcfg.Selectors.ChatInput},
		qrPayload:           bcfg.Selectors.QRPayload,
		loadTimeout:         config.Duration(dcfg.LoadTimeout, 60*time.Second),
		loginTimeout:        config.Duration(dcfg.LoginTimeout, 120*time.Second),
		conversationTimeout: config.Duration(dcfg.ConversationTimeout, 30*time.Second),
		waiter:              Waiter{Interval: config.Duration(dcfg.PollInterval, defaultPollInterval)},
		logger:              logger.With(zap.String("layer", "opener")),
	}
}

// ChatInput is the marker for the message composer.
func (o *ConversationOpener) ChatInput() Marker { return o.chatInput }

// QRPayloadSelector locates the element carrying the login QR payload.
func (o *ConversationOpener) QRPayloadSelector() string { return o.qrPayload }

// BuildConversationURL returns <base>/send?phone=<digits>&text=<seed> with
// spaces and newlines percent-encoded.
func BuildConversationURL(base, recipient, seed string) string {
	phone := Digits(recipient)
	text := strings.ReplaceAll(url.QueryEscape(seed), "+", "%20")
	return strings.TrimRight(base, "/") + "/send?phone=" + phone + "&text=" + text
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Navigate loads the conversation with recipient, seeding the composer with
// seed. It does not wait for the client to become interactive.
func (o *ConversationOpener) Navigate(ctx context.Context, page Page, recipient, seed string) error {
	target := BuildConversationURL(o.baseURL, recipient, seed)

	loadCtx, cancel := context.WithTimeout(ctx, o.loadTimeout)
	defer cancel()
	if err := page.Navigate(loadCtx, target); err != nil {
		return stepErr(ConversationLoadTimeout, StepOpenConversation, &redactedError{err: err, secret: target})
	}
	return nil
}

// AwaitSessionReady waits for either the chat input or the login QR. When the
// QR shows up the wait is extended to the login timeout, watching only for
// the chat input. A page that shows neither is a ConversationLoadTimeout; an
// unscanned QR is an AuthenticationTimeout.
func (o *ConversationOpener) AwaitSessionReady(ctx context.Context, page Page) error {
	return o.awaitReady(ctx, page, StepAwaitLogin)
}

func (o *ConversationOpener) awaitReady(ctx context.Context, page Page, step string) error {
	found, err := o.waiter.WaitForOneOf(ctx, page, o.loadTimeout, o.chatInput, o.qr)
	if err != nil {
		return stepErr(ConversationLoadTimeout, step, err)
	}
	if found == o.chatInput {
		o.logger.Debug("session already authenticated")
		return nil
	}

	o.logger.Info("login QR shown, waiting for the operator to scan it", zap.Duration("timeout", o.loginTimeout))
	if o.OnLoginQR != nil {
		o.OnLoginQR(ctx, page)
	}
	if _, err := o.waiter.WaitForOneOf(ctx, page, o.loginTimeout, o.chatInput); err != nil {
		return stepErr(AuthenticationTimeout, step, err)
	}
	o.logger.Info("login completed")
	return nil
}

// AwaitConversation waits for the composer of the opened conversation.
func (o *ConversationOpener) AwaitConversation(ctx context.Context, page Page) error {
	if _, err := o.waiter.WaitForOneOf(ctx, page, o.conversationTimeout, o.chatInput); err != nil {
		return stepErr(ConversationLoadTimeout, StepOpenConversation, err)
	}
	return nil
}

// Open navigates to the conversation and waits until its composer is usable.
func (o *ConversationOpener) Open(ctx context.Context, page Page, recipient, seed string) error {
	if err := o.Navigate(ctx, page, recipient, seed); err != nil {
		return err
	}
	if err := o.awaitReady(ctx, page, StepOpenConversation); err != nil {
		return err
	}
	return o.AwaitConversation(ctx, page)
}

// redactedError hides the conversation URL from an error message while
// keeping the wrapped chain.
type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "<conversation url>")
}

func (e *redactedError) Unwrap() error { return e.err }
