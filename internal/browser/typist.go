package browser

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"

	"gasnotifier/internal/config"
)

// Typist enters multi-line text into the composer without sending each line.
type Typist struct {
	input          Marker
	focusTimeout   time.Duration
	focusSettle    time.Duration
	interLineDelay time.Duration
}

// NewTypist builds a typist for the given composer marker.
func NewTypist(chatInput Marker, dcfg config.DeliveryConfig) *Typist {
	return &Typist{
		input:          chatInput,
		focusTimeout:   config.Duration(dcfg.FocusTimeout, 10*time.Second),
		focusSettle:    config.Duration(dcfg.FocusSettle, 500*time.Millisecond),
		interLineDelay: config.Duration(dcfg.InterLineDelay, 200*time.Millisecond),
	}
}

// TypeAndSend focuses the composer, replaces its content with message and
// presses Enter once. Lines are joined with Shift+Enter soft breaks; blank
// lines become empty soft-broken lines.
func (t *Typist) TypeAndSend(ctx context.Context, page Page, message string, commitDelay time.Duration) error {
	if err := t.typeAndSend(ctx, page, message, commitDelay); err != nil {
		return stepErr(TypingFailure, StepType, err)
	}
	return nil
}

func (t *Typist) typeAndSend(ctx context.Context, page Page, message string, commitDelay time.Duration) error {
	if err := page.Click(ctx, t.input.Selector, t.focusTimeout); err != nil {
		return err
	}
	if err := Sleep(ctx, t.focusSettle); err != nil {
		return err
	}

	// The conversation URL pre-seeds the composer; clear it first.
	if err := page.Press(ctx, input.ControlLeft, input.Key('a')); err != nil {
		return err
	}
	if err := page.Press(ctx, input.Backspace); err != nil {
		return err
	}

	lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			if err := page.InsertText(ctx, line); err != nil {
				return err
			}
		}
		if i < len(lines)-1 {
			if err := page.Press(ctx, input.ShiftLeft, input.Enter); err != nil {
				return err
			}
			if err := Sleep(ctx, t.interLineDelay); err != nil {
				return err
			}
		}
	}

	if err := Sleep(ctx, commitDelay); err != nil {
		return err
	}
	return page.Press(ctx, input.Enter)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
