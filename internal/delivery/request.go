package delivery

import (
	"errors"
	"fmt"
	"strings"

	"gasnotifier/internal/browser"
	"gasnotifier/internal/textnorm"
)

// Mode selects the delivery script.
type Mode string

const (
	// ModeTest opens the conversation seeded with the body and sends it.
	ModeTest Mode = "test"
	// ModeGreeting greets, answers the menu prompt and then sends the body.
	ModeGreeting Mode = "greeting"
)

// ParseMode accepts "test" or "greeting", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTest:
		return ModeTest, nil
	case ModeGreeting:
		return ModeGreeting, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

var (
	ErrEmptyRecipient = errors.New("recipient has no digits")
	ErrEmptyBody      = errors.New("message body is empty")
	ErrUnknownMode    = errors.New("unknown delivery mode")
)

// Request is one message to one recipient.
type Request struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
	Mode      Mode   `json:"mode"`
}

// NewRequest normalizes the recipient to digits and the body to ASCII and
// rejects requests left empty by either step.
func NewRequest(recipient, body string, mode Mode) (Request, error) {
	req := Request{
		Recipient: browser.Digits(recipient),
		Body:      textnorm.ASCII(body),
		Mode:      mode,
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate reports whether r could have come out of NewRequest. Workers use
// it on requests read back from disk.
func (r Request) Validate() error {
	if r.Recipient == "" || r.Recipient != browser.Digits(r.Recipient) {
		return ErrEmptyRecipient
	}
	if strings.TrimSpace(r.Body) == "" {
		return ErrEmptyBody
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	return nil
}
