package delivery

import (
	"time"

	"gasnotifier/internal/browser"
	"gasnotifier/internal/mangle"
)

// Status is the final verdict of a run.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Codes that are not a browser.FailureKind.
const (
	CodeOK          = "ok"
	CodeCancelled   = "cancelled"
	CodeInternal    = "internal_error"
	CodeUnconfirmed = "unconfirmed"
)

// Outcome is the structured record of one run. The recipient is masked.
type Outcome struct {
	JobID       string              `json:"job_id"`
	Mode        Mode                `json:"mode"`
	Recipient   string              `json:"recipient"`
	Status      Status              `json:"status"`
	Code        string              `json:"code"`
	FailedState string              `json:"failed_state,omitempty"`
	FailureKind browser.FailureKind `json:"failure_kind,omitempty"`
	Error       string              `json:"error,omitempty"`
	States      []string            `json:"states"`
	Stopped     bool                `json:"stopped,omitempty"`
	// Commits lists the texts whose send keystroke was issued, in order.
	Commits []string `json:"commits,omitempty"`
	// Journal holds the facts asserted for the job.
	Journal    []mangle.Fact `json:"journal,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Delivered reports whether the payload was committed and the session closed.
func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}
