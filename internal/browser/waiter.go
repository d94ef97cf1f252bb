package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Marker is a named DOM condition the waiter can poll for.
type Marker struct {
	Name     string
	Selector string
}

const defaultPollInterval = 500 * time.Millisecond

// Waiter polls a page until one of several markers is present.
type Waiter struct {
	Interval time.Duration
}

// WaitForOneOf returns the first marker found, checking in the given order on
// every poll. A timeout yields ErrTimedOut; cancellation of ctx yields ctx.Err().
func (w Waiter) WaitForOneOf(ctx context.Context, page Page, timeout time.Duration, markers ...Marker) (Marker, error) {
	if len(markers) == 0 {
		return Marker{}, fmt.Errorf("no markers to wait for")
	}
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, m := range markers {
			// Lookup errors are expected while a navigation swaps documents;
			// the next poll retries.
			if ok, err := page.Has(waitCtx, m.Selector); err == nil && ok {
				return m, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return Marker{}, err
			}
			return Marker{}, fmt.Errorf("%w: %s after %s", ErrTimedOut, names(markers), timeout)
		case <-ticker.C:
		}
	}
}

func names(markers []Marker) string {
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = m.Name
	}
	return strings.Join(out, "|")
}
