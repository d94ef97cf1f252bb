// Package browsertest provides a scripted browser.Page for tests.
package browsertest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/input"
)

// Page records every interaction as an event string:
//
//	navigate:<url>  click:<selector>  insert:<text>  press:<Mod+Key>
type Page struct {
	mu     sync.Mutex
	events []string
	polls  map[string]int

	// Present decides whether a selector is visible. polls is how many times
	// Has was already called for it. Nil means nothing is ever visible.
	Present func(selector string, polls int) bool

	NavigateErr error
	ClickErr    error
	InsertErr   error
	// FailInsertAt makes the n-th InsertText call (1-based) return InsertErr.
	FailInsertAt int
	Attrs        map[string]string
	inserts      int
}

// Always makes the listed selectors visible from the first poll.
func Always(selectors ...string) func(string, int) bool {
	return func(sel string, _ int) bool {
		for _, s := range selectors {
			if s == sel {
				return true
			}
		}
		return false
	}
}

func (p *Page) record(ev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// Events returns a copy of the recorded events.
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Count returns how many events start with prefix.
func (p *Page) Count(prefix string) int {
	n := 0
	for _, ev := range p.Events() {
		if strings.HasPrefix(ev, prefix) {
			n++
		}
	}
	return n
}

// Inserted returns the texts passed to InsertText, in order.
func (p *Page) Inserted() []string {
	var out []string
	for _, ev := range p.Events() {
		if t, ok := strings.CutPrefix(ev, "insert:"); ok {
			out = append(out, t)
		}
	}
	return out
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	return ctx.Err()
}

func (p *Page) Has(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	if p.polls == nil {
		p.polls = make(map[string]int)
	}
	n := p.polls[selector]
	p.polls[selector] = n + 1
	p.mu.Unlock()

	if p.Present == nil {
		return false, nil
	}
	return p.Present(selector, n), nil
}

func (p *Page) Click(ctx context.Context, selector string, _ time.Duration) error {
	p.record("click:" + selector)
	if p.ClickErr != nil {
		return p.ClickErr
	}
	return ctx.Err()
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	p.mu.Lock()
	p.inserts++
	n := p.inserts
	p.mu.Unlock()

	if p.InsertErr != nil && (p.FailInsertAt == 0 || p.FailInsertAt == n) {
		return p.InsertErr
	}
	p.record("insert:" + text)
	return ctx.Err()
}

func (p *Page) Press(ctx context.Context, keys ...input.Key) error {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = KeyName(k)
	}
	p.record("press:" + strings.Join(names, "+"))
	return ctx.Err()
}

func (p *Page) Attribute(_ context.Context, selector, name string) (string, bool, error) {
	v, ok := p.Attrs[selector+"|"+name]
	return v, ok, nil
}

// KeyName gives readable names to the keys the typist uses.
func KeyName(k input.Key) string {
	switch k {
	case input.ShiftLeft:
		return "Shift"
	case input.ControlLeft:
		return "Ctrl"
	case input.Enter:
		return "Enter"
	case input.Backspace:
		return "Backspace"
	}
	return string(rune(k))
}
