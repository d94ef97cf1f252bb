package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the slice of the browser tab the delivery steps drive. The rod
// implementation is the only production one; tests script a fake.
type Page interface {
	// Navigate loads url and waits for the document load event. Errors must
	// not quote url: conversation links carry the phone number and the text.
	Navigate(ctx context.Context, url string) error
	// Has reports whether selector currently matches an element. It never waits.
	Has(ctx context.Context, selector string) (bool, error)
	// Click waits up to timeout for selector and clicks it.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// InsertText inserts literal text at the focused element.
	InsertText(ctx context.Context, text string) error
	// Press sends a chord: all keys but the last are held as modifiers.
	Press(ctx context.Context, keys ...input.Key) error
	// Attribute reads an attribute of the first element matching selector.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
}

type rodPage struct {
	page *rod.Page
}

// NewRodPage adapts a rod page to Page.
func NewRodPage(page *rod.Page) Page {
	return &rodPage{page: page}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p *rodPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) InsertText(ctx context.Context, text string) error {
	return p.page.Context(ctx).InsertText(text)
}

func (p *rodPage) Press(ctx context.Context, keys ...input.Key) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return pressChord(p.page.Keyboard, keys...)
}

// keyboard is the part of *rod.Keyboard a chord needs.
type keyboard interface {
	Press(key input.Key) error
	Release(key input.Key) error
	Type(keys ...input.Key) error
}

// pressChord holds every key but the last, types the last one and releases
// the held keys in reverse order, also when a press fails halfway.
func pressChord(kb keyboard, keys ...input.Key) error {
	modifiers, key := keys[:len(keys)-1], keys[len(keys)-1]

	held := make([]input.Key, 0, len(modifiers))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = kb.Release(held[i])
		}
	}

	for _, mod := range modifiers {
		if err := kb.Press(mod); err != nil {
			release()
			return fmt.Errorf("modifier key press failed: %w", err)
		}
		held = append(held, mod)
	}
	err := kb.Type(key)
	release()
	if err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

func (p *rodPage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}
