package browser

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"gasnotifier/internal/browser/browsertest"
)

func TestTerminalQR(t *testing.T) {
	page := &browsertest.Page{Attrs: map[string]string{"div[data-ref]|data-ref": "2@abcdef,ghijk"}}
	var out bytes.Buffer

	TerminalQR("div[data-ref]", &out, zaptest.NewLogger(t))(context.Background(), page)
	assert.NotZero(t, out.Len())
}

func TestTerminalQRMissingPayload(t *testing.T) {
	var out bytes.Buffer

	TerminalQR("div[data-ref]", &out, zaptest.NewLogger(t))(context.Background(), &browsertest.Page{})
	assert.Zero(t, out.Len())
}
