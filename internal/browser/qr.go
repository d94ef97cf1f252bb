package browser

import (
	"context"
	"io"

	"github.com/mdp/qrterminal/v3"
	"go.uber.org/zap"
)

// TerminalQR returns an OnLoginQR hook that renders the login QR payload to w
// so the operator can scan it from a terminal (useful when headless).
func TerminalQR(selector string, w io.Writer, logger *zap.Logger) func(context.Context, Page) {
	return func(ctx context.Context, page Page) {
		code, ok, err := page.Attribute(ctx, selector, "data-ref")
		if err != nil || !ok || code == "" {
			logger.Warn("login QR payload not readable", zap.String("selector", selector), zap.Error(err))
			return
		}
		qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
	}
}
