package delivery

import (
	"os"

	"go.uber.org/zap"

	"gasnotifier/internal/browser"
	"gasnotifier/internal/config"
)

// NewFromConfig wires a sequencer that drives a real browser.
func NewFromConfig(cfg config.Config, logger *zap.Logger, opts ...Option) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	steps := NewBrowserSteps(cfg, logger)
	if cfg.Browser.ShouldPrintQR() {
		steps.OnLoginQR = browser.TerminalQR(steps.QRPayloadSelector(), os.Stderr, logger)
	}
	base := []Option{
		WithLogger(logger),
		WithScript(ScriptFromConfig(cfg.Delivery)),
	}
	return NewSequencer(
		browser.NewDriver(cfg.Browser, logger),
		steps,
		TimingsFromConfig(cfg.Delivery),
		append(base, opts...)...,
	)
}
