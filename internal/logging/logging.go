// Package logging builds the zap logger shared by every gasnotifier command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gasnotifier/internal/config"
)

// Field keys used across packages so log lines stay greppable.
const (
	Layer     = "layer"
	Operation = "op"
	JobID     = "job_id"
	State     = "state"
	Recipient = "recipient"
	Mode      = "mode"
	Selector  = "selector"
	Path      = "path"
)

// New builds a JSON production logger. When cfg.LogFile is set output goes
// there instead of stderr, which keeps stdout clean for the MCP stdio transport.
func New(cfg config.ServerConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.LogLevel != "" {
		parsed, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("server.log_level: %w", err)
		}
		level.SetLevel(parsed)
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zc.OutputPaths = []string{cfg.LogFile}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.With(zap.String("service", cfg.Name)), nil
}

// MaskRecipient keeps the last four digits of a phone number.
func MaskRecipient(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
