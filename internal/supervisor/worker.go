package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"gasnotifier/internal/delivery"
	"gasnotifier/internal/logging"
)

// ErrDeliveryFailed is returned by RunWorker when the outcome is not delivered.
var ErrDeliveryFailed = errors.New("delivery failed")

// Runner executes one delivery. *delivery.Sequencer implements it.
type Runner interface {
	Run(ctx context.Context, jobID string, req delivery.Request, stop delivery.StopSignal) delivery.Outcome
}

// ReadRequest loads and validates <dir>/request.json.
func ReadRequest(dir string) (delivery.Request, error) {
	var req delivery.Request
	data, err := os.ReadFile(filepath.Join(dir, RequestFile))
	if err != nil {
		return req, fmt.Errorf("read request: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// RunWorker is the worker-process side of a job: it runs the request found
// in jobDir and writes outcome.json. A non-delivered outcome is returned as
// an error so the process exits non-zero.
func RunWorker(ctx context.Context, jobDir string, runner Runner, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	jobID := filepath.Base(jobDir)
	logger = logger.With(zap.String(logging.Layer, "worker"), zap.String(logging.JobID, jobID))

	req, err := ReadRequest(jobDir)
	if err != nil {
		now := time.Now()
		out := delivery.Outcome{
			JobID:       jobID,
			Status:      delivery.StatusFailed,
			Code:        delivery.CodeInternal,
			FailedState: delivery.Launching.String(),
			Error:       err.Error(),
			States:      []string{delivery.Launching.String(), delivery.Failed.String()},
			StartedAt:   now,
			FinishedAt:  now,
		}
		if werr := writeJSONAtomic(filepath.Join(jobDir, OutcomeFile), out); werr != nil {
			logger.Error("write outcome failed", zap.Error(werr))
		}
		logger.Error("delivery outcome", zap.String("status", string(out.Status)), zap.String("code", out.Code), zap.Error(err))
		return err
	}

	out := runner.Run(ctx, jobID, req, FileSignal(jobDir))
	if err := writeJSONAtomic(filepath.Join(jobDir, OutcomeFile), out); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	if !out.Delivered() {
		return fmt.Errorf("%w: job %s in %s: %s", ErrDeliveryFailed, jobID, out.FailedState, out.Code)
	}
	return nil
}
