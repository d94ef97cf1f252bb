package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gasnotifier/internal/delivery"
)

type fakeRunner struct {
	status  delivery.Status
	gotReq  delivery.Request
	stopped bool
}

func (f *fakeRunner) Run(_ context.Context, jobID string, req delivery.Request, stop delivery.StopSignal) delivery.Outcome {
	f.gotReq = req
	f.stopped = stop.Stopped()
	out := delivery.Outcome{JobID: jobID, Mode: req.Mode, Status: f.status, Code: delivery.CodeOK}
	if f.status == delivery.StatusFailed {
		out.Code = "typing_failure"
		out.FailedState = "typing_payload"
	}
	return out
}

func writeJob(t *testing.T, req delivery.Request) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "job-42")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, writeJSONAtomic(filepath.Join(dir, RequestFile), req))
	return dir
}

func TestRunWorkerDelivered(t *testing.T) {
	dir := writeJob(t, testRequest(t, delivery.ModeGreeting))
	require.NoError(t, FileSignal(dir).Raise())
	runner := &fakeRunner{status: delivery.StatusDelivered}

	require.NoError(t, RunWorker(context.Background(), dir, runner, zaptest.NewLogger(t)))

	assert.Equal(t, "Relatorio", runner.gotReq.Body)
	assert.True(t, runner.stopped)
	out, err := ReadOutcome(dir)
	require.NoError(t, err)
	assert.Equal(t, "job-42", out.JobID)
	assert.True(t, out.Delivered())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".outcome.json.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRunWorkerFailedOutcome(t *testing.T) {
	dir := writeJob(t, testRequest(t, delivery.ModeTest))

	err := RunWorker(context.Background(), dir, &fakeRunner{status: delivery.StatusFailed}, zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "typing_payload")

	out, err := ReadOutcome(dir)
	require.NoError(t, err)
	assert.Equal(t, "typing_failure", out.Code)
}

func TestRunWorkerBadRequest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "job-bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, RequestFile), []byte(`{"recipient":"","body":"x","mode":"test"}`), 0o644))

	err := RunWorker(context.Background(), dir, &fakeRunner{}, zaptest.NewLogger(t))
	require.ErrorIs(t, err, delivery.ErrEmptyRecipient)

	out, err := ReadOutcome(dir)
	require.NoError(t, err)
	assert.Equal(t, delivery.CodeInternal, out.Code)
	assert.False(t, out.Delivered())
}
