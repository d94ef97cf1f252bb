package supervisor

import (
	"os"
	"path/filepath"
)

// Files inside a job directory.
const (
	RequestFile = "request.json"
	StopFile    = "stop"
	OutcomeFile = "outcome.json"
	LogFile     = "worker.log"
)

// FileSignal is the cross-process stop signal of one job: the job is asked
// to stop once <dir>/stop exists. Only the supervisor writes it.
type FileSignal string

// Stopped reports whether the stop file exists.
func (f FileSignal) Stopped() bool {
	_, err := os.Stat(filepath.Join(string(f), StopFile))
	return err == nil
}

// Raise creates the stop file.
func (f FileSignal) Raise() error {
	return os.WriteFile(filepath.Join(string(f), StopFile), nil, 0o644)
}
