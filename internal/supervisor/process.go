package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Process is a spawned worker.
type Process interface {
	Pid() int
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
}

// Spawner starts a worker for the job directory.
type Spawner interface {
	Spawn(ctx context.Context, jobDir string) (Process, error)
}

// ExecSpawner re-executes a binary with `worker --job-dir <dir>`.
type ExecSpawner struct {
	// Executable defaults to the running binary.
	Executable string
	// ConfigPath is forwarded as --config when set.
	ConfigPath string
	// Args are appended after the worker flags.
	Args []string
	Env  []string
}

// Spawn starts the worker detached from ctx; ctx only guards the setup. On
// unix the worker leads its own process group. Stdout and stderr go to
// <jobDir>/worker.log.
func (s ExecSpawner) Spawn(ctx context.Context, jobDir string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exe := s.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}

	args := []string{"worker", "--job-dir", jobDir}
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}
	args = append(args, s.Args...)

	logFile, err := os.OpenFile(filepath.Join(jobDir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}
	// The child holds its own descriptor after Start.
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = workerProcAttr()
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
