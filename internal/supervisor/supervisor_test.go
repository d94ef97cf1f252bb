package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gasnotifier/internal/config"
	"gasnotifier/internal/delivery"
)

// TestMain doubles as a worker binary for ExecSpawner tests.
func TestMain(m *testing.M) {
	if os.Getenv("SUPERVISOR_TEST_WORKER") == "1" {
		os.Exit(fakeWorkerMain(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fakeWorkerMain(args []string) int {
	var dir string
	for i, a := range args {
		if a == "--job-dir" && i+1 < len(args) {
			dir = args[i+1]
		}
	}
	fmt.Println(`{"level":"info","msg":"worker started"}`)
	if os.Getenv("SUPERVISOR_TEST_EXIT") == "3" {
		fmt.Fprintln(os.Stderr, `{"level":"error","msg":"delivery outcome","error":"no chrome"}`)
		return 3
	}
	if os.Getenv("SUPERVISOR_TEST_HOLD") == "1" {
		deadline := time.Now().Add(10 * time.Second)
		for !FileSignal(dir).Stopped() && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
	}
	out := delivery.Outcome{JobID: filepath.Base(dir), Status: delivery.StatusDelivered, Code: delivery.CodeOK}
	if err := writeJSONAtomic(filepath.Join(dir, OutcomeFile), out); err != nil {
		return 1
	}
	return 0
}

type fakeProcess struct {
	pid  int
	exit chan int
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Wait() (int, error) {
	return <-p.exit, nil
}

type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess
	dirs  []string
	err   error
	// onSpawn runs inside Spawn, e.g. to write a worker log.
	onSpawn func(dir string, p *fakeProcess)
}

func (f *fakeSpawner) Spawn(_ context.Context, dir string) (Process, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakeProcess{pid: 4000 + len(f.procs), exit: make(chan int, 1)}
	f.procs = append(f.procs, p)
	f.dirs = append(f.dirs, dir)
	if f.onSpawn != nil {
		f.onSpawn(dir, p)
	}
	return p, nil
}

func testRequest(t *testing.T, mode delivery.Mode) delivery.Request {
	t.Helper()
	req, err := delivery.NewRequest("+55 11 99999-1234", "Relatorio", mode)
	require.NoError(t, err)
	return req
}

func newTestSupervisor(t *testing.T, sp Spawner, cfg config.SupervisorConfig) (*Supervisor, *Metrics) {
	t.Helper()
	if cfg.JobsDir == "" {
		cfg.JobsDir = t.TempDir()
	}
	metrics := MustNewMetrics(prometheus.NewRegistry())
	return New(cfg, sp, zaptest.NewLogger(t), metrics), metrics
}

func TestLaunchReturnsImmediately(t *testing.T) {
	sp := &fakeSpawner{}
	s, metrics := newTestSupervisor(t, sp, config.SupervisorConfig{})
	s.newID = func() string { return "job-1" }

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeGreeting))
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 4000, job.PID)
	assert.Equal(t, "*********1234", job.Recipient)

	req, err := ReadRequest(job.Dir)
	require.NoError(t, err)
	assert.Equal(t, "5511999991234", req.Recipient)
	assert.Equal(t, delivery.ModeGreeting, req.Mode)

	st, err := s.Status("job-1")
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Nil(t, st.ExitCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.launched.WithLabelValues("greeting")))

	sp.procs[0].exit <- 0
	st, err = s.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, st.Running)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exits.WithLabelValues("delivered")))
}

func TestLaunchSpawnFailure(t *testing.T) {
	sp := &fakeSpawner{err: errors.New("exec format error")}
	s, metrics := newTestSupervisor(t, sp, config.SupervisorConfig{})

	_, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.Error(t, err)
	assert.Empty(t, s.List())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.launchFailures.WithLabelValues("test")))
}

func TestLaunchCountsJobDirFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "jobs")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s, metrics := newTestSupervisor(t, &fakeSpawner{}, config.SupervisorConfig{JobsDir: blocker})

	_, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.ErrorContains(t, err, "create job dir")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.launchFailures.WithLabelValues("test")))
}

func TestLaunchCountsUnresolvableJobsDir(t *testing.T) {
	gone := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.Mkdir(gone, 0o755))
	t.Chdir(gone)
	require.NoError(t, os.Remove(gone))
	if _, err := filepath.Abs("jobs"); err == nil {
		t.Skip("working directory still resolves after removal on this platform")
	}
	s, metrics := newTestSupervisor(t, &fakeSpawner{}, config.SupervisorConfig{JobsDir: "jobs"})

	_, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.ErrorContains(t, err, "resolve jobs dir")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.launchFailures.WithLabelValues("test")))
}

func TestLaunchRejectsInvalidRequest(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, config.SupervisorConfig{})
	_, err := s.Launch(context.Background(), delivery.Request{Recipient: "1", Mode: delivery.ModeTest})
	assert.ErrorIs(t, err, delivery.ErrEmptyBody)
}

func TestCrashProbeReportsEarlyDeath(t *testing.T) {
	sp := &fakeSpawner{onSpawn: func(dir string, p *fakeProcess) {
		log := `{"level":"error","msg":"delivery outcome","error":"chrome not found"}` + "\n"
		_ = os.WriteFile(filepath.Join(dir, LogFile), []byte(log), 0o644)
		p.exit <- 1
	}}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{CrashProbe: "2s"})

	_, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.ErrorIs(t, err, ErrWorkerCrashed)
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestCrashProbeLetsHealthyWorkerThrough(t *testing.T) {
	sp := &fakeSpawner{}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{CrashProbe: "20ms"})

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)
	st, err := s.Status(job.ID)
	require.NoError(t, err)
	assert.True(t, st.Running)
}

func TestRequestStop(t *testing.T) {
	sp := &fakeSpawner{}
	s, metrics := newTestSupervisor(t, sp, config.SupervisorConfig{})

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)
	assert.False(t, FileSignal(job.Dir).Stopped())

	require.NoError(t, s.RequestStop(job.ID))
	assert.True(t, FileSignal(job.Dir).Stopped())
	st, err := s.Status(job.ID)
	require.NoError(t, err)
	assert.True(t, st.StopRequested)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stopRequests))

	assert.ErrorIs(t, s.RequestStop("nope"), ErrUnknownJob)
}

func TestStatusUnknownJob(t *testing.T) {
	s, _ := newTestSupervisor(t, &fakeSpawner{}, config.SupervisorConfig{})
	_, err := s.Status("missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestStatusReadsOutcomeAndLastError(t *testing.T) {
	sp := &fakeSpawner{}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{})

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)

	out := delivery.Outcome{JobID: job.ID, Status: delivery.StatusFailed, Code: "authentication_timeout"}
	require.NoError(t, writeJSONAtomic(filepath.Join(job.Dir, OutcomeFile), out))
	log := `{"level":"info","msg":"delivery state","state":"awaiting_login"}
{"level":"error","msg":"delivery outcome","error":"await_login: timed out"}
`
	require.NoError(t, os.WriteFile(filepath.Join(job.Dir, LogFile), []byte(log), 0o644))
	sp.procs[0].exit <- 1

	st, err := s.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, st.Outcome)
	assert.Equal(t, "authentication_timeout", st.Outcome.Code)
	assert.Equal(t, "delivery outcome: await_login: timed out", st.LastError)
	assert.Equal(t, 1, *st.ExitCode)
}

func TestListNewestFirst(t *testing.T) {
	sp := &fakeSpawner{}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{})
	ids := []string{"a", "b", "c"}
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	n := 0
	s.newID = func() string { return ids[n] }
	s.now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Minute) }

	for range ids {
		_, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
		require.NoError(t, err)
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestWaitHonoursContext(t *testing.T) {
	sp := &fakeSpawner{}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{})
	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	st, err := s.Wait(ctx, job.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, st.Running)
}

func TestExecSpawnerRunsWorker(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	sp := ExecSpawner{Executable: exe, ConfigPath: "cfg.yaml", Env: []string{"SUPERVISOR_TEST_WORKER=1"}}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{})

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := s.Wait(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, st.ExitCode)
	assert.Equal(t, 0, *st.ExitCode)
	require.NotNil(t, st.Outcome)
	assert.True(t, st.Outcome.Delivered())

	log, err := os.ReadFile(filepath.Join(job.Dir, LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(log), "worker started")
}

func TestExecSpawnerNonZeroExit(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	sp := ExecSpawner{Executable: exe, Env: []string{"SUPERVISOR_TEST_WORKER=1", "SUPERVISOR_TEST_EXIT=3"}}
	s, _ := newTestSupervisor(t, sp, config.SupervisorConfig{})

	job, err := s.Launch(context.Background(), testRequest(t, delivery.ModeTest))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := s.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, *st.ExitCode)
	assert.Equal(t, "delivery outcome: no chrome", st.LastError)
}
