package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"github.com/robertmeta/dwim/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShell = "/bin/sh"

// syncBuffer is a bytes.Buffer safe for the concurrent echo writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newManager(t *testing.T, dir string) *shell.Manager {
	t.Helper()
	if _, err := os.Stat(testShell); err != nil {
		t.Skipf("%s not available: %v", testShell, err)
	}

	m := shell.NewManager(shell.Options{
		Shell:           testShell,
		WorkDir:         dir,
		ShutdownTimeout: time.Second,
	}, nil)
	require.NoError(t, m.Start())
	t.Cleanup(m.Terminate)
	return m
}

func realDir(t *testing.T, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	return resolved
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestExecuteStdout(t *testing.T) {
	e := New(newManager(t, t.TempDir()), Options{})

	res, err := e.Execute(withTimeout(t), "echo hi")

	require.NoError(t, err)
	assert.Equal(t, "echo hi", res.Command)
	assert.Equal(t, "hi", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.False(t, res.HasStderr)
}

func TestExecuteStderr(t *testing.T) {
	e := New(newManager(t, t.TempDir()), Options{})

	res, err := e.Execute(withTimeout(t), "echo err 1>&2")

	require.NoError(t, err)
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "err", res.Stderr)
	assert.True(t, res.HasStderr)
}

func TestExecuteChannelsStaySeparate(t *testing.T) {
	var stdout, stderr syncBuffer
	e := New(newManager(t, t.TempDir()), Options{Stdout: &stdout, Stderr: &stderr})

	res, err := e.Execute(withTimeout(t), "echo one; echo bad 1>&2; echo two")

	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", res.Stdout)
	assert.Equal(t, "bad", res.Stderr)
	assert.Equal(t, "one\ntwo\n", stdout.String())
	assert.Equal(t, "bad\n", stderr.String())
}

func TestExecuteHeavyStderrDoesNotStall(t *testing.T) {
	e := New(newManager(t, t.TempDir()), Options{})

	// Well past a pipe buffer on stderr before stdout's sentinel.
	res, err := e.Execute(withTimeout(t),
		"i=0; while [ $i -lt 5000 ]; do echo 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx' 1>&2; i=$((i+1)); done; echo done")

	require.NoError(t, err)
	assert.Equal(t, "done", res.Stdout)
	assert.True(t, res.HasStderr)
}

func TestQueryDirectory(t *testing.T) {
	dir := t.TempDir()
	e := New(newManager(t, dir), Options{})
	ctx := withTimeout(t)

	got, err := e.QueryDirectory(ctx)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, realDir(t, dir), realDir(t, got))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	_, err = e.Execute(ctx, "cd sub")
	require.NoError(t, err)

	got, err = e.QueryDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, realDir(t, filepath.Join(dir, "sub")), realDir(t, got))
}

func TestInterruptDiscardsPartialState(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	e := New(m, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := e.Execute(ctx, "cd / && echo moved && sleep 30")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)

	require.NoError(t, m.Restart("interrupt"))

	got, err := e.QueryDirectory(withTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, realDir(t, dir), realDir(t, got))
}

func TestExecuteRestartsAfterShellExit(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	m := newManager(t, t.TempDir())
	e := New(m, Options{Metrics: metrics})
	ctx := withTimeout(t)

	_, err := e.Execute(ctx, "exit 1")
	assert.ErrorIs(t, err, shell.ErrStreamClosed)
	assert.Equal(t, 1, m.Info().Restarts)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("execute", "session_lost")))

	res, err := e.Execute(ctx, "echo back")
	require.NoError(t, err)
	assert.Equal(t, "back", res.Stdout)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("execute", "success")))
}

// flakySessions reports a dead session for the first failures exchanges.
type flakySessions struct {
	*shell.Manager
	failures int
	restarts []string
}

func (f *flakySessions) Exchange(ctx context.Context, fn func(*shell.Session) error) error {
	if f.failures > 0 {
		f.failures--
		return shell.ErrSessionClosed
	}
	return f.Manager.Exchange(ctx, fn)
}

func (f *flakySessions) Restart(reason string) error {
	f.restarts = append(f.restarts, reason)
	return f.Manager.Restart(reason)
}

func TestExecuteRetriesOnceOnClosedSession(t *testing.T) {
	sessions := &flakySessions{Manager: newManager(t, t.TempDir()), failures: 1}
	e := New(sessions, Options{})

	res, err := e.Execute(withTimeout(t), "echo retried")

	require.NoError(t, err)
	assert.Equal(t, "retried", res.Stdout)
	assert.Equal(t, []string{"session_closed"}, sessions.restarts)
}

func TestExecuteGivesUpAfterOneRetry(t *testing.T) {
	sessions := &flakySessions{Manager: newManager(t, t.TempDir()), failures: 2}
	e := New(sessions, Options{})

	_, err := e.Execute(withTimeout(t), "echo never")

	assert.ErrorIs(t, err, shell.ErrSessionClosed)
	assert.Equal(t, []string{"session_closed", "session_lost"}, sessions.restarts)
}

func TestQueryStatusOutsideRepository(t *testing.T) {
	e := New(newManager(t, t.TempDir()), Options{})

	assert.Equal(t, StatusClean, e.QueryStatus(withTimeout(t)))
}

func TestQueryStatusInRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	e := New(newManager(t, t.TempDir()), Options{})
	ctx := withTimeout(t)

	_, err := e.Execute(ctx, "git init -q . && echo a > staged.txt && git add staged.txt && echo b > untracked.txt")
	require.NoError(t, err)

	assert.Equal(t, StatusBoth, e.QueryStatus(ctx))
}

func TestQueryStatusCancelled(t *testing.T) {
	e := New(newManager(t, t.TempDir()), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, StatusUnknown, e.QueryStatus(ctx))
}
