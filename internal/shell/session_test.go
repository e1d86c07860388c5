package shell

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShell = "/bin/sh"

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testShell); err != nil {
		t.Skipf("%s not available: %v", testShell, err)
	}
}

func startSession(t *testing.T) *Session {
	t.Helper()
	requireShell(t)

	s, err := Start(Options{
		Shell:           testShell,
		WorkDir:         t.TempDir(),
		ShutdownTimeout: time.Second,
		Logger:          logging.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runOn(t *testing.T, s *Session, body string, ch Channel) []string {
	t.Helper()
	end := NewSentinel(EndOfCommand, ch)
	require.NoError(t, s.Send(Frame(body, end)...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lines, err := s.Drain(ctx, end, nil)
	require.NoError(t, err)
	return lines
}

func TestSessionStart(t *testing.T) {
	s := startSession(t)

	assert.Equal(t, StateReady, s.State())
	assert.True(t, s.Alive())
	assert.NotZero(t, s.PID())
	assert.Equal(t, testShell, s.Shell)
	assert.NotEmpty(t, s.ID.String())
}

func TestSessionStartMissingShell(t *testing.T) {
	_, err := Start(Options{Shell: "/nonexistent/shell"})
	assert.Error(t, err)
}

func TestSessionStdoutAndStderr(t *testing.T) {
	s := startSession(t)

	assert.Equal(t, []string{"hi"}, runOn(t, s, "echo hi", Stdout))
	assert.Equal(t, []string{"err"}, runOn(t, s, "echo err 1>&2", Stderr))
}

func TestSessionKeepsShellState(t *testing.T) {
	s := startSession(t)

	runOn(t, s, "FOO=persisted", Stdout)
	assert.Equal(t, []string{"persisted"}, runOn(t, s, "echo $FOO", Stdout))
}

func TestSessionOutputWithoutNewline(t *testing.T) {
	s := startSession(t)

	assert.Equal(t, []string{"a", "b"}, runOn(t, s, "printf 'a\\nb'", Stdout))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := startSession(t)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StateTerminated, s.State())
	assert.False(t, s.Alive())

	select {
	case <-s.Exited():
	default:
		t.Fatal("process not reaped after Close")
	}
}

func TestSessionWriteAfterClose(t *testing.T) {
	s := startSession(t)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Write("echo hi"), ErrSessionClosed)
}

func TestSessionCloseKillsRunningCommand(t *testing.T) {
	s := startSession(t)
	require.NoError(t, s.Write("sleep 30"))

	start := time.Now()
	_ = s.Close()

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateTerminated, s.State())
}

func TestSessionDrainAfterShellExit(t *testing.T) {
	s := startSession(t)

	end := NewSentinel(EndOfCommand, Stdout)
	require.NoError(t, s.Send(Frame("exit 3", end)...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Drain(ctx, end, nil)

	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Eventually(t, func() bool { return s.State() == StateTerminated }, time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "busy", StateBusy.String())
	assert.Equal(t, "terminating", StateTerminating.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", State(99).String())
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list open descriptors: %v", err)
	}
	return len(entries)
}

func TestStartReleasesPipesOnFailure(t *testing.T) {
	requireShell(t)
	errNoPipe := errors.New("too many open files")

	tests := []struct {
		name   string
		failAt int // newPipe call that fails; 0 lets every call succeed
		shell  string
	}{
		{name: "stdout pipe", failAt: 2, shell: testShell},
		{name: "stderr pipe", failAt: 3, shell: testShell},
		{name: "shell does not start", shell: "/nonexistent/shell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			newPipe = func() (*os.File, *os.File, error) {
				calls++
				if calls == tt.failAt {
					return nil, nil, errNoPipe
				}
				return os.Pipe()
			}
			t.Cleanup(func() { newPipe = os.Pipe })

			before := openFDs(t)
			for i := 0; i < 10; i++ {
				calls = 0
				_, err := Start(Options{Shell: tt.shell, Logger: logging.NewNop()})
				require.Error(t, err)
				if tt.failAt > 0 {
					assert.ErrorIs(t, err, errNoPipe)
				}
			}
			assert.LessOrEqual(t, openFDs(t), before)
		})
	}
}
