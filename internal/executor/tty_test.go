//go:build linux || darwin

package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttyHelperEnv = "DWIM_TTY_HELPER"

// TestCommandReadsControllingTerminal runs the test binary again inside a
// pseudo-terminal. The inner run starts a real shell and executes a command
// that reads /dev/tty, the way sudo or ssh prompt for a password; the outer
// run types the answer.
func TestCommandReadsControllingTerminal(t *testing.T) {
	if os.Getenv(ttyHelperEnv) == "1" {
		readFromTerminal(t)
		return
	}
	if _, err := os.Stat(testShell); err != nil {
		t.Skipf("%s not available: %v", testShell, err)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestCommandReadsControllingTerminal$", "-test.count=1")
	cmd.Env = append(os.Environ(), ttyHelperEnv+"=1")
	term, err := pty.Start(cmd)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer term.Close()

	out := &syncBuffer{}
	copied := make(chan struct{})
	go func() {
		_, _ = io.Copy(out, term)
		close(copied)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ready")
	}, 10*time.Second, 20*time.Millisecond, "helper never started: %s", out.String())

	_, err = term.Write([]byte("z\n"))
	require.NoError(t, err)

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()
	select {
	case err := <-waited:
		assert.NoError(t, err, out.String())
	case <-time.After(15 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatalf("helper hung: %s", out.String())
	}

	term.Close()
	<-copied
	assert.Contains(t, out.String(), "read=z after")
}

func readFromTerminal(t *testing.T) {
	m := newManager(t, t.TempDir())
	e := New(m, Options{})

	fmt.Println("ready")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := e.Execute(ctx, "head -c1 < /dev/tty; echo ' after'")
	require.NoError(t, err)

	fmt.Printf("read=%s\n", strings.TrimSpace(res.Stdout))
}
