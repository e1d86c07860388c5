//go:build unix

package shell

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

var (
	sigTerminate = syscall.SIGTERM
	sigKill      = syscall.SIGKILL
)

// signalShell delivers sig to the shell process. The shell shares dwim's
// process group so commands can use the controlling terminal; terminal
// Ctrl-C reaches them directly.
func signalShell(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	err := syscall.Kill(p.Pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("signal %s to pid %d: %w", sig, p.Pid, err)
}
