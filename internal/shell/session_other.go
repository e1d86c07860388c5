//go:build !unix

package shell

import (
	"errors"
	"fmt"
	"os"
)

var (
	sigTerminate = os.Kill
	sigKill      = os.Kill
)

func signalShell(p *os.Process, sig os.Signal) error {
	if p == nil {
		return nil
	}
	err := p.Signal(sig)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return fmt.Errorf("signal %s to pid %d: %w", sig, p.Pid, err)
}
