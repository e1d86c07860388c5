package shell

import "errors"

var (
	// ErrSessionClosed is returned when writing to a shell whose process has
	// exited or whose input pipe is closed.
	ErrSessionClosed = errors.New("shell session closed")

	// ErrStreamClosed is returned by Drain when the output pipe ends before
	// the expected marker arrives.
	ErrStreamClosed = errors.New("stream closed before sentinel")

	// ErrNoSession is returned when the slot holds no running shell.
	ErrNoSession = errors.New("no shell session")
)
