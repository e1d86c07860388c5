package executor

import (
	"errors"
	"time"
)

// ErrCancelled reports that a request was abandoned because its context
// was cancelled. Partial output is discarded.
var ErrCancelled = errors.New("request cancelled")

// Kind identifies a request type
type Kind string

const (
	KindExecute   Kind = "execute"
	KindDirectory Kind = "directory"
	KindStatus    Kind = "status"
)

// Result is the captured output of one executed command
type Result struct {
	Command   string
	Stdout    string
	Stderr    string
	HasStderr bool
	Duration  time.Duration
}

// Output returns stdout and stderr joined, for use as context in the
// next translation.
func (r *Result) Output() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}
