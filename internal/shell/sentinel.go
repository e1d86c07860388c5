package shell

import (
	"fmt"
	"strings"

	"github.com/robertmeta/dwim/internal/shared/id"
)

// Marker literals, one per purpose. They are grep-able in logs; the nonce
// appended by NewSentinel makes each request's marker unique.
const (
	EndOfCommand   = "__END_OF_COMMAND__"
	EndOfStderr    = "__END_OF_STDERR__"
	EndOfDirectory = "__END_OF_DIRECTORY__"
	EndOfGitStatus = "__END_OF_GIT_STATUS__"
)

// Channel selects one of the shell's output pipes
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

// String returns the string representation of the channel
func (c Channel) String() string {
	switch c {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Sentinel is the end-of-response marker for one request on one channel
type Sentinel struct {
	Token   string
	Channel Channel
}

// NewSentinel returns a marker for literal on ch with a fresh nonce.
func NewSentinel(literal string, ch Channel) Sentinel {
	return Sentinel{
		Token:   literal + id.NewNonce(),
		Channel: ch,
	}
}

// Statement returns the shell statement that prints the marker on its channel.
// Tokens are built from underscores, letters and digits, so single quotes
// are enough.
func (s Sentinel) Statement() string {
	if s.Channel == Stderr {
		return fmt.Sprintf("echo '%s' 1>&2", s.Token)
	}
	return fmt.Sprintf("echo '%s'", s.Token)
}

// Match reports whether line carries the marker. Output without a trailing
// newline ends up glued in front of the marker; that text is returned as
// prefix so it is not lost.
func (s Sentinel) Match(line string) (prefix string, ok bool) {
	idx := strings.Index(line, s.Token)
	if idx < 0 {
		return "", false
	}
	return line[:idx], true
}

// Frame returns the lines to write for a request: the body, if any,
// followed by one marker statement per sentinel.
func Frame(body string, sentinels ...Sentinel) []string {
	lines := make([]string, 0, len(sentinels)+1)
	if strings.TrimSpace(body) != "" {
		lines = append(lines, body)
	}
	for _, s := range sentinels {
		lines = append(lines, s.Statement())
	}
	return lines
}
