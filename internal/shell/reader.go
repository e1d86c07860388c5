package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// lineBuffer bounds how many lines the pump reads ahead of Drain.
const lineBuffer = 256

// Reader pumps lines from one output pipe and hands them to Drain
type Reader struct {
	channel Channel
	lines   chan string
	stop    <-chan struct{}
	err     error // set by pump before lines is closed
}

// NewReader starts pumping lines from src until EOF, a read error, or stop
// is closed. Trailing "\r\n" is stripped from every line.
func NewReader(ch Channel, src io.Reader, stop <-chan struct{}) *Reader {
	r := &Reader{
		channel: ch,
		lines:   make(chan string, lineBuffer),
		stop:    stop,
	}
	go r.pump(src)
	return r
}

func (r *Reader) pump(src io.Reader) {
	defer close(r.lines)

	br := bufio.NewReader(src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case r.lines <- strings.TrimRight(line, "\r\n"):
			case <-r.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.err = err
			}
			return
		}
	}
}

// Drain reads lines until one carries the sentinel. Every line before it is
// returned in order and passed to onLine as it arrives; the marker itself is
// dropped. If the pipe ends first, the lines read so far are returned with
// ErrStreamClosed. Cancelling ctx returns ctx.Err().
func (r *Reader) Drain(ctx context.Context, s Sentinel, onLine func(string)) ([]string, error) {
	var lines []string
	emit := func(line string) {
		lines = append(lines, line)
		if onLine != nil {
			onLine(line)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return lines, ctx.Err()
		case line, ok := <-r.lines:
			if !ok {
				if r.err != nil {
					return lines, fmt.Errorf("%w: %s: %v", ErrStreamClosed, r.channel, r.err)
				}
				return lines, fmt.Errorf("%w: %s", ErrStreamClosed, r.channel)
			}
			if prefix, hit := s.Match(line); hit {
				if prefix != "" {
					emit(prefix)
				}
				return lines, nil
			}
			emit(line)
		}
	}
}
