package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"github.com/robertmeta/dwim/internal/shell"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sessions is the session slot the executor talks through
type Sessions interface {
	Exchange(ctx context.Context, fn func(*shell.Session) error) error
	Restart(reason string) error
}

// Options configures an Executor
type Options struct {
	// Stdout and Stderr receive command output line by line while it runs.
	// Nil discards.
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Executor runs requests against the persistent shell
type Executor struct {
	sessions Sessions
	stdout   io.Writer
	stderr   io.Writer
	log      *logging.Logger
	metrics  *monitoring.Metrics
	echoMu   sync.Mutex
}

// New creates an executor over sessions
func New(sessions Sessions, opts Options) *Executor {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Executor{
		sessions: sessions,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		log:      opts.Logger.Named("executor"),
		metrics:  opts.Metrics,
	}
}

// request is one framed exchange: a body and one sentinel per drained channel
type request struct {
	kind      Kind
	body      string
	sentinels []shell.Sentinel
	echo      []func(string)
}

// Execute runs command in the shell and returns its captured output.
// Output is echoed to the configured writers as it arrives. Non-empty
// stderr is reported through Result.HasStderr, not as an error.
func (e *Executor) Execute(ctx context.Context, command string) (*Result, error) {
	req := request{
		kind: KindExecute,
		body: command,
		sentinels: []shell.Sentinel{
			shell.NewSentinel(shell.EndOfCommand, shell.Stdout),
			shell.NewSentinel(shell.EndOfStderr, shell.Stderr),
		},
		echo: []func(string){e.echoTo(e.stdout), e.echoTo(e.stderr)},
	}

	start := time.Now()
	out, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}

	stderr := strings.Join(out[1], "\n")
	return &Result{
		Command:   command,
		Stdout:    strings.Join(out[0], "\n"),
		Stderr:    stderr,
		HasStderr: stderr != "",
		Duration:  time.Since(start),
	}, nil
}

// QueryDirectory returns the shell's current working directory.
func (e *Executor) QueryDirectory(ctx context.Context) (string, error) {
	req := request{
		kind:      KindDirectory,
		body:      "pwd",
		sentinels: []shell.Sentinel{shell.NewSentinel(shell.EndOfDirectory, shell.Stdout)},
	}

	out, err := e.do(ctx, req)
	if err != nil {
		return "", err
	}

	lines := out[0]
	for i := len(lines) - 1; i >= 0; i-- {
		if dir := strings.TrimSpace(lines[i]); dir != "" {
			return dir, nil
		}
	}
	return "", errors.New("pwd printed nothing")
}

// QueryStatus classifies the repository status of the shell's current
// directory. Any failure yields StatusUnknown.
func (e *Executor) QueryStatus(ctx context.Context) Status {
	req := request{
		kind:      KindStatus,
		body:      statusCommand,
		sentinels: []shell.Sentinel{shell.NewSentinel(shell.EndOfGitStatus, shell.Stdout)},
	}

	out, err := e.do(ctx, req)
	if err != nil {
		e.log.Debug("status probe failed", zap.Error(err))
		return StatusUnknown
	}
	return Classify(out[0])
}

// do runs req, retrying once on a fresh shell if the session turned out to
// be dead before anything was written.
func (e *Executor) do(ctx context.Context, req request) ([][]string, error) {
	timer := monitoring.NewTimer(e.metrics, string(req.kind))

	out, written, err := e.exchange(ctx, req)
	if err != nil && ctx.Err() == nil && !written && isSessionGone(err) {
		e.log.Warn("shell unavailable, restarting before retry",
			zap.String("kind", string(req.kind)), zap.Error(err))
		if rerr := e.sessions.Restart("session_closed"); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			out, _, err = e.exchange(ctx, req)
		}
	}

	if err != nil {
		err = e.recover(ctx, req.kind, err)
		timer.Stop(outcome(err))
		return nil, err
	}

	d := timer.Stop("success")
	e.log.Debug("request complete", zap.String("kind", string(req.kind)), zap.Duration("duration", d))
	return out, nil
}

// exchange writes the framed request and drains every sentinel's channel
// concurrently. written reports whether any line reached the shell.
func (e *Executor) exchange(ctx context.Context, req request) (out [][]string, written bool, err error) {
	out = make([][]string, len(req.sentinels))

	err = e.sessions.Exchange(ctx, func(s *shell.Session) error {
		for _, line := range shell.Frame(req.body, req.sentinels...) {
			if err := s.Write(line); err != nil {
				return err
			}
			written = true
		}

		g, gctx := errgroup.WithContext(ctx)
		for i, sentinel := range req.sentinels {
			i, sentinel := i, sentinel
			var onLine func(string)
			if i < len(req.echo) {
				onLine = req.echo[i]
			}
			g.Go(func() error {
				lines, err := s.Drain(gctx, sentinel, onLine)
				out[i] = lines
				return err
			})
		}
		return g.Wait()
	})
	return out, written, err
}

// recover maps a failed exchange to the error returned to the caller and
// restarts the shell when its pipes can no longer be trusted.
func (e *Executor) recover(ctx context.Context, kind Kind, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	}

	if errors.Is(err, shell.ErrStreamClosed) || isSessionGone(err) {
		e.log.Warn("shell lost during request",
			zap.String("kind", string(kind)), zap.Error(err))
		if rerr := e.sessions.Restart("session_lost"); rerr != nil {
			e.log.Error("failed to restart shell", zap.Error(rerr))
			return errors.Join(err, rerr)
		}
	}
	return err
}

func (e *Executor) echoTo(w io.Writer) func(string) {
	return func(line string) {
		e.echoMu.Lock()
		defer e.echoMu.Unlock()
		fmt.Fprintln(w, line)
	}
}

func isSessionGone(err error) bool {
	return errors.Is(err, shell.ErrSessionClosed) || errors.Is(err, shell.ErrNoSession)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, shell.ErrStreamClosed), isSessionGone(err):
		return "session_lost"
	default:
		return "error"
	}
}
