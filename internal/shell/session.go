package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/shared/id"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultShell is used when neither Options nor $SHELL name one.
	DefaultShell = "/bin/bash"

	// DefaultShutdownTimeout bounds each step of Close.
	DefaultShutdownTimeout = 2 * time.Second

	// exitGrace lets a pipe reach EOF on its own after the shell exits.
	exitGrace = 100 * time.Millisecond
)

// State is the lifecycle state of a shell session
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateBusy
	StateTerminating
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configures how shell processes are spawned
type Options struct {
	Shell           string
	WorkDir         string
	Env             []string // appended to the inherited environment
	ShutdownTimeout time.Duration
	Logger          *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Shell == "" {
		o.Shell = os.Getenv("SHELL")
		if o.Shell == "" {
			o.Shell = DefaultShell
		}
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Session is one live shell process and its pipes
type Session struct {
	ID         id.SessionID
	Shell      string
	WorkingDir string
	StartedAt  time.Time

	// Process management
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdoutR  *os.File
	stderrR  *os.File
	stdout   *Reader
	stderr   *Reader
	timeout  time.Duration
	log      *logging.Logger
	writeMu  sync.Mutex
	closeErr error

	// Lifecycle
	mu        sync.RWMutex
	state     State
	waitErr   error
	exited    chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

var newPipe = os.Pipe

// Start spawns a shell with its stdin, stdout and stderr connected to pipes.
func Start(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	workDir := opts.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	cmd := exec.Command(opts.Shell)
	cmd.Dir = opts.WorkDir
	cmd.Env = append(os.Environ(), opts.Env...)

	s := &Session{
		ID:         id.NewSessionID(),
		Shell:      opts.Shell,
		WorkingDir: workDir,
		cmd:        cmd,
		timeout:    opts.ShutdownTimeout,
		state:      StateStarting,
		exited:     make(chan struct{}),
		closing:    make(chan struct{}),
	}
	s.log = opts.Logger.With(zap.String("session_id", s.ID.String()))

	// Wait closes pipes created by StdoutPipe, which would race with the
	// readers. Plain os.Pipe ends are owned by the session instead.
	p, err := openPipes()
	if err != nil {
		return nil, err
	}
	cmd.Stdin = p.stdinR
	cmd.Stdout = p.stdoutW
	cmd.Stderr = p.stderrW

	startErr := cmd.Start()
	// The child holds its own copies of these ends.
	p.closeChildEnds()
	if startErr != nil {
		p.closeAll()
		return nil, fmt.Errorf("failed to start shell %s: %w", opts.Shell, startErr)
	}

	s.StartedAt = time.Now()
	s.stdin = p.stdinW
	s.stdoutR = p.stdoutR
	s.stderrR = p.stderrR
	s.stdout = NewReader(Stdout, p.stdoutR, s.closing)
	s.stderr = NewReader(Stderr, p.stderrR, s.closing)

	go s.monitorProcess()

	s.setState(StateReady)
	s.log.Info("shell started",
		zap.String("shell", s.Shell),
		zap.String("working_dir", s.WorkingDir),
		zap.Int("pid", s.PID()))

	return s, nil
}

// pipes are the three stdio pipes of one shell
type pipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

// openPipes creates all three pipes or none of them.
func openPipes() (*pipes, error) {
	var (
		p   pipes
		err error
	)
	if p.stdinR, p.stdinW, err = newPipe(); err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if p.stdoutR, p.stdoutW, err = newPipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if p.stderrR, p.stderrW, err = newPipe(); err != nil {
		p.closeAll()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	return &p, nil
}

func (p *pipes) closeChildEnds() {
	closeFiles(p.stdinR, p.stdoutW, p.stderrW)
}

func (p *pipes) closeAll() {
	closeFiles(p.stdinR, p.stdinW, p.stdoutR, p.stdoutW, p.stderrR, p.stderrW)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// monitorProcess waits for the process to exit and records the result
func (s *Session) monitorProcess() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.waitErr = err
	expected := s.state == StateTerminating
	if !expected {
		s.state = StateTerminated
	}
	s.mu.Unlock()

	close(s.exited)

	if !expected {
		s.log.Warn("shell exited unexpectedly", zap.Error(err))
	}
}

// PID returns the shell's process ID, or 0 if it never started
func (s *Session) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// transition moves from one state to another and reports whether it did.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// Alive reports whether the process is running and not being torn down
func (s *Session) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
	}
	state := s.State()
	return state == StateReady || state == StateBusy
}

// Exited is closed once the shell process has been reaped
func (s *Session) Exited() <-chan struct{} {
	return s.exited
}

// Write sends one line to the shell's stdin.
func (s *Session) Write(line string) error {
	if !s.Alive() {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionClosed, err)
	}
	return nil
}

// Send writes lines in order, stopping at the first failure.
func (s *Session) Send(lines ...string) error {
	for _, line := range lines {
		if err := s.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Drain reads the sentinel's channel until the marker arrives. See
// Reader.Drain. If the shell exits while the pipe is still held open by a
// leftover child, Drain gives up with ErrStreamClosed after a short grace.
func (s *Session) Drain(ctx context.Context, sentinel Sentinel, onLine func(string)) ([]string, error) {
	r := s.stdout
	if sentinel.Channel == Stderr {
		r = s.stderr
	}

	dctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		select {
		case <-s.exited:
		case <-dctx.Done():
			return
		}
		t := time.NewTimer(exitGrace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel(fmt.Errorf("%w: %s: shell exited", ErrStreamClosed, sentinel.Channel))
		case <-dctx.Done():
		}
	}()

	lines, err := r.Drain(dctx, sentinel, onLine)
	if err != nil && ctx.Err() == nil {
		if cause := context.Cause(dctx); errors.Is(cause, ErrStreamClosed) {
			err = cause
		}
	}
	return lines, err
}

// Close shuts the shell down: close stdin, ask the shell to terminate,
// wait, then kill. Failures along the way are collected and
// returned together; the session is torn down regardless. Only the first
// call does any work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Session) shutdown() error {
	var errs error

	s.setState(StateTerminating)

	if err := s.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("close stdin: %w", err))
	}

	if !s.waitExit(0) {
		errs = multierr.Append(errs, signalShell(s.cmd.Process, sigTerminate))
		if !s.waitExit(s.timeout) {
			s.log.Warn("shell ignored terminate, killing", zap.Duration("timeout", s.timeout))
			errs = multierr.Append(errs, signalShell(s.cmd.Process, sigKill))
			if !s.waitExit(s.timeout) {
				errs = multierr.Append(errs, fmt.Errorf("shell pid %d did not exit", s.PID()))
			}
		}
	}

	close(s.closing)

	if err := s.stdoutR.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("close stdout: %w", err))
	}
	if err := s.stderrR.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = multierr.Append(errs, fmt.Errorf("close stderr: %w", err))
	}

	select {
	case <-s.exited:
		s.mu.RLock()
		waitErr := s.waitErr
		s.mu.RUnlock()
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			errs = multierr.Append(errs, fmt.Errorf("wait: %w", waitErr))
		}
	default:
	}

	s.setState(StateTerminated)
	s.log.Info("shell terminated", zap.Int("pid", s.PID()))

	return errs
}

// waitExit waits up to d for the process to be reaped
func (s *Session) waitExit(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.exited:
			return true
		default:
			return false
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.exited:
		return true
	case <-t.C:
		return false
	}
}
