// Package supervisor turns the user's interrupt signal into a session reset.
//
// Every request the loop issues runs under a context obtained from Begin.
// An interrupt cancels that context with ErrInterrupted, then restarts the
// shell before the next request may begin.
package supervisor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"

	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// ErrInterrupted is the cancellation cause of a request abandoned by the user
var ErrInterrupted = errors.New("interrupted by user")

// Restarter replaces the current shell with a fresh one
type Restarter interface {
	Restart(reason string) error
}

// Options configures a Supervisor
type Options struct {
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

type request struct {
	cancel context.CancelCauseFunc
}

// Supervisor tracks the in-flight request and handles interrupts
type Supervisor struct {
	restarter Restarter
	log       *logging.Logger
	metrics   *monitoring.Metrics

	// mu is held across a restart so Begin cannot hand out a context
	// while the old shell is being replaced.
	mu     sync.Mutex
	active *request
}

// New creates a supervisor that restarts sessions through restarter
func New(restarter Restarter, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Supervisor{
		restarter: restarter,
		log:       opts.Logger.Named("supervisor"),
		metrics:   opts.Metrics,
	}
}

// Begin returns the context for one request and the func that ends it.
// end must be called once the request is finished.
func (s *Supervisor) Begin(parent context.Context) (ctx context.Context, end func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancelCause(parent)
	req := &request{cancel: cancel}
	s.active = req

	return ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		cancel(nil)
		if s.active == req {
			s.active = nil
		}
	}
}

// Interrupt cancels the in-flight request, if any, and restarts the shell.
// Each call restarts, whether or not a request was running.
func (s *Supervisor) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.IncInterrupts()

	inFlight := s.active != nil
	if inFlight {
		s.active.cancel(ErrInterrupted)
		s.active = nil
	}

	s.log.Info("interrupt", zap.Bool("in_flight", inFlight))
	if err := s.restarter.Restart("interrupt"); err != nil {
		s.log.Error("failed to restart shell after interrupt", zap.Error(err))
	}
}

// Run handles os.Interrupt until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	s.serve(ctx, sigs)
}

func (s *Supervisor) serve(ctx context.Context, sigs <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			s.log.Debug("signal received", zap.Stringer("signal", sig))
			s.Interrupt()
		}
	}
}

// Interrupted reports whether err comes from a request abandoned by Interrupt
func Interrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
