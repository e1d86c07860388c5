package shell

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/mattn/go-isatty"
	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// SessionInfo describes the session currently held by the manager
type SessionInfo struct {
	ID         string    `json:"id"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"working_dir"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	State      string    `json:"state"`
	Restarts   int       `json:"restarts"`
}

// Manager is the single session slot. The current session is only ever
// replaced whole; callers reach it through Exchange and never keep it.
type Manager struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics

	// exchangeMu admits one request at a time
	exchangeMu sync.Mutex

	// mu guards the slot
	mu         sync.Mutex
	current    *Session
	restarts   int
	terminated bool
}

// NewManager creates an empty session slot. Call Start to spawn the shell.
func NewManager(opts Options, metrics *monitoring.Metrics) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:    opts,
		log:     opts.Logger.Named("shell"),
		metrics: metrics,
	}
}

// Start spawns the first shell.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil
	}
	m.terminated = false
	return m.spawnLocked()
}

func (m *Manager) spawnLocked() error {
	opts := m.opts
	opts.Logger = m.log
	opts.Env = append(append([]string(nil), m.opts.Env...), TerminalEnv()...)

	s, err := Start(opts)
	if err != nil {
		m.log.Error("failed to start shell", zap.String("shell", opts.Shell), zap.Error(err))
		return err
	}
	m.current = s
	m.metrics.IncSessionsStarted()
	return nil
}

// Exchange runs fn against the current session with the session marked
// busy. Only one exchange runs at a time. fn must not retain the session.
func (m *Manager) Exchange(ctx context.Context, fn func(*Session) error) error {
	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s := m.session()
	if s == nil {
		return ErrNoSession
	}

	s.transition(StateReady, StateBusy)
	defer s.transition(StateBusy, StateReady)

	return fn(s)
}

func (m *Manager) session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Restart destroys the current shell, if any, and starts a fresh one.
// Teardown problems are logged, not returned. Calling it repeatedly is safe;
// each call yields a new live shell.
func (m *Manager) Restart(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated {
		return ErrNoSession
	}

	old := m.current
	m.current = nil
	if old != nil {
		m.destroy(old)
	}

	m.restarts++
	m.metrics.RecordRestart(reason)
	m.log.Info("restarting shell", zap.String("reason", reason), zap.Int("restarts", m.restarts))

	if err := m.spawnLocked(); err != nil {
		m.metrics.SetSessionInactive()
		return fmt.Errorf("restart shell: %w", err)
	}
	return nil
}

// Terminate shuts the current shell down without replacing it.
func (m *Manager) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.terminated = true
	if m.current == nil {
		return
	}
	m.destroy(m.current)
	m.current = nil
	m.metrics.SetSessionInactive()
}

func (m *Manager) destroy(s *Session) {
	if err := s.Close(); err != nil {
		m.log.Warn("shell teardown reported errors",
			zap.String("session_id", s.ID.String()),
			zap.Error(err))
	}
}

// State returns the state of the current session
func (m *Manager) State() State {
	s := m.session()
	if s == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.terminated {
			return StateTerminated
		}
		return StateUninitialized
	}
	return s.State()
}

// Info describes the current session
func (m *Manager) Info() SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := SessionInfo{
		Shell:    m.opts.Shell,
		State:    StateUninitialized.String(),
		Restarts: m.restarts,
	}
	if m.terminated {
		info.State = StateTerminated.String()
	}
	if s := m.current; s != nil {
		info.ID = s.ID.String()
		info.Shell = s.Shell
		info.WorkingDir = s.WorkingDir
		info.PID = s.PID()
		info.StartedAt = s.StartedAt
		info.State = s.State().String()
	}
	return info
}

// TerminalEnv returns COLUMNS and LINES for the user's terminal. The shell
// only sees pipes, so programs it runs cannot ask the terminal themselves.
func TerminalEnv() []string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return nil
	}
	rows, cols, err := pty.Getsize(os.Stdout)
	if err != nil || rows <= 0 || cols <= 0 {
		return nil
	}
	return []string{
		"COLUMNS=" + strconv.Itoa(cols),
		"LINES=" + strconv.Itoa(rows),
	}
}
