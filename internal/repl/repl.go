package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robertmeta/dwim/internal/executor"
	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/supervisor"
	"github.com/robertmeta/dwim/internal/translator"
	"go.uber.org/zap"
)

const (
	exitCommand      = "exit"
	unknownDirectory = "?"
	cancelledMessage = "Operation cancelled by user. Restarting shell..."
)

// Executor runs requests in the persistent shell
type Executor interface {
	Execute(ctx context.Context, command string) (*executor.Result, error)
	QueryDirectory(ctx context.Context) (string, error)
	QueryStatus(ctx context.Context) executor.Status
}

// Translator turns a request into a shell command
type Translator interface {
	Translate(ctx context.Context, req translator.Request) (string, error)
}

// Supervisor hands out interruptible request contexts
type Supervisor interface {
	Begin(parent context.Context) (context.Context, func())
}

// Terminator shuts the shell down on exit
type Terminator interface {
	Terminate()
}

// Deps are the collaborators of the loop
type Deps struct {
	Executor   Executor
	Translator Translator
	Supervisor Supervisor
	Terminator Terminator
	Prompter   Prompter
}

// Options configures the loop
type Options struct {
	Shell     string
	AlwaysRun bool
	Out       io.Writer
	Logger    *logging.Logger
}

// Loop is the interactive read-translate-run loop
type Loop struct {
	deps      Deps
	shell     string
	alwaysRun bool
	out       io.Writer
	log       *logging.Logger

	currentDir  string
	lastCommand string
	lastOutput  string
}

// New creates a loop
func New(deps Deps, opts Options) *Loop {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Loop{
		deps:      deps,
		shell:     opts.Shell,
		alwaysRun: opts.AlwaysRun,
		out:       opts.Out,
		log:       opts.Logger.Named("repl"),
	}
}

// AlwaysRun reports whether commands run without confirmation
func (l *Loop) AlwaysRun() bool {
	return l.alwaysRun
}

// Run drives the loop until the user exits, input ends or ctx is done.
// The shell is terminated on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.deps.Terminator.Terminate()

	for {
		if ctx.Err() != nil {
			return nil
		}

		dir, status := l.probe(ctx)
		fmt.Fprintf(l.out, "\n%s\n", dir)

		input, err := l.deps.Prompter.Prompt(status.Glyph() + "dwim> ")
		switch {
		case errors.Is(err, ErrAborted):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == exitCommand {
			return nil
		}
		if input == "" {
			continue
		}

		l.deps.Prompter.AppendHistory(input)
		l.handle(ctx, input)
	}
}

// probe refreshes the directory and status shown in the prompt.
func (l *Loop) probe(ctx context.Context) (string, executor.Status) {
	rctx, end := l.deps.Supervisor.Begin(ctx)
	defer end()

	dir, err := l.deps.Executor.QueryDirectory(rctx)
	if err != nil {
		if supervisor.Interrupted(err) {
			fmt.Fprintln(l.out, cancelledMessage)
			return unknownDirectory, executor.StatusUnknown
		}
		l.log.Warn("directory probe failed", zap.Error(err))
		dir = unknownDirectory
	} else {
		l.currentDir = dir
	}

	status := l.deps.Executor.QueryStatus(rctx)
	if supervisor.Interrupted(context.Cause(rctx)) {
		fmt.Fprintln(l.out, cancelledMessage)
		return dir, executor.StatusUnknown
	}
	return dir, status
}

func (l *Loop) handle(ctx context.Context, input string) {
	command, err := l.translate(ctx, input)
	if err != nil {
		if supervisor.Interrupted(err) {
			fmt.Fprintln(l.out, cancelledMessage)
			return
		}
		if ctx.Err() == nil {
			fmt.Fprintln(l.out, err)
		}
		return
	}

	if !l.confirm(command) {
		fmt.Fprintln(l.out, "Command skipped")
		return
	}
	l.run(ctx, command)
}

func (l *Loop) translate(ctx context.Context, input string) (string, error) {
	rctx, end := l.deps.Supervisor.Begin(ctx)
	defer end()

	return l.deps.Translator.Translate(rctx, translator.Request{
		LastCommand: l.lastCommand,
		LastOutput:  l.lastOutput,
		Input:       input,
		Shell:       l.shell,
	})
}

// confirm asks before running unless always-run is on. Answering "always"
// turns it on for the rest of the session.
func (l *Loop) confirm(command string) bool {
	if l.alwaysRun {
		return true
	}

	answer, err := l.deps.Prompter.Prompt(fmt.Sprintf("Run '%s'? [Y/n/always]: ", command))
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	case "always":
		l.alwaysRun = true
		return true
	default:
		return false
	}
}

func (l *Loop) run(ctx context.Context, command string) {
	l.lastCommand = command
	l.lastOutput = ""
	fmt.Fprintf(l.out, "meaning> %s\n", command)

	rctx, end := l.deps.Supervisor.Begin(ctx)
	defer end()

	res, err := l.deps.Executor.Execute(rctx, command)
	if err != nil {
		switch {
		case supervisor.Interrupted(err):
			fmt.Fprintln(l.out, cancelledMessage)
		case errors.Is(err, executor.ErrCancelled):
		default:
			l.log.Warn("command failed", zap.String("command", command), zap.Error(err))
			fmt.Fprintf(l.out, "Shell session lost: %v. Restarted shell.\n", err)
		}
		return
	}

	l.lastOutput = res.Output()
	if res.HasStderr {
		fmt.Fprintln(l.out, "Error detected in command execution:")
		fmt.Fprintln(l.out, res.Stderr)
	}
}
