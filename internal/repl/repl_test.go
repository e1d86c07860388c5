package repl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/robertmeta/dwim/internal/executor"
	"github.com/robertmeta/dwim/internal/supervisor"
	"github.com/robertmeta/dwim/internal/translator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPrompter struct {
	answers []any // string or error
	prompts []string
	history []string
}

func (p *scriptedPrompter) Prompt(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	next := p.answers[0]
	p.answers = p.answers[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (p *scriptedPrompter) AppendHistory(item string) {
	p.history = append(p.history, item)
}

type fakeExecutor struct {
	dir      string
	dirErr   error
	status   executor.Status
	results  map[string]*executor.Result
	execErr  error
	executed []string
	onStatus func()
}

func (f *fakeExecutor) Execute(ctx context.Context, command string) (*executor.Result, error) {
	f.executed = append(f.executed, command)
	if f.execErr != nil {
		return nil, f.execErr
	}
	if res, ok := f.results[command]; ok {
		return res, nil
	}
	return &executor.Result{Command: command}, nil
}

func (f *fakeExecutor) QueryDirectory(ctx context.Context) (string, error) {
	return f.dir, f.dirErr
}

func (f *fakeExecutor) QueryStatus(ctx context.Context) executor.Status {
	if f.onStatus != nil {
		f.onStatus()
	}
	if ctx.Err() != nil {
		return executor.StatusUnknown
	}
	return f.status
}

type fakeTranslator struct {
	commands map[string]string
	err      error
	requests []translator.Request
}

func (f *fakeTranslator) Translate(ctx context.Context, req translator.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.commands[req.Input], nil
}

type fakeSupervisor struct {
	begun  int
	cancel context.CancelCauseFunc
}

func (f *fakeSupervisor) Begin(parent context.Context) (context.Context, func()) {
	f.begun++
	ctx, cancel := context.WithCancelCause(parent)
	f.cancel = cancel
	return ctx, func() { cancel(nil) }
}

// interrupt cancels the latest request the way Supervisor.Interrupt does
func (f *fakeSupervisor) interrupt() {
	f.cancel(supervisor.ErrInterrupted)
}

type fakeTerminator struct{ calls int }

func (f *fakeTerminator) Terminate() { f.calls++ }

type harness struct {
	prompter   *scriptedPrompter
	executor   *fakeExecutor
	translator *fakeTranslator
	terminator *fakeTerminator
	supervisor *fakeSupervisor
	out        *bytes.Buffer
	loop       *Loop
}

func newHarness(answers []any, opts Options) *harness {
	h := &harness{
		prompter: &scriptedPrompter{answers: answers},
		executor: &fakeExecutor{
			dir:     "/work",
			results: map[string]*executor.Result{},
		},
		translator: &fakeTranslator{commands: map[string]string{
			"list files": "ls",
			"show date":  "date",
		}},
		terminator: &fakeTerminator{},
		supervisor: &fakeSupervisor{},
		out:        &bytes.Buffer{},
	}
	opts.Out = h.out
	h.loop = New(Deps{
		Executor:   h.executor,
		Translator: h.translator,
		Supervisor: h.supervisor,
		Terminator: h.terminator,
		Prompter:   h.prompter,
	}, opts)
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Run(context.Background()))
}

func TestExitTerminatesShell(t *testing.T) {
	h := newHarness([]any{"exit", "list files"}, Options{})
	h.run(t)

	assert.Equal(t, 1, h.terminator.calls)
	assert.Empty(t, h.translator.requests)
}

func TestEndOfInputTerminatesShell(t *testing.T) {
	h := newHarness(nil, Options{})
	h.run(t)

	assert.Equal(t, 1, h.terminator.calls)
}

func TestBlankInputReprompts(t *testing.T) {
	h := newHarness([]any{"", "   ", "exit"}, Options{})
	h.run(t)

	assert.Empty(t, h.translator.requests)
	assert.Len(t, h.prompter.prompts, 3)
}

func TestAbortedPromptReprompts(t *testing.T) {
	h := newHarness([]any{ErrAborted, "exit"}, Options{})
	h.run(t)

	assert.Len(t, h.prompter.prompts, 2)
	assert.Equal(t, 1, h.terminator.calls)
}

func TestPromptShowsDirectoryAndStatus(t *testing.T) {
	h := newHarness([]any{"exit"}, Options{})
	h.executor.status = executor.StatusBoth
	h.run(t)

	assert.Contains(t, h.out.String(), "\n/work\n")
	assert.Equal(t, "🟢🔴 dwim> ", h.prompter.prompts[0])
}

func TestDirectoryProbeFailureShowsPlaceholder(t *testing.T) {
	h := newHarness([]any{"exit"}, Options{})
	h.executor.dirErr = errors.New("boom")
	h.executor.status = executor.StatusUnknown
	h.run(t)

	assert.Contains(t, h.out.String(), "\n?\n")
	assert.Equal(t, "○ dwim> ", h.prompter.prompts[0])
}

func TestConfirmedCommandRuns(t *testing.T) {
	h := newHarness([]any{"list files", "y", "exit"}, Options{})
	h.run(t)

	assert.Equal(t, []string{"ls"}, h.executor.executed)
	assert.Contains(t, h.out.String(), "meaning> ls\n")
	assert.Equal(t, "Run 'ls'? [Y/n/always]: ", h.prompter.prompts[1])
	assert.Equal(t, []string{"list files"}, h.prompter.history)
}

func TestEmptyConfirmationRuns(t *testing.T) {
	h := newHarness([]any{"list files", "", "exit"}, Options{})
	h.run(t)

	assert.Equal(t, []string{"ls"}, h.executor.executed)
}

func TestDeclinedCommandIsSkipped(t *testing.T) {
	h := newHarness([]any{"list files", "n", "exit"}, Options{})
	h.run(t)

	assert.Empty(t, h.executor.executed)
	assert.Contains(t, h.out.String(), "Command skipped\n")
}

func TestAlwaysAnswerStopsAsking(t *testing.T) {
	h := newHarness([]any{"list files", "always", "show date", "exit"}, Options{})
	h.run(t)

	assert.Equal(t, []string{"ls", "date"}, h.executor.executed)
	assert.True(t, h.loop.AlwaysRun())
	for _, p := range h.prompter.prompts {
		assert.NotContains(t, p, "Run 'date'")
	}
}

func TestAlwaysRunOption(t *testing.T) {
	h := newHarness([]any{"list files", "exit"}, Options{AlwaysRun: true})
	h.run(t)

	assert.Equal(t, []string{"ls"}, h.executor.executed)
}

func TestPreviousCommandFeedsTranslation(t *testing.T) {
	h := newHarness([]any{"list files", "y", "show date", "n", "exit"}, Options{Shell: "/bin/zsh"})
	h.executor.results["ls"] = &executor.Result{Command: "ls", Stdout: "a.txt\nb.txt"}
	h.run(t)

	require.Len(t, h.translator.requests, 2)
	first, second := h.translator.requests[0], h.translator.requests[1]
	assert.Empty(t, first.LastCommand)
	assert.Equal(t, "/bin/zsh", first.Shell)
	assert.Equal(t, "ls", second.LastCommand)
	assert.Equal(t, "a.txt\nb.txt", second.LastOutput)
	assert.Equal(t, "show date", second.Input)
}

func TestStderrIsReported(t *testing.T) {
	h := newHarness([]any{"list files", "y", "exit"}, Options{})
	h.executor.results["ls"] = &executor.Result{Command: "ls", Stderr: "ls: denied", HasStderr: true}
	h.run(t)

	assert.Contains(t, h.out.String(), "Error detected in command execution:\nls: denied\n")
}

func TestTranslationFailureDoesNotRun(t *testing.T) {
	h := newHarness([]any{"list files", "exit"}, Options{})
	h.translator.err = fmt.Errorf("%w: status 500", translator.ErrTranslation)
	h.run(t)

	assert.Empty(t, h.executor.executed)
	assert.Contains(t, h.out.String(), "translation failed: status 500\n")
}

func TestInterruptedCommand(t *testing.T) {
	h := newHarness([]any{"list files", "y", "exit"}, Options{})
	h.executor.execErr = fmt.Errorf("%w: %w", executor.ErrCancelled, supervisor.ErrInterrupted)
	h.run(t)

	assert.Contains(t, h.out.String(), cancelledMessage)
	assert.Equal(t, 1, h.terminator.calls)
}

func TestInterruptedTranslation(t *testing.T) {
	h := newHarness([]any{"list files", "exit"}, Options{})
	h.translator.err = fmt.Errorf("%w: %w", translator.ErrTranslation, supervisor.ErrInterrupted)
	h.run(t)

	assert.Contains(t, h.out.String(), cancelledMessage)
	assert.NotContains(t, h.out.String(), "translation failed")
}

func TestCancelledContextStopsLoop(t *testing.T) {
	h := newHarness([]any{"list files"}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.loop.Run(ctx))
	assert.Empty(t, h.prompter.prompts)
	assert.Equal(t, 1, h.terminator.calls)
}

func TestInterruptDuringStatusQuery(t *testing.T) {
	h := newHarness([]any{"exit"}, Options{})
	h.executor.status = executor.StatusStaged
	h.executor.onStatus = func() {
		h.executor.onStatus = nil
		h.supervisor.interrupt()
	}
	h.run(t)

	assert.Equal(t, 1, strings.Count(h.out.String(), cancelledMessage))
	require.NotEmpty(t, h.prompter.prompts)
	assert.Equal(t, executor.StatusUnknown.Glyph()+"dwim> ", h.prompter.prompts[0])
	assert.Contains(t, h.out.String(), "/work")
}
