package repl

import (
	"errors"

	"github.com/peterh/liner"
)

// ErrAborted is returned by a Prompter when the user cancels the line
var ErrAborted = errors.New("prompt aborted")

// Prompter reads one line of input
type Prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// LinePrompter reads input with line editing, history and completion
type LinePrompter struct {
	state *liner.State
}

// NewLinePrompter takes over the terminal for line editing. Close restores it.
func NewLinePrompter() *LinePrompter {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetTabCompletionStyle(liner.TabPrints)
	return &LinePrompter{state: state}
}

// Prompt shows prompt and returns the entered line. Ctrl-C yields
// ErrAborted; end of input yields io.EOF.
func (p *LinePrompter) Prompt(prompt string) (string, error) {
	line, err := p.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", ErrAborted
	}
	return line, err
}

// AppendHistory records item for recall with the arrow keys
func (p *LinePrompter) AppendHistory(item string) {
	p.state.AppendHistory(item)
}

// SetWordCompleter installs the tab completion hook
func (p *LinePrompter) SetWordCompleter(f liner.WordCompleter) {
	p.state.SetWordCompleter(f)
}

// Close restores the terminal
func (p *LinePrompter) Close() error {
	return p.state.Close()
}
