package translator

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/goccy/go-yaml"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts holds the parsed system and user templates
type Prompts struct {
	system *template.Template
	user   *template.Template
}

// SystemData is passed to the system template
type SystemData struct {
	Shell string
}

// UserData is passed to the user template
type UserData struct {
	LastCommand string
	LastOutput  string
	Input       string
}

type promptBundle struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// DefaultPrompts returns the embedded template bundle
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// LoadPrompts reads a template bundle from path
func LoadPrompts(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts %s: %w", path, err)
	}
	return ParsePrompts(data)
}

// ParsePrompts parses a YAML bundle with "system" and "user" templates.
func ParsePrompts(data []byte) (*Prompts, error) {
	var bundle promptBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if strings.TrimSpace(bundle.System) == "" || strings.TrimSpace(bundle.User) == "" {
		return nil, fmt.Errorf("prompts must define both system and user templates")
	}

	system, err := template.New("system").Option("missingkey=error").Parse(bundle.System)
	if err != nil {
		return nil, fmt.Errorf("system template: %w", err)
	}
	user, err := template.New("user").Option("missingkey=error").Parse(bundle.User)
	if err != nil {
		return nil, fmt.Errorf("user template: %w", err)
	}

	return &Prompts{system: system, user: user}, nil
}

// System renders the system prompt
func (p *Prompts) System(data SystemData) (string, error) {
	return render(p.system, data)
}

// User renders the user prompt
func (p *Prompts) User(data UserData) (string, error) {
	return render(p.user, data)
}

func render(tpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tpl.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
