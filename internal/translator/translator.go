package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/robertmeta/dwim/internal/config"
	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"github.com/robertmeta/dwim/internal/infrastructure/resilience"
	"go.uber.org/zap"
)

var (
	// ErrTranslation wraps every failure to obtain a command.
	ErrTranslation = errors.New("translation failed")

	// ErrEmptyCommand is returned when the completion is blank.
	ErrEmptyCommand = errors.New("translation produced an empty command")

	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")
)

// Request carries everything one translation needs
type Request struct {
	LastCommand string
	LastOutput  string
	Input       string
	Shell       string
}

// Options configures a Translator
type Options struct {
	Logger  *logging.Logger
	Metrics *monitoring.Metrics

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Translator converts natural-language requests into shell commands
type Translator struct {
	client     *client
	prompts    *Prompts
	apiKey     string
	maxContext int
	log        *logging.Logger
	metrics    *monitoring.Metrics
}

// New creates a translator from configuration. Prompts come from
// cfg.PromptsPath when set, otherwise from the embedded bundle.
func New(cfg config.TranslatorConfig, opts Options) (*Translator, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 500 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 5 * time.Second
	}

	var (
		prompts *Prompts
		err     error
	)
	if cfg.PromptsPath != "" {
		prompts, err = LoadPrompts(cfg.PromptsPath)
	} else {
		prompts, err = DefaultPrompts()
	}
	if err != nil {
		return nil, err
	}

	log := opts.Logger.Named("translator")

	return &Translator{
		client: newClient(clientConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
			Retries:      cfg.Retries,
			RetryWaitMin: opts.RetryWaitMin,
			RetryWaitMax: opts.RetryWaitMax,
			RateLimit:    cfg.RateLimit,
		}, log),
		prompts:    prompts,
		apiKey:     cfg.APIKey,
		maxContext: cfg.MaxContext,
		log:        log,
		metrics:    opts.Metrics,
	}, nil
}

// Translate asks the completion service for a command fulfilling req.Input.
func (t *Translator) Translate(ctx context.Context, req Request) (string, error) {
	if t.apiKey == "" {
		t.metrics.RecordTranslation("error")
		return "", fmt.Errorf("%w: %w", ErrTranslation, ErrMissingAPIKey)
	}

	system, err := t.prompts.System(SystemData{Shell: req.Shell})
	if err != nil {
		t.metrics.RecordTranslation("error")
		return "", fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	user, err := t.prompts.User(UserData{
		LastCommand: req.LastCommand,
		LastOutput:  tail(req.LastOutput, t.maxContext),
		Input:       req.Input,
	})
	if err != nil {
		t.metrics.RecordTranslation("error")
		return "", fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	content, err := t.client.complete(ctx, []message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		t.metrics.RecordTranslation(translationStatus(ctx, err))
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrTranslation, context.Cause(ctx))
		}
		return "", fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	command := cleanCommand(content)
	if command == "" {
		t.metrics.RecordTranslation("empty")
		return "", fmt.Errorf("%w: %w", ErrTranslation, ErrEmptyCommand)
	}

	t.metrics.RecordTranslation("success")
	t.log.Info("translated", zap.String("input", req.Input), zap.String("command", command))
	return command, nil
}

func translationStatus(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "cancelled"
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "error"
	}
}

// cleanCommand strips whitespace and Markdown code formatting around a
// completion.
func cleanCommand(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) == 1 {
			return strings.TrimSpace(strings.Trim(text, "`"))
		}
		lines = lines[1:]
		if strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if len(text) >= 2 && text[0] == '`' && text[len(text)-1] == '`' {
		inner := text[1 : len(text)-1]
		if !strings.Contains(inner, "`") {
			return strings.TrimSpace(inner)
		}
	}
	return text
}

// tail keeps at most max bytes from the end of s without splitting a rune.
// max <= 0 keeps everything.
func tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
