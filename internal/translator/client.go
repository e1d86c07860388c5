package translator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const completionsPath = "/chat/completions"

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// clientConfig holds the transport settings for the completion client
type clientConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	RateLimit    float64
}

// client wraps resty with rate limiting, retries and a circuit breaker
type client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	model   string
	log     *logging.Logger
}

func newClient(cfg clientConfig, log *logging.Logger) *client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveledLogger{log.Sugar()}
	// Hand the last response to resty so API error bodies survive retries.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Timeout = cfg.Timeout

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("User-Agent", "dwim/1.0").
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	c := &client{
		resty:   restyClient,
		limiter: newLimiter(cfg.RateLimit),
		model:   cfg.Model,
		log:     log,
	}

	c.breaker = resilience.New("translator", resilience.Policy{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnTransition: func(name string, from, to resilience.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return c
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// complete sends messages and returns the content of the first choice.
func (c *client) complete(ctx context.Context, messages []message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	requestID := uuid.NewString()
	start := time.Now()

	content, err := resilience.Do(c.breaker, func() (string, error) {
		resp, err := c.resty.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", requestID).
			SetBody(chatRequest{Model: c.model, Messages: messages}).
			SetResult(&chatResponse{}).
			SetError(&apiError{}).
			Post(completionsPath)
		if err != nil {
			return "", err
		}
		if resp.IsError() {
			return "", statusError(resp)
		}

		result, ok := resp.Result().(*chatResponse)
		if !ok || len(result.Choices) == 0 {
			return "", fmt.Errorf("completion response has no choices")
		}
		return result.Choices[0].Message.Content, nil
	})

	c.log.Debug("completion request",
		zap.String("request_id", requestID),
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))

	return content, err
}

func statusError(resp *resty.Response) error {
	if e, ok := resp.Error().(*apiError); ok && e.Error.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), e.Error.Message)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode(), http.StatusText(resp.StatusCode()))
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
