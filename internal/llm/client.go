package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat request.
type Message struct {
	Role    Role
	Content string
}

type Response struct {
	Content string
}

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty response from LLM")

// Options tune a Client. Zero values fall back to defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  uint64
	BackoffBase time.Duration
}

const (
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 5 * time.Second
)

// Client sends chat requests through a langchaingo model. It is safe for
// concurrent use as long as the underlying model is.
type Client struct {
	model llms.Model
	opts  Options
}

func NewClient(model llms.Model, opts Options) *Client {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	return &Client{model: model, opts: opts}
}

// Invoke sends the messages in order and returns the first choice. Transport
// failures are retried up to MaxRetries times with exponential backoff.
func (c *Client) Invoke(ctx context.Context, messages []Message) (Response, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	content := convertMessages(messages)
	callOpts := c.callOptions()

	backoff := retry.WithMaxRetries(c.opts.MaxRetries,
		retry.WithMaxDuration(defaultBackoffMax, retry.NewExponential(c.opts.BackoffBase)))

	var out Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.model.GenerateContent(ctx, content, callOpts...)
		if err != nil {
			if isRetryable(ctx, err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		out = Response{Content: resp.Choices[0].Content}
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm invoke: %w", err)
	}
	return out, nil
}

func (c *Client) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.opts.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.opts.Temperature))
	}
	if c.opts.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.opts.MaxTokens))
	}
	return opts
}

func convertMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		out = append(out, llms.TextParts(mapRole(m.Role), m.Content))
	}
	return out
}

func mapRole(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// isRetryable treats everything except cancellation and obvious client-side
// rejections as transient.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"401", "403", "invalid api key", "unauthorized", "missing the openai api key"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}
