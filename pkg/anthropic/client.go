// Package anthropic wraps the official SDK behind the single completion
// call the scoring stage needs.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the model operations used by the pipeline.
type Client interface {
	// Complete sends one user prompt and returns the text of the reply.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	Model       string
	MaxTokens   int64
	Prompt      string
	Temperature *float64
}

// Completion is the text reply plus usage accounting.
type Completion struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// LogCost logs token usage with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Debug("token usage",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// StatusError reports a failing HTTP status from the API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("anthropic: status %d", e.Code)
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL sets a custom API endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(url))
	}
}

type sdkClient struct {
	requestOpts []option.RequestOption
	client      sdk.Client
}

// NewClient creates a client backed by the official SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		// Retries are handled by the caller, not the SDK.
		requestOpts: []option.RequestOption{
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

func (c *sdkClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *sdk.Error
		if errors.As(err, &apierr) {
			return nil, &StatusError{Code: apierr.StatusCode}
		}
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return &Completion{
		Text:       text,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
