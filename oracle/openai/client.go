// Package openai implements every oracle capability on an OpenAI-compatible chat
// completions endpoint, using structured outputs for replies.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/skosovsky/toolsynth"
)

type options struct {
	model       string
	baseURL     string
	temperature float32
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithModel sets the chat model. Defaults to gpt-4o-mini.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithTemperature sets the sampling temperature of generation calls. Judgment calls always
// use 0.
func WithTemperature(t float32) Option {
	return func(o *options) { o.temperature = t }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Client is safe for concurrent use.
type Client struct {
	api  *openai.Client
	opts options
	ex   extractors
}

// New creates a Client. apiKey may be empty for local servers that do not check it.
func New(apiKey string, opts ...Option) (*Client, error) {
	o := options{model: "gpt-4o-mini", temperature: 0.7}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	ex, err := newExtractors()
	if err != nil {
		return nil, fmt.Errorf("reply schemas: %w", err)
	}
	o.logger.Info("openai oracle initialized", "model", o.model, "base_url", cfg.BaseURL)
	return &Client{api: openai.NewClientWithConfig(cfg), opts: o, ex: ex}, nil
}

// format describes the reply schema demanded from the model.
type format struct {
	name   string
	schema map[string]any
	strict bool
}

// complete sends one chat request and returns the raw reply content.
func (c *Client) complete(ctx context.Context, op string, f format, temperature float32, system, user string) ([]byte, error) {
	schema, err := json.Marshal(f.schema)
	if err != nil {
		return nil, &toolsynth.OracleError{Op: op, Reason: "encoding reply schema", Err: err}
	}
	req := openai.ChatCompletionRequest{
		Model:       c.opts.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   f.name,
				Schema: json.RawMessage(schema),
				Strict: f.strict,
			},
		},
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(op, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &toolsynth.OracleError{Op: op, Reason: "empty reply", Retryable: true}
	}
	c.opts.logger.DebugContext(ctx, "openai reply",
		"op", op,
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens)
	return []byte(resp.Choices[0].Message.Content), nil
}

// parse decodes a reply through an extractor; a malformed reply is a non-retryable failure.
func parse[T any](op string, ex *toolsynth.Extractor[T], data []byte) (T, error) {
	v, err := ex.ParseAndValidate(data)
	if err != nil {
		var zero T
		return zero, &toolsynth.OracleError{Op: op, Reason: "unparseable reply: " + err.Error(), Err: err}
	}
	return v, nil
}

// classify maps transport errors to oracle errors. Rate limits and server errors are
// retryable; context errors pass through untouched.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	retryable := status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	return &toolsynth.OracleError{Op: op, Reason: err.Error(), Retryable: retryable, Err: err}
}
