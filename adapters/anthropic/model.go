// Package anthropic adapts the Anthropic Messages API to guardrail.ModelFunc.
//
// The adapter is transport only: one prompt becomes one user message, text blocks
// of the reply are concatenated. Retries of malformed output belong to
// guardrail.Run; the SDK's own HTTP retries can be tuned with option.WithMaxRetries.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/guardrail"
)

// DefaultMaxTokens is used when Config.MaxTokens is not positive.
const DefaultMaxTokens = 1024

// ErrEmptyResponse is returned when the reply has no text content.
var ErrEmptyResponse = errors.New("anthropic: empty response")

// Config selects the model and sampling parameters. It is built in code; the
// CLI maps its YAML config onto it.
type Config struct {
	Model       string
	MaxTokens   int64
	Temperature *float64
	System      string
	// APIKey overrides ANTHROPIC_API_KEY.
	APIKey  string
	BaseURL string
}

// messagesAPI is the subset of the SDK message service used by Model.
type messagesAPI interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Model calls the Messages API once per Complete.
type Model struct {
	messages messagesAPI
	cfg      Config
}

// New builds a Model. Without APIKey the SDK reads ANTHROPIC_API_KEY.
// Extra request options (HTTP client, retries, headers) are passed to the SDK client.
func New(cfg Config, opts ...option.RequestOption) (*Model, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic: model is required")
	}
	var reqOpts []option.RequestOption
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)
	client := sdk.NewClient(reqOpts...)
	return newModel(&client.Messages, cfg), nil
}

func newModel(api messagesAPI, cfg Config) *Model {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Model{messages: api, cfg: cfg}
}

// Name returns the configured model identifier.
func (m *Model) Name() string { return m.cfg.Model }

// Temperature returns the configured sampling temperature, or nil for the API default.
func (m *Model) Temperature() *float64 { return m.cfg.Temperature }

// LogContext describes the model for audit records of prompt.
func (m *Model) LogContext(prompt, version string) guardrail.LogContext {
	return guardrail.LogContext{
		Prompt:        prompt,
		PromptVersion: version,
		Model:         m.cfg.Model,
		Temperature:   m.cfg.Temperature,
	}
}

// Complete sends prompt as a single user message and returns the concatenated text.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		MaxTokens: m.cfg.MaxTokens,
		Model:     sdk.Model(m.cfg.Model),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if m.cfg.Temperature != nil {
		params.Temperature = sdk.Float(*m.cfg.Temperature)
	}
	if s := strings.TrimSpace(m.cfg.System); s != "" {
		params.System = []sdk.TextBlockParam{{Text: s}}
	}
	msg, err := m.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// ModelFunc returns Complete as a guardrail.ModelFunc.
func (m *Model) ModelFunc() guardrail.ModelFunc { return m.Complete }
