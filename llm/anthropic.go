package llm

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/danupratama/lunasin/errors"
)

// AnthropicClient is a client for the Anthropic Messages API. The API has no
// json_schema response format, so schema-constrained requests are expressed
// as a single forced tool whose input schema is the response schema; the
// tool_use input block is the structured result.
type AnthropicClient struct {
	client  *anthropic.Client
	apiKey  string
	model   string
	timeout time.Duration
}

// NewAnthropicClient creates a new AnthropicClient. The ANTHROPIC_API_KEY
// environment variable supplies the credential, checked on first call.
func NewAnthropicClient(modelName string, timeout time.Duration) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:  os.Getenv("ANTHROPIC_API_KEY"),
		model:   modelName,
		timeout: timeout,
	}
	if c.apiKey == "" {
		return c
	}
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))
	c.client = &client
	return c
}

// Complete sends the prompt pair to Anthropic.
func (a *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if a.client == nil {
		return nil, errors.WithKind(errors.KindConfig, "ANTHROPIC_API_KEY environment variable not set")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   1024,
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Schema != nil {
		tool := anthropic.ToolParam{
			Name:        req.Schema.Name,
			Description: anthropic.String(req.Schema.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: req.Schema.JSONMap()["properties"],
			},
		}
		params.Tools = []anthropic.ToolUnionParam{{OfTool: &tool}}
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.Schema.Name},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapUpstream(ctx, err, "Anthropic")
	}

	content := extractAnthropicContent(resp)
	return finishCompletion(req, content)
}

// extractAnthropicContent prefers the forced tool_use input block and falls
// back to concatenated text.
func extractAnthropicContent(resp *anthropic.Message) string {
	var text string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			return string(b.Input)
		case anthropic.TextBlock:
			text += b.Text
		}
	}
	return text
}
