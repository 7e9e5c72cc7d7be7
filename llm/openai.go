package llm

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIClient is a client for the OpenAI Chat Completion API. It is the
// default provider because it supports strict json_schema response formats
// natively, which means the model enforces the schema at generation time.
type OpenAIClient struct {
	client  *openai.Client
	apiKey  string
	model   string
	timeout time.Duration
}

// NewOpenAIClient creates a new OpenAIClient. The OPENAI_API_KEY environment
// variable supplies the credential and OPENAI_BASE_URL optionally points at a
// compatible endpoint. A missing key is not an error here; it surfaces as a
// config error on the first call, per the lazy credential policy.
func NewOpenAIClient(modelName string, timeout time.Duration) *OpenAIClient {
	c := &OpenAIClient{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		model:   modelName,
		timeout: timeout,
	}
	if c.apiKey == "" {
		return c
	}

	options := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)
	c.client = &client
	return c
}

// Complete sends the prompt pair to OpenAI and returns the raw JSON content
// of the first choice, schema-validated when a schema was supplied.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if o.client == nil {
		return nil, errors.WithKind(errors.KindConfig, "OPENAI_API_KEY environment variable not set")
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(req.Temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.JSONMap(),
					Strict:      openai.Bool(true),
				},
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapUpstream(ctx, err, "OpenAI")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.WithKind(errors.KindEmptyCompletion, "OpenAI returned no choices")
	}
	return finishCompletion(req, resp.Choices[0].Message.Content)
}
