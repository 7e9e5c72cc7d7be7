package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/danupratama/lunasin/errors"
)

// BedrockClient is a client for Anthropic models on AWS Bedrock. The request
// body is the raw Anthropic messages format; schema-constrained requests use
// a forced tool, the same trick as the direct Anthropic client.
type BedrockClient struct {
	modelID string
	timeout time.Duration

	once    sync.Once
	client  *bedrockruntime.Client
	initErr error
}

// NewBedrockClient creates a new BedrockClient. AWS credentials come from the
// standard SDK resolution chain, loaded lazily on the first call.
func NewBedrockClient(modelID string, timeout time.Duration) *BedrockClient {
	return &BedrockClient{modelID: modelID, timeout: timeout}
}

// Complete sends the prompt pair to the model via Bedrock InvokeModel.
func (b *BedrockClient) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	b.once.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			b.initErr = errors.WrapKind(err, errors.KindConfig, "failed to load AWS config")
			return
		}
		b.client = bedrockruntime.NewFromConfig(cfg)
	})
	if b.initErr != nil {
		return nil, b.initErr
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildBedrockRequest(req))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal Bedrock request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, wrapUpstream(ctx, err, "Bedrock")
	}

	content, err := parseBedrockResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	return finishCompletion(req, content)
}

func buildBedrockRequest(req CompletionRequest) map[string]interface{} {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        1024,
		"temperature":       req.Temperature,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": req.User},
				},
			},
		},
	}
	if req.System != "" {
		request["system"] = req.System
	}
	if req.Schema != nil {
		request["tools"] = []map[string]interface{}{
			{
				"name":         req.Schema.Name,
				"description":  req.Schema.Description,
				"input_schema": req.Schema.JSONMap(),
			},
		}
		request["tool_choice"] = map[string]interface{}{
			"type": "tool",
			"name": req.Schema.Name,
		}
	}
	return request
}

// parseBedrockResponse prefers the forced tool_use input block and falls back
// to concatenated text.
func parseBedrockResponse(body []byte) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.WrapKind(err, errors.KindTransport, "failed to unmarshal Bedrock response")
	}
	if errMsg, ok := response["error"]; ok {
		return "", errors.WithKind(errors.KindProtocol, "Bedrock API error: %v", errMsg)
	}

	contentArray, ok := response["content"].([]interface{})
	if !ok {
		return "", nil
	}
	var text string
	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch itemMap["type"] {
		case "tool_use":
			input, err := json.Marshal(itemMap["input"])
			if err != nil {
				return "", errors.Wrapf(err, "failed to re-marshal tool input")
			}
			return string(input), nil
		case "text":
			if t, ok := itemMap["text"].(string); ok {
				text += t
			}
		}
	}
	return text, nil
}
