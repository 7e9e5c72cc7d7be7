package llm

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient is a client for the Google Gemini API. Schema-constrained
// requests use the native ResponseSchema plus an application/json response
// MIME type.
type GeminiClient struct {
	apiKey  string
	model   string
	timeout time.Duration

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient creates a new GeminiClient. The GEMINI_API_KEY environment
// variable supplies the credential; the underlying client is built lazily on
// the first call because genai.NewClient needs a context.
func NewGeminiClient(modelName string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		apiKey:  os.Getenv("GEMINI_API_KEY"),
		model:   modelName,
		timeout: timeout,
	}
}

// Complete sends the prompt pair to Gemini.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if g.apiKey == "" {
		return nil, errors.WithKind(errors.KindConfig, "GEMINI_API_KEY environment variable not set")
	}

	g.once.Do(func() {
		client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
		if err != nil {
			g.initErr = errors.WrapKind(err, errors.KindConfig, "failed to create genai client")
			return
		}
		g.client = client
	})
	if g.initErr != nil {
		return nil, g.initErr
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(float32(req.Temperature))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return nil, wrapUpstream(ctx, err, "Gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.WithKind(errors.KindEmptyCompletion, "Gemini returned no candidates")
	}

	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content += string(text)
		}
	}
	return finishCompletion(req, content)
}

func toGenaiSchema(s *Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, p := range s.Properties {
		prop := &genai.Schema{Description: p.Description, Enum: p.Enum}
		switch p.Type {
		case TypeNumber:
			prop.Type = genai.TypeNumber
		case TypeInteger:
			prop.Type = genai.TypeInteger
		case TypeBoolean:
			prop.Type = genai.TypeBoolean
		default:
			prop.Type = genai.TypeString
		}
		props[name] = prop
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   s.Required,
	}
}
