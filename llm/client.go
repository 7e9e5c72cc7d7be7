package llm

import (
	"context"
	"encoding/json"

	"github.com/danupratama/lunasin/errors"
)

// CompletionRequest is a single system+user prompt pair sent to a completion
// provider. When Schema is set the provider is asked for strict structured
// output and the response is validated against it before being returned.
type CompletionRequest struct {
	System      string
	User        string
	Schema      *Schema
	Temperature float64
}

// Client is the interface for interacting with a completion provider.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
}

// checkRequest enforces the shared input constraints before any provider
// does work.
func checkRequest(req CompletionRequest) error {
	if req.User == "" {
		return errors.WithKind(errors.KindValidation, "user prompt must not be empty")
	}
	return nil
}

// finishCompletion applies the shared tail of every provider: an empty body
// is a fatal empty-completion error, and schema-bearing requests are
// validated before the raw JSON is surfaced.
func finishCompletion(req CompletionRequest, content string) (json.RawMessage, error) {
	if content == "" {
		return nil, errors.WithKind(errors.KindEmptyCompletion, "provider returned no content")
	}
	raw := json.RawMessage(content)
	if req.Schema != nil {
		if err := req.Schema.Validate(raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// wrapUpstream classifies a provider transport failure, distinguishing the
// configured timeout bound from other upstream errors.
func wrapUpstream(ctx context.Context, err error, provider string) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return errors.WrapKind(err, errors.KindTimeout, "%s did not respond in time", provider)
	}
	return errors.WrapKind(err, errors.KindTransport, "%s request failed", provider)
}

// MockClient returns a canned response. Used by tests and as the fallback
// provider when no real one is configured.
type MockClient struct {
	Response json.RawMessage
	Err      error
}

func (m *MockClient) Complete(_ context.Context, req CompletionRequest) (json.RawMessage, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return finishCompletion(req, string(m.Response))
}
