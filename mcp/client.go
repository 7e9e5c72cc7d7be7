// Package mcp implements a JSON-RPC 2.0 client for a stateful remote
// tool-invocation service. The remote side requires an initialize handshake
// before any other call succeeds; the client performs it lazily, caches the
// resulting session token for the process lifetime and guarantees that
// concurrent first callers share a single in-flight initialize.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	jsonrpcVersion  = "2.0"
	protocolVersion = "2025-03-26"
	sessionHeader   = "Mcp-Session-Id"

	methodInitialize = "initialize"
	methodToolsList  = "tools/list"
	methodToolsCall  = "tools/call"

	clientName    = "lunasin"
	clientVersion = "0.1.0"
)

// rpcRequest is the JSON-RPC 2.0 request envelope. Every exchange gets a
// fresh correlation id.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope. A valid response carries
// either Result or Error; one missing both is a transport failure.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ToolInfo describes one remote tool as reported by tools/list.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolInvoker is the tool surface the orchestrator consumes. Both the HTTP
// client and the stdio subprocess client satisfy it.
type ToolInvoker interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

var _ ToolInvoker = (*Client)(nil)

// Client speaks JSON-RPC 2.0 over a single HTTP endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger

	mu        sync.Mutex
	sessionID string
	initGroup singleflight.Group
}

// NewClient builds a protocol client for the given endpoint. The bearer
// credential comes from LUNASIN_MCP_API_KEY; like the endpoint it is checked
// on first use, not here.
func NewClient(endpoint string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     os.Getenv("LUNASIN_MCP_API_KEY"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("component", "mcp"),
	}
}

// Call performs one JSON-RPC exchange. Any method other than initialize
// first ensures a session exists and attaches its token.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	session := ""
	if method != methodInitialize {
		s, err := c.ensureSession(ctx)
		if err != nil {
			return nil, err
		}
		session = s
	}
	result, _, err := c.exchange(ctx, method, params, session)
	return result, err
}

// ensureSession returns the cached session token, establishing it on first
// use. Concurrent callers arriving before the first initialize completes all
// await the single in-flight attempt; on failure nothing is cached, so a
// later call retries, and on success the token is kept for the process
// lifetime until ClearSession.
func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.sessionID != "" {
		s := c.sessionID
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	// The winning caller's context drives the shared initialize exchange.
	v, err, _ := c.initGroup.Do("initialize", func() (interface{}, error) {
		c.mu.Lock()
		if c.sessionID != "" {
			s := c.sessionID
			c.mu.Unlock()
			return s, nil
		}
		c.mu.Unlock()

		token, err := c.initialize(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sessionID = token
		c.mu.Unlock()
		c.log.Debug("session established")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// initialize performs the session handshake. The token is discovered either
// in the result's sessionId field or in the transport-level session header;
// a handshake that succeeds without yielding one is a distinct failure.
func (c *Client) initialize(ctx context.Context) (string, error) {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	result, header, err := c.exchange(ctx, methodInitialize, params, "")
	if err != nil {
		return "", err
	}

	var res struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(result, &res)
	if res.SessionID != "" {
		return res.SessionID, nil
	}
	if token := header.Get(sessionHeader); token != "" {
		return token, nil
	}
	return "", errors.WithKind(errors.KindMissingSession, "initialize succeeded but produced no session token")
}

// ClearSession drops the cached token so the next call re-initializes. The
// client never re-derives a session on its own.
func (c *Client) ClearSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}

// exchange is the single request/response primitive under everything else.
func (c *Client) exchange(ctx context.Context, method string, params interface{}, session string) (json.RawMessage, http.Header, error) {
	if c.endpoint == "" {
		return nil, nil, errors.WithKind(errors.KindConfig, "protocol endpoint is not configured")
	}
	if c.apiKey == "" {
		return nil, nil, errors.WithKind(errors.KindConfig, "LUNASIN_MCP_API_KEY environment variable not set")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "marshaling %s request", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "building %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, nil, errors.WrapKind(err, errors.KindTimeout, "%s call timed out", method)
		}
		return nil, nil, errors.WrapKind(err, errors.KindTransport, "%s call failed", method)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.WrapKind(err, errors.KindTransport, "reading %s response", method)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, errors.WithKind(errors.KindTransport, "%s returned HTTP %d: %s", method, resp.StatusCode, string(payload))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, errors.WrapKind(err, errors.KindTransport, "%s response body is not valid JSON-RPC", method)
	}
	if envelope.Error != nil {
		return nil, nil, errors.WithKind(errors.KindProtocol, "%s failed with code %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if envelope.Result == nil {
		return nil, nil, errors.WithKind(errors.KindTransport, "%s response carried neither result nor error", method)
	}
	return envelope.Result, resp.Header, nil
}

// ListTools returns the remote tool catalog via tools/list.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.Call(ctx, methodToolsList, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.WrapKind(err, errors.KindProtocol, "tools/list result is malformed")
	}
	return out.Tools, nil
}

// CallTool invokes one remote tool via tools/call and returns the
// concatenated text content of its result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	raw, err := c.Call(ctx, methodToolsCall, map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.WrapKind(err, errors.KindProtocol, "tools/call result is malformed")
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if out.IsError {
		return "", errors.WithKind(errors.KindProtocol, "tool %q reported an error: %s", name, text)
	}
	return text, nil
}
