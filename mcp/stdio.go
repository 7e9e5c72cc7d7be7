package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/logger"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var _ ToolInvoker = (*StdioClient)(nil)

// StdioClient runs a tool server as a local subprocess and talks to it over
// stdin/stdout. It exposes the same ToolInvoker surface as the HTTP client,
// so the orchestrator does not care which transport is configured.
type StdioClient struct {
	cmd  *exec.Cmd
	conn *mcpsdk.ClientSession
	log  *logger.Logger
}

// NewStdioClient starts the server subprocess and connects to it. Unlike the
// HTTP client the handshake happens eagerly here: the SDK performs it as part
// of Connect, and a subprocess that cannot start is not worth deferring.
func NewStdioClient(command string, args []string, log *logger.Logger) (*StdioClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	conn, err := client.Connect(context.Background(), mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.WrapKind(err, errors.KindTransport, "connecting to tool server %q", command)
	}

	return &StdioClient{
		cmd:  cmd,
		conn: conn,
		log:  log.With("component", "mcp-stdio"),
	}, nil
}

// ListTools walks the paginated tool catalog to the end.
func (s *StdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	params := &mcpsdk.ListToolsParams{}
	for {
		page, err := s.conn.ListTools(ctx, params)
		if err != nil {
			return nil, errors.WrapKind(err, errors.KindTransport, "listing tools")
		}
		for _, t := range page.Tools {
			schema, err := json.Marshal(t.InputSchema)
			if err != nil {
				return nil, errors.WrapKind(err, errors.KindProtocol, "encoding schema for tool %q", t.Name)
			}
			tools = append(tools, ToolInfo{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			})
		}
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	return tools, nil
}

// CallTool invokes one tool and returns the concatenated text content of its
// result.
func (s *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := s.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.WrapKind(err, errors.KindTransport, "calling tool %q", name)
	}

	var text string
	for _, block := range result.Content {
		if tc, ok := block.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	if result.IsError {
		return "", errors.WithKind(errors.KindProtocol, "tool %q reported an error: %s", name, text)
	}
	return text, nil
}

// Close terminates the subprocess.
func (s *StdioClient) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Kill()
	}
	return nil
}
