package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

type echoParams struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo back"`
}

func TestTypedToolRegistry_SchemaAndInvocation(t *testing.T) {
	registry := NewTypedToolRegistry()
	AddTool(registry, "echo", "Echo back the input text", func(ctx context.Context, p echoParams) (string, error) {
		return fmt.Sprintf("Echo: %s", p.Text), nil
	})

	tools := registry.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(tools[0].InputSchema, &schema))
	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "text")

	result, err := registry.HandleToolCall(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Echo: hi", result.Content[0].Text)
}

func TestTypedToolRegistry_MalformedArgsIsError(t *testing.T) {
	registry := NewTypedToolRegistry()
	AddTool(registry, "echo", "Echo", func(ctx context.Context, p echoParams) (string, error) {
		return p.Text, nil
	})

	_, err := registry.HandleToolCall(context.Background(), "echo", json.RawMessage(`{not json}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
}

func TestTypedToolRegistry_UnknownTool(t *testing.T) {
	registry := NewTypedToolRegistry()
	result, err := registry.HandleToolCall(context.Background(), "missing", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "Unknown tool: missing")
}

func TestMCPMessage_ToolsListAndCall(t *testing.T) {
	registry := NewTypedToolRegistry()
	AddTool(registry, "echo", "Echo", func(ctx context.Context, p echoParams) (string, error) {
		return "Echo: " + p.Text, nil
	})

	tr, proc, sent := newHarness(t)
	defer tr.Close()
	tr.RegisterMCPServer("demo", registry)

	proc.pushLine(`{"type":"control_request","request_id":"m1","request":{"subtype":"mcp_message","server_name":"demo","message":{"jsonrpc":"2.0","id":1,"method":"tools/list"}}}`)
	line := waitForLine(t, sent)

	var resp protocol.ControlResponse
	require.NoError(t, json.Unmarshal(line, &resp))
	assert.Equal(t, "success", resp.Response.Subtype)

	proc.pushLine(`{"type":"control_request","request_id":"m2","request":{"subtype":"mcp_message","server_name":"demo","message":{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}}}`)
	line2 := waitForLine(t, sent)

	var resp2 protocol.ControlResponse
	require.NoError(t, json.Unmarshal(line2, &resp2))
	assert.Equal(t, "m2", resp2.Response.RequestID)
}
