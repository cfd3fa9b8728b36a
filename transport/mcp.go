package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// SDKToolHandler is what a registered MCP server name answers tools/list
// and tools/call with. TypedToolRegistry is the generics-based
// implementation most callers use; a caller with unusual needs (streaming,
// stateful tools) can implement this directly instead.
type SDKToolHandler interface {
	Tools() []protocol.MCPToolDefinition
	HandleToolCall(ctx context.Context, name string, args json.RawMessage) (*protocol.MCPToolCallResult, error)
}

// RegisterMCPServer installs handler under name. An mcp_message control
// request naming a server with no registered handler is answered with a
// JSON-RPC error rather than silently dropped.
func (t *Transport) RegisterMCPServer(name string, handler SDKToolHandler) {
	t.mcpMu.Lock()
	t.mcpHandlers[name] = handler
	t.mcpMu.Unlock()
}

func (t *Transport) mcpHandler(name string) (SDKToolHandler, bool) {
	t.mcpMu.Lock()
	defer t.mcpMu.Unlock()
	h, ok := t.mcpHandlers[name]
	return h, ok
}

// handleMCPMessage tunnels a JSON-RPC message addressed to an SDK MCP
// server through the control protocol. tools/call runs on its own
// goroutine with panic recovery, since a tool handler is arbitrary host
// code the transport cannot otherwise protect itself against; every other
// method answers synchronously on the inbound worker.
func (t *Transport) handleMCPMessage(requestID string, req protocol.MCPMessageRequest) {
	var rpc protocol.JSONRPCRequest
	if err := json.Unmarshal(req.Message, &rpc); err != nil {
		t.sendControlError(requestID, fmt.Sprintf("malformed mcp_message: %v", err))
		return
	}

	handler, ok := t.mcpHandler(req.ServerName)
	if !ok {
		t.sendMCPErrorResponse(requestID, &protocol.JSONRPCError{
			Code:    -32601,
			Message: fmt.Sprintf("no MCP server registered under name %q", req.ServerName),
		})
		return
	}

	switch rpc.Method {
	case "initialize":
		t.sendMCPResponse(requestID, protocol.MCPInitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    protocol.MCPServerCapabilities{Tools: &protocol.MCPToolsCapability{}},
			ServerInfo:      protocol.MCPServerInfo{Name: req.ServerName, Version: sdkVersion},
		})
	case "notifications/initialized":
		t.sendControlSuccess(requestID, map[string]interface{}{})
	case "tools/list":
		t.sendMCPResponse(requestID, protocol.MCPToolsListResult{Tools: handler.Tools()})
	case "tools/call":
		go t.runToolCall(requestID, handler, rpc)
	default:
		t.sendMCPErrorResponse(requestID, &protocol.JSONRPCError{
			Code:    -32601,
			Message: fmt.Sprintf("unknown MCP method %q", rpc.Method),
		})
	}
}

func (t *Transport) runToolCall(requestID string, handler SDKToolHandler, rpc protocol.JSONRPCRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			t.sendMCPResponse(requestID, protocol.MCPToolCallResult{
				Content: []protocol.MCPContentItem{{Type: "text", Text: fmt.Sprintf("tool panicked: %v", rec)}},
				IsError: true,
			})
		}
	}()

	var params protocol.MCPToolsCallParams
	if err := json.Unmarshal(rpc.Params, &params); err != nil {
		t.sendMCPErrorResponse(requestID, &protocol.JSONRPCError{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)})
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.defaultTimeout)
	defer cancel()

	result, err := handler.HandleToolCall(ctx, params.Name, params.Arguments)
	if err != nil {
		t.sendMCPResponse(requestID, protocol.MCPToolCallResult{
			Content: []protocol.MCPContentItem{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
		return
	}
	t.sendMCPResponse(requestID, *result)
}

func (t *Transport) sendMCPResponse(requestID string, result interface{}) {
	resp := protocol.NewMCPResponse(requestID, result)
	b, err := resp.Marshal()
	if err != nil {
		t.recordSessionError(fmt.Errorf("marshal mcp response: %w", err))
		return
	}
	_ = t.enqueueOutbound(b)
}

func (t *Transport) sendMCPErrorResponse(requestID string, rpcErr *protocol.JSONRPCError) {
	resp := protocol.NewMCPErrorResponse(requestID, rpcErr)
	b, err := resp.Marshal()
	if err != nil {
		t.recordSessionError(fmt.Errorf("marshal mcp error response: %w", err))
		return
	}
	_ = t.enqueueOutbound(b)
}

// toolRegistration is the type-erased closure AddTool installs: args
// arrive as raw JSON and are unmarshaled into the registration's own T
// before the caller's typed handler ever runs.
type toolRegistration struct {
	def     protocol.MCPToolDefinition
	invoke  func(ctx context.Context, args json.RawMessage) (*protocol.MCPToolCallResult, error)
}

// TypedToolRegistry is an SDKToolHandler built from Go structs: each tool's
// input schema is reflected from its parameter type via
// github.com/invopop/jsonschema, so a caller never writes a JSON Schema by
// hand.
type TypedToolRegistry struct {
	mu    sync.Mutex
	tools map[string]*toolRegistration
	order []string
}

// NewTypedToolRegistry returns an empty registry.
func NewTypedToolRegistry() *TypedToolRegistry {
	return &TypedToolRegistry{tools: make(map[string]*toolRegistration)}
}

// AddTool registers a tool named name, with its input schema reflected
// from T and its body running handler. T should be a struct with JSON
// tags; schema generation happens once, at registration time, not per
// call. Returns registry so registrations can chain.
func AddTool[T any](registry *TypedToolRegistry, name, description string, handler func(ctx context.Context, input T) (string, error)) *TypedToolRegistry {
	schema := generateSchema[T]()

	invoke := func(ctx context.Context, args json.RawMessage) (*protocol.MCPToolCallResult, error) {
		var input T
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}

		text, err := handler(ctx, input)
		if err != nil {
			return &protocol.MCPToolCallResult{
				Content: []protocol.MCPContentItem{{Type: "text", Text: err.Error()}},
				IsError: true,
			}, nil
		}
		return &protocol.MCPToolCallResult{Content: []protocol.MCPContentItem{{Type: "text", Text: text}}}, nil
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.tools[name]; !exists {
		registry.order = append(registry.order, name)
	}
	registry.tools[name] = &toolRegistration{
		def: protocol.MCPToolDefinition{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		invoke: invoke,
	}
	return registry
}

// generateSchema reflects a JSON Schema for T, expanding the struct inline
// rather than emitting a $defs/$ref pair — a single flat tool input has no
// use for schema reuse across definitions. Schema generation failing means
// T itself is not reflectable, which is a programming error, not a runtime
// condition, so this panics like the teacher's version rather than
// threading an error through every call site.
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	var zero T
	schema := reflector.Reflect(zero)
	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("transport: failed to generate schema for type %T: %v", zero, err))
	}
	return b
}

// Tools implements SDKToolHandler.
func (r *TypedToolRegistry) Tools() []protocol.MCPToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.MCPToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// HandleToolCall implements SDKToolHandler.
func (r *TypedToolRegistry) HandleToolCall(ctx context.Context, name string, args json.RawMessage) (*protocol.MCPToolCallResult, error) {
	r.mu.Lock()
	reg, ok := r.tools[name]
	r.mu.Unlock()
	if !ok {
		return &protocol.MCPToolCallResult{
			Content: []protocol.MCPContentItem{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", name)}},
			IsError: true,
		}, nil
	}
	return reg.invoke(ctx, args)
}
