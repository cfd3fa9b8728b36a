package protocol

import (
	"encoding/json"
	"fmt"
)

// ControlRequest wraps a control_request envelope received from the CLI,
// or being built to send to it.
type ControlRequest struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// MsgType returns the message type.
func (m ControlRequest) MsgType() MessageType { return MessageTypeControlRequest }

// ParsedRequest parses the inner request from a ControlRequest.
func (m ControlRequest) ParsedRequest() (ControlRequestData, error) {
	return ParseControlRequest(m.Request)
}

// ControlRequestSubtype is the discriminator on the inner "request" payload.
type ControlRequestSubtype string

const (
	ControlRequestSubtypeInitialize         ControlRequestSubtype = "initialize"
	ControlRequestSubtypeInterrupt          ControlRequestSubtype = "interrupt"
	ControlRequestSubtypeSetPermissionMode  ControlRequestSubtype = "set_permission_mode"
	ControlRequestSubtypeSetModel           ControlRequestSubtype = "set_model"
	ControlRequestSubtypeHookCallback       ControlRequestSubtype = "hook_callback"
	ControlRequestSubtypeCanUseTool         ControlRequestSubtype = "can_use_tool"
	ControlRequestSubtypeMCPMessage         ControlRequestSubtype = "mcp_message"
)

// ControlRequestData is the interface every control request subtype
// variant, including Unknown, implements.
type ControlRequestData interface {
	Subtype() ControlRequestSubtype
}

// InitializeRequest is host→CLI: advertises the host's hook configuration.
type InitializeRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	Hooks        map[string][]HookMatcherConfig `json:"hooks,omitempty"`
}

func (r InitializeRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// InterruptRequest is host→CLI: cooperative stop of the current turn.
type InterruptRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
}

func (r InterruptRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// SetPermissionModeRequest is host→CLI: changes the permission mode.
type SetPermissionModeRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	Mode         string                `json:"mode"`
}

func (r SetPermissionModeRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// SetModelRequest is host→CLI: switches the active model.
type SetModelRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	Model        string                `json:"model"`
}

func (r SetModelRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// HookCallbackRequest is CLI→host: invoke a previously registered hook.
type HookCallbackRequest struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	CallbackID   string                `json:"callback_id"`
	Input        json.RawMessage       `json:"input"`
	ToolUseID    *string               `json:"tool_use_id,omitempty"`
}

func (r HookCallbackRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// CanUseToolRequest is CLI→host: asks whether a tool may run.
type CanUseToolRequest struct {
	SubtypeField          ControlRequestSubtype  `json:"subtype"`
	ToolName              string                 `json:"tool_name"`
	Input                 map[string]interface{} `json:"input"`
	PermissionSuggestions []interface{}          `json:"permission_suggestions,omitempty"`
	BlockedPath           *string                `json:"blocked_path,omitempty"`
}

func (r CanUseToolRequest) Subtype() ControlRequestSubtype { return r.SubtypeField }

// Unknown preserves a control request whose subtype this version of the
// protocol does not recognize, rather than rejecting it. This is what lets
// the codec stay forward compatible with a newer CLI.
type Unknown struct {
	SubtypeField ControlRequestSubtype `json:"subtype"`
	Raw          json.RawMessage       `json:"-"`
}

func (r Unknown) Subtype() ControlRequestSubtype { return r.SubtypeField }

// ParseControlRequest discriminates the inner request payload by its
// "subtype" field. Unknown subtypes come back as Unknown{subtype, raw}
// rather than an error.
func ParseControlRequest(data json.RawMessage) (ControlRequestData, error) {
	var base struct {
		Subtype ControlRequestSubtype `json:"subtype"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &JSONDecodeError{Cause: err, Raw: data}
	}

	switch base.Subtype {
	case ControlRequestSubtypeInitialize:
		var r InitializeRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeInterrupt:
		var r InterruptRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeSetPermissionMode:
		var r SetPermissionModeRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeSetModel:
		var r SetModelRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeHookCallback:
		var r HookCallbackRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeCanUseTool:
		var r CanUseToolRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	case ControlRequestSubtypeMCPMessage:
		var r MCPMessageRequest
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, &JSONDecodeError{Cause: err, Raw: data}
		}
		return r, nil
	default:
		return Unknown{SubtypeField: base.Subtype, Raw: data}, nil
	}
}

// ToolUseRequest is the flattened shape of a can_use_tool control request
// that callers outside this package want without re-discriminating
// ControlRequestData themselves.
type ToolUseRequest struct {
	RequestID string
	ToolName  string
	Input     map[string]interface{}
}

// ParseToolUseRequest extracts a ToolUseRequest from msg if its inner
// request is a can_use_tool request, and nil otherwise (including on a
// parse failure) — this is a narrowing helper, not a strict parser.
func ParseToolUseRequest(msg ControlRequest) *ToolUseRequest {
	data, err := ParseControlRequest(msg.Request)
	if err != nil {
		return nil
	}
	cu, ok := data.(CanUseToolRequest)
	if !ok {
		return nil
	}
	return &ToolUseRequest{RequestID: msg.RequestID, ToolName: cu.ToolName, Input: cu.Input}
}

// ControlResponse wraps a control_response envelope.
type ControlResponse struct {
	Type     MessageType            `json:"type"`
	Response ControlResponsePayload `json:"response"`
}

func (m ControlResponse) MsgType() MessageType { return MessageTypeControlResponse }

// Marshal serializes the control response to a JSON line ready to write to the CLI.
func (m ControlResponse) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal ControlResponse: %w", err)
	}
	return b, nil
}

// ControlResponsePayload is the inner response payload: subtype is
// "success" or "error".
type ControlResponsePayload struct {
	Subtype   string      `json:"subtype"`
	RequestID string      `json:"request_id"`
	Response  interface{} `json:"response,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// PermissionDecisionValue is the wire decision for a can_use_tool response.
type PermissionDecisionValue string

const (
	PermissionDecisionValueAllow PermissionDecisionValue = "allow"
	PermissionDecisionValueDeny  PermissionDecisionValue = "deny"
)

// PermissionResultAllow allows tool execution. UpdatedInput is omitted
// entirely when there is nothing to change (unlike the hook-output
// equivalent, a can_use_tool allow has no "must be present" wire rule).
type PermissionResultAllow struct {
	Decision     PermissionDecisionValue `json:"decision"`
	UpdatedInput map[string]interface{}  `json:"updated_input,omitempty"`
}

// PermissionResultDeny denies tool execution.
type PermissionResultDeny struct {
	Decision  PermissionDecisionValue `json:"decision"`
	Reason    string                  `json:"reason,omitempty"`
	Interrupt bool                    `json:"interrupt,omitempty"`
}

// ControlRequestToSend is a control request the host sends to the CLI.
type ControlRequestToSend struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id"`
	Request   interface{} `json:"request"`
}

// Marshal serializes the control request to a JSON line ready to write to the CLI.
func (m ControlRequestToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal ControlRequestToSend: %w", err)
	}
	return b, nil
}

// SetPermissionModeRequestToSend is the request body for setting permission mode.
type SetPermissionModeRequestToSend struct {
	Subtype string `json:"subtype"`
	Mode    string `json:"mode"`
}

// InterruptRequestToSend is the request body for interrupting.
type InterruptRequestToSend struct {
	Subtype string `json:"subtype"`
}

// SetModelRequestToSend is the request body for setting the model.
type SetModelRequestToSend struct {
	Subtype string `json:"subtype"`
	Model   string `json:"model"`
}
