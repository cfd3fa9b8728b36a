package protocol

// NewUserTextMessage constructs a UserMessageToSend with a plain text string.
func NewUserTextMessage(text string) UserMessageToSend {
	return UserMessageToSend{
		Type: "user",
		Message: UserMessageToSendInner{
			Role:    "user",
			Content: text,
		},
	}
}

// NewPermissionAllow constructs a control_response that grants tool
// execution. updatedInput may be nil when the tool call needs no changes.
func NewPermissionAllow(requestID string, updatedInput map[string]interface{}) ControlResponse {
	result := PermissionResultAllow{
		Decision:     PermissionDecisionValueAllow,
		UpdatedInput: updatedInput,
	}
	return ControlResponse{
		Type: MessageTypeControlResponse,
		Response: ControlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  result,
		},
	}
}

// NewPermissionDeny constructs a control_response that blocks tool
// execution. interrupt signals the CLI to stop the current turn rather than
// continue after the denial.
func NewPermissionDeny(requestID string, reason string, interrupt bool) ControlResponse {
	result := PermissionResultDeny{
		Decision:  PermissionDecisionValueDeny,
		Reason:    reason,
		Interrupt: interrupt,
	}
	return ControlResponse{
		Type: MessageTypeControlResponse,
		Response: ControlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  result,
		},
	}
}

// NewMCPResponse constructs a control_response wrapping an MCP JSON-RPC result.
// result is the JSON-RPC result value (e.g. MCPInitializeResult, MCPToolsListResult, MCPToolCallResult).
func NewMCPResponse(requestID string, result interface{}) ControlResponse {
	return ControlResponse{
		Type: MessageTypeControlResponse,
		Response: ControlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  MCPResponsePayload{MCPResponse: result},
		},
	}
}

// NewMCPErrorResponse constructs a control_response signaling an MCP JSON-RPC error.
func NewMCPErrorResponse(requestID string, err *JSONRPCError) ControlResponse {
	return ControlResponse{
		Type: MessageTypeControlResponse,
		Response: ControlResponsePayload{
			Subtype:   "error",
			RequestID: requestID,
			Error:     err.Message,
		},
	}
}

// NewInterrupt constructs a control_request that interrupts the current turn.
func NewInterrupt(requestID string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      "control_request",
		RequestID: requestID,
		Request:   InterruptRequestToSend{Subtype: string(ControlRequestSubtypeInterrupt)},
	}
}

// NewSetPermissionMode constructs a control_request that changes the CLI permission mode.
func NewSetPermissionMode(requestID, mode string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      "control_request",
		RequestID: requestID,
		Request:   SetPermissionModeRequestToSend{Subtype: string(ControlRequestSubtypeSetPermissionMode), Mode: mode},
	}
}

// NewSetModel constructs a control_request that switches the active model.
func NewSetModel(requestID, model string) ControlRequestToSend {
	return ControlRequestToSend{
		Type:      "control_request",
		RequestID: requestID,
		Request:   SetModelRequestToSend{Subtype: "set_model", Model: model},
	}
}
