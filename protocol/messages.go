package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates between message kinds.
type MessageType string

const (
	MessageTypeControlRequest  MessageType = "control_request"
	MessageTypeControlResponse MessageType = "control_response"
)

// Message is the interface satisfied by the control-protocol envelope
// types. Parsing of ordinary assistant/user/result/stream_event message
// bodies is explicitly out of scope (spec.md §1) and delegated to a
// collaborator parser this transport does not own.
type Message interface {
	MsgType() MessageType
}

// UserMessageToSend is what we send to the CLI.
type UserMessageToSend struct {
	Message   UserMessageToSendInner `json:"message"`
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
}

// UserMessageToSendInner is the inner part of messages we send.
type UserMessageToSendInner struct {
	Content interface{} `json:"content"`
	Role    string      `json:"role"`
}

// Marshal serializes the message to a JSON line ready to write to the CLI.
func (m UserMessageToSend) Marshal() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal UserMessageToSend: %w", err)
	}
	return b, nil
}
