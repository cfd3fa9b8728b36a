package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RecordKind discriminates the three cases a parsed inbound record can take.
type RecordKind int

const (
	// RecordRegularMessage is any record whose "type" is not one of the two
	// control-protocol envelope types.
	RecordRegularMessage RecordKind = iota
	RecordControlRequest
	RecordControlResponse
)

// ParsedRecord is the tagged variant returned by Parse: exactly one of
// RegularMessage, ControlRequest, or ControlResponse is meaningful,
// selected by Kind.
type ParsedRecord struct {
	Kind RecordKind

	// RegularMessage holds the raw bytes of a non-control record; body
	// parsing beyond the envelope is delegated to a collaborator parser
	// this transport does not own (spec.md §1), which is why this is raw
	// JSON rather than a concrete struct.
	RegularMessage json.RawMessage

	ControlRequestEnvelope  *ControlRequest
	ControlResponseEnvelope *ControlResponse

	// Raw is the original record bytes, preserved for diagnostics even
	// when delegated parsing below the envelope layer fails.
	Raw []byte
}

type envelopeHeader struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}

// Parse classifies and parses a single newline-delimited record. Reading is
// unknown-fields-tolerant and case-sensitive. It returns a *JSONDecodeError
// for malformed JSON and a *MessageParseError for a missing/blank input,
// missing "type", or a control_request without "request_id".
func Parse(line []byte) (ParsedRecord, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return ParsedRecord{}, &MessageParseError{Reason: "null_or_blank", Raw: line}
	}

	var hdr envelopeHeader
	if err := json.Unmarshal(trimmed, &hdr); err != nil {
		return ParsedRecord{}, &JSONDecodeError{Cause: err, Raw: trimmed}
	}
	if hdr.Type == "" {
		return ParsedRecord{}, &MessageParseError{Reason: "type", Raw: trimmed}
	}

	switch hdr.Type {
	case string(MessageTypeControlRequest):
		if hdr.RequestID == "" {
			return ParsedRecord{}, &MessageParseError{Reason: "request_id", Raw: trimmed}
		}
		var req ControlRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return ParsedRecord{}, &JSONDecodeError{Cause: err, Raw: trimmed}
		}
		return ParsedRecord{Kind: RecordControlRequest, ControlRequestEnvelope: &req, Raw: trimmed}, nil
	case string(MessageTypeControlResponse):
		var resp ControlResponse
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return ParsedRecord{}, &JSONDecodeError{Cause: err, Raw: trimmed}
		}
		return ParsedRecord{Kind: RecordControlResponse, ControlResponseEnvelope: &resp, Raw: trimmed}, nil
	default:
		return ParsedRecord{Kind: RecordRegularMessage, RegularMessage: json.RawMessage(trimmed), Raw: trimmed}, nil
	}
}

// IsControlRequest reports whether line looks like a control_request
// envelope. It never panics or returns an error; malformed input is simply
// not a control request.
func IsControlRequest(line []byte) bool {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return false
	}
	var hdr envelopeHeader
	if err := json.Unmarshal(trimmed, &hdr); err != nil {
		return false
	}
	return hdr.Type == string(MessageTypeControlRequest)
}

// ExtractRequestID returns the envelope's request_id, or ("", false) if the
// line is malformed or carries no request_id. Never panics.
func ExtractRequestID(line []byte) (string, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return "", false
	}
	var hdr envelopeHeader
	if err := json.Unmarshal(trimmed, &hdr); err != nil {
		return "", false
	}
	if strings.TrimSpace(hdr.RequestID) == "" {
		return "", false
	}
	return hdr.RequestID, true
}
