package protocol

import "testing"

func TestParse_Classification(t *testing.T) {
	cases := []struct {
		name string
		line string
		want RecordKind
	}{
		{"regular", `{"type":"user","message":{"content":"hi"}}`, RecordRegularMessage},
		{"control_request", `{"type":"control_request","request_id":"r","request":{"subtype":"interrupt"}}`, RecordControlRequest},
		{"control_response", `{"type":"control_response","response":{"subtype":"success","request_id":"r","response":{}}}`, RecordControlResponse},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec, err := Parse([]byte(c.line))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if rec.Kind != c.want {
				t.Fatalf("got kind %v, want %v", rec.Kind, c.want)
			}
		})
	}
}

func TestParse_BlankRejected(t *testing.T) {
	_, err := Parse([]byte("   "))
	var perr *MessageParseError
	if err == nil {
		t.Fatal("expected error on blank input")
	}
	if !asMessageParseError(err, &perr) || perr.Reason != "null_or_blank" {
		t.Fatalf("got %v, want MessageParseError{null_or_blank}", err)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	var jerr *JSONDecodeError
	if !asJSONDecodeError(err, &jerr) {
		t.Fatalf("got %v, want JSONDecodeError", err)
	}
}

func TestParse_MissingType(t *testing.T) {
	_, err := Parse([]byte(`{"foo":"bar"}`))
	var perr *MessageParseError
	if !asMessageParseError(err, &perr) || perr.Reason != "type" {
		t.Fatalf("got %v, want MessageParseError{type}", err)
	}
}

func TestParse_ControlRequestMissingRequestID(t *testing.T) {
	_, err := Parse([]byte(`{"type":"control_request","request":{"subtype":"interrupt"}}`))
	var perr *MessageParseError
	if !asMessageParseError(err, &perr) || perr.Reason != "request_id" {
		t.Fatalf("got %v, want MessageParseError{request_id}", err)
	}
}

func TestIsControlRequest_NeverPanics(t *testing.T) {
	if IsControlRequest([]byte("not json")) {
		t.Fatal("malformed input must not classify as control request")
	}
	if IsControlRequest(nil) {
		t.Fatal("nil input must not classify as control request")
	}
	if !IsControlRequest([]byte(`{"type":"control_request","request_id":"r"}`)) {
		t.Fatal("expected control request classification")
	}
}

func TestExtractRequestID_NeverPanics(t *testing.T) {
	if id, ok := ExtractRequestID([]byte("garbage")); ok || id != "" {
		t.Fatalf("got (%q, %v), want (\"\", false)", id, ok)
	}
	id, ok := ExtractRequestID([]byte(`{"type":"control_response","response":{"request_id":"r9"}}`))
	if ok || id != "" {
		t.Fatalf("top-level request_id lookup only: got (%q, %v)", id, ok)
	}
	id, ok = ExtractRequestID([]byte(`{"type":"control_request","request_id":"r9"}`))
	if !ok || id != "r9" {
		t.Fatalf("got (%q, %v), want (\"r9\", true)", id, ok)
	}
}

// asMessageParseError and asJSONDecodeError avoid importing errors.As into
// every call site above; they mirror its behavior for these two leaf types.
func asMessageParseError(err error, target **MessageParseError) bool {
	if e, ok := err.(*MessageParseError); ok {
		*target = e
		return true
	}
	return false
}

func asJSONDecodeError(err error, target **JSONDecodeError) bool {
	if e, ok := err.(*JSONDecodeError); ok {
		*target = e
		return true
	}
	return false
}
