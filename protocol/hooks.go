package protocol

import "encoding/json"

// HookEventKind is the closed set of hook event kinds. The on-wire string is
// the kind spelled exactly as shown.
type HookEventKind string

const (
	HookEventPreToolUse       HookEventKind = "PreToolUse"
	HookEventPostToolUse      HookEventKind = "PostToolUse"
	HookEventUserPromptSubmit HookEventKind = "UserPromptSubmit"
	HookEventStop             HookEventKind = "Stop"
	HookEventSubagentStop     HookEventKind = "SubagentStop"
	HookEventPreCompact       HookEventKind = "PreCompact"
)

// HookInput is the tagged union of hook_callback payloads, keyed by
// HookEventName. Rather than one Go type per variant (which would need an
// interface plus a parser switch on the event kind),
// this follows the teacher's SystemMessage convention of one struct with
// every variant's fields present and optional: HookEventName says which
// fields are meaningful.
type HookInput struct {
	HookEventName  HookEventKind `json:"hook_event_name"`
	SessionID      string        `json:"session_id"`
	TranscriptPath string        `json:"transcript_path"`
	CWD            string        `json:"cwd"`
	PermissionMode string        `json:"permission_mode,omitempty"`

	// PreToolUse / PostToolUse
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse json.RawMessage `json:"tool_response,omitempty"` // PostToolUse only

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// Stop / SubagentStop
	StopHookActive bool `json:"stop_hook_active,omitempty"`

	// PreCompact
	Trigger            string `json:"trigger,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// PermissionDecision is the hook-specific permission steer.
type PermissionDecision string

const (
	PermissionDecisionAllow PermissionDecision = "allow"
	PermissionDecisionDeny  PermissionDecision = "deny"
	PermissionDecisionAsk   PermissionDecision = "ask"
)

// HookSpecificOutput carries the permission-steering fields a PreToolUse
// hook may attach to its output.
type HookSpecificOutput struct {
	HookEventName            HookEventKind          `json:"hook_event_name,omitempty"`
	PermissionDecision        PermissionDecision     `json:"permission_decision,omitempty"`
	PermissionDecisionReason  string                 `json:"permission_decision_reason,omitempty"`
	UpdatedInput              map[string]interface{} `json:"updated_input,omitempty"`
	AdditionalContext         string                 `json:"additional_context,omitempty"`
}

// HookOutput is the result of executing a hook callback. Every field is
// optional and omitted from the wire when zero.
type HookOutput struct {
	ContinueExecution *bool                `json:"continue,omitempty"`
	SuppressOutput    *bool                `json:"suppressOutput,omitempty"`
	StopReason        string               `json:"stopReason,omitempty"`
	Decision          string               `json:"decision,omitempty"` // "block" or omitted
	SystemMessage     string               `json:"systemMessage,omitempty"`
	Reason            string               `json:"reason,omitempty"`
	AsyncExecution    *bool                `json:"async,omitempty"`
	AsyncTimeout      *int                 `json:"asyncTimeout,omitempty"`
	HookSpecificOutput *HookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// boolPtr is a small constructor helper used throughout HookOutput builders.
func boolPtr(b bool) *bool { return &b }

// BlockHookOutput builds the HookOutput the registry returns when a hook
// wants to block the pending tool call (or, for a failing callback, when
// the registry itself must synthesize a response).
func BlockHookOutput(reason string) *HookOutput {
	return &HookOutput{
		ContinueExecution: boolPtr(false),
		Decision:          "block",
		Reason:            reason,
	}
}

// HookMatcherConfig is one entry of the initialize request's hooks map:
// a pattern, the hook callback IDs it groups, and their shared timeout.
type HookMatcherConfig struct {
	Matcher         string   `json:"matcher"`
	HookCallbackIDs []string `json:"hookCallbackIds"`
	Timeout         int      `json:"timeout"`
}
