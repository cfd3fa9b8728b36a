// Package permission implements the tool-permission policy layer: the
// pluggable decision function that answers a can_use_tool control request,
// plus a handful of built-in policies.
package permission

import (
	"context"
	"fmt"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// Result is a policy decision. Exactly one of Allow/Deny is populated,
// mirroring protocol.PermissionResultAllow/protocol.PermissionResultDeny.
type Result struct {
	Allowed      bool
	UpdatedInput map[string]interface{}
	Reason       string
	Interrupt    bool
}

// Allow constructs an allowing Result. updatedInput may be nil.
func Allow(updatedInput map[string]interface{}) Result {
	return Result{Allowed: true, UpdatedInput: updatedInput}
}

// Deny constructs a denying Result.
func Deny(reason string, interrupt bool) Result {
	return Result{Allowed: false, Reason: reason, Interrupt: interrupt}
}

// ToControlResponse converts a Result into the wire-level control_response
// for the given can_use_tool request_id.
func (r Result) ToControlResponse(requestID string) protocol.ControlResponse {
	if r.Allowed {
		return protocol.NewPermissionAllow(requestID, r.UpdatedInput)
	}
	return protocol.NewPermissionDeny(requestID, r.Reason, r.Interrupt)
}

// Context carries the information attached to a can_use_tool request
// beyond the tool name and input: the CLI's own permission suggestions and,
// when the request concerns a file path, the path it wants to check.
type Context struct {
	PermissionSuggestions []interface{}
	BlockedPath           *string
}

// FromCanUseToolRequest extracts a Context from the wire request.
func FromCanUseToolRequest(req protocol.CanUseToolRequest) Context {
	return Context{
		PermissionSuggestions: req.PermissionSuggestions,
		BlockedPath:           req.BlockedPath,
	}
}

// Policy decides whether a tool invocation may proceed. It is the host's
// single extension point for can_use_tool handling; a transport is
// constructed with zero or one Policy.
type Policy func(ctx context.Context, toolName string, input map[string]interface{}, pctx Context) (Result, error)

// AllowAll permits every tool unconditionally. This is the transport's
// implicit default when no Policy is installed.
func AllowAll() Policy {
	return func(ctx context.Context, toolName string, input map[string]interface{}, pctx Context) (Result, error) {
		return Allow(nil), nil
	}
}

// AllowList permits only tool names present in allowed; every other tool is
// denied with a reason naming the rejected tool.
func AllowList(allowed map[string]struct{}) Policy {
	return func(ctx context.Context, toolName string, input map[string]interface{}, pctx Context) (Result, error) {
		if _, ok := allowed[toolName]; ok {
			return Allow(nil), nil
		}
		return Deny(fmt.Sprintf("Tool not in allowed list: %s", toolName), false), nil
	}
}

// DenyList denies only tool names present in denied; every other tool is
// allowed.
func DenyList(denied map[string]struct{}) Policy {
	return func(ctx context.Context, toolName string, input map[string]interface{}, pctx Context) (Result, error) {
		if _, ok := denied[toolName]; ok {
			return Deny(fmt.Sprintf("Tool is on the denied list: %s", toolName), false), nil
		}
		return Allow(nil), nil
	}
}

// Evaluate runs policy against a can_use_tool request, normalizing a nil
// policy to AllowAll and converting a policy error into a safe Deny so a
// misbehaving Policy can never leave a can_use_tool request unanswered.
func Evaluate(ctx context.Context, policy Policy, req protocol.CanUseToolRequest) Result {
	if policy == nil {
		policy = AllowAll()
	}
	result, err := policy(ctx, req.ToolName, req.Input, FromCanUseToolRequest(req))
	if err != nil {
		return Deny(fmt.Sprintf("Policy error: %v", err), false)
	}
	return result
}
