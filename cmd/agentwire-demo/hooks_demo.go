package main

import (
	"context"
	"log/slog"

	"github.com/bazelment/yoloswe/agentwire/hooks"
	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// registerDemoHooks installs the handful of hooks the demo advertises in
// its initialize request: two that log every tool use (before and after)
// and one that logs every prompt, none of which blocks anything. A real host would use
// PreToolUse to veto or rewrite tool input; this just shows the wiring.
func registerDemoHooks(reg *hooks.Registry) {
	if _, err := reg.RegisterPreToolUse(nil, func(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
		slog.Info("pre_tool_use", "tool", in.ToolName, "session", in.SessionID)
		return nil, nil
	}); err != nil {
		slog.Warn("failed to register pre_tool_use hook", "error", err)
	}

	if _, err := reg.RegisterPostToolUse(nil, func(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
		slog.Info("post_tool_use", "tool", in.ToolName, "session", in.SessionID)
		return nil, nil
	}); err != nil {
		slog.Warn("failed to register post_tool_use hook", "error", err)
	}

	if _, err := reg.RegisterUserPromptSubmit(func(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
		slog.Info("user_prompt_submit", "session", in.SessionID, "len", len(in.Prompt))
		return nil, nil
	}); err != nil {
		slog.Warn("failed to register user_prompt_submit hook", "error", err)
	}
}
