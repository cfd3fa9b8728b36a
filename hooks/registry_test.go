package hooks

import (
	"context"
	"testing"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

func strPtr(s string) *string { return &s }

func TestRegister_DuplicateIDFails(t *testing.T) {
	r := New()
	reg := Registration{ID: "h1", Event: protocol.HookEventPreToolUse, Callback: noopHook}
	if err := r.Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(reg)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestRegister_BothIndicesReachable(t *testing.T) {
	r := New()
	if err := r.Register(Registration{ID: "h1", Event: protocol.HookEventPreToolUse, Callback: noopHook}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetByID("h1"); !ok {
		t.Fatal("not reachable by id")
	}
	if len(r.GetByEvent(protocol.HookEventPreToolUse)) != 1 {
		t.Fatal("not reachable by event")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New()
	r.Register(Registration{ID: "h1", Event: protocol.HookEventStop, Callback: noopHook})
	if !r.Unregister("h1") {
		t.Fatal("expected true on first unregister")
	}
	if r.Unregister("h1") {
		t.Fatal("expected false on second unregister")
	}
	if r.HasHooks() {
		t.Fatal("expected no hooks left")
	}
}

func TestClear_EmptiesBothIndices(t *testing.T) {
	r := New()
	r.Register(Registration{ID: "h1", Event: protocol.HookEventStop, Callback: noopHook})
	r.Clear()
	if r.HasHooks() {
		t.Fatal("expected empty after clear")
	}
	if len(r.GetByEvent(protocol.HookEventStop)) != 0 {
		t.Fatal("expected empty by-event index after clear")
	}
}

// TestPatternCorrectness covers testable property 7.
func TestPatternCorrectness(t *testing.T) {
	cases := []struct {
		pattern     *string
		toolName    string
		hasToolName bool
		want        bool
	}{
		{nil, "", false, true},
		{nil, "Bash", true, true},
		{strPtr("Bash"), "Bash", true, true},
		{strPtr("Bash"), "Bashful", true, false}, // full-string match, not prefix
		{strPtr("Bash"), "", false, false},
		{strPtr("Ba.*"), "Bash", true, true},
	}
	for _, c := range cases {
		got := Matches(c.pattern, c.toolName, c.hasToolName)
		if got != c.want {
			t.Errorf("Matches(%v, %q, %v) = %v, want %v", c.pattern, c.toolName, c.hasToolName, got, c.want)
		}
	}
}

// TestHookConfigGrouping covers testable property 8.
func TestHookConfigGrouping(t *testing.T) {
	r := New()
	h1, _ := r.RegisterPreToolUse(strPtr("Bash"), noopHook)
	h2, err := r.registerWithTimeout(protocol.HookEventPreToolUse, strPtr("Bash"), noopHook, 120)
	if err != nil {
		t.Fatal(err)
	}
	h3, _ := r.RegisterPreToolUse(strPtr("Write"), noopHook)

	config := r.BuildHookConfig()
	matchers := config[string(protocol.HookEventPreToolUse)]
	if len(matchers) != 2 {
		t.Fatalf("got %d matchers, want 2: %+v", len(matchers), matchers)
	}

	var bash, write *protocol.HookMatcherConfig
	for i := range matchers {
		switch matchers[i].Matcher {
		case "Bash":
			bash = &matchers[i]
		case "Write":
			write = &matchers[i]
		}
	}
	if bash == nil || write == nil {
		t.Fatalf("expected Bash and Write matchers, got %+v", matchers)
	}
	if len(bash.HookCallbackIDs) != 2 || bash.HookCallbackIDs[0] != h1 || bash.HookCallbackIDs[1] != h2 {
		t.Fatalf("got bash ids %v, want [%s %s]", bash.HookCallbackIDs, h1, h2)
	}
	if bash.Timeout != 120 {
		t.Fatalf("got bash timeout %d, want max(60,120)=120", bash.Timeout)
	}
	if len(write.HookCallbackIDs) != 1 || write.HookCallbackIDs[0] != h3 {
		t.Fatalf("got write ids %v, want [%s]", write.HookCallbackIDs, h3)
	}
}

// TestInitializeConfig_NoPattern covers scenario S5.
func TestInitializeConfig_NoPattern(t *testing.T) {
	r := New()
	id, err := r.RegisterPreToolUse(nil, noopHook)
	if err != nil {
		t.Fatal(err)
	}

	req := r.CreateInitializeRequest("r0")
	init, ok := req.Request.(protocol.InitializeRequest)
	if !ok {
		t.Fatalf("got %T, want InitializeRequest", req.Request)
	}
	matchers := init.Hooks[string(protocol.HookEventPreToolUse)]
	if len(matchers) != 1 {
		t.Fatalf("got %d matchers, want 1", len(matchers))
	}
	if matchers[0].Matcher != ".*" || matchers[0].Timeout != 60 {
		t.Fatalf("got %+v", matchers[0])
	}
	if len(matchers[0].HookCallbackIDs) != 1 || matchers[0].HookCallbackIDs[0] != id {
		t.Fatalf("got ids %v, want [%s]", matchers[0].HookCallbackIDs, id)
	}
}

// TestExecuteHook_FailureBecomesBlock covers scenario S1's "hooks that fail
// still produce exactly one response" guarantee.
func TestExecuteHook_FailureBecomesBlock(t *testing.T) {
	r := New()
	id, _ := r.RegisterPreToolUse(strPtr("Bash"), func(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
		return nil, errBoom
	})

	out := r.ExecuteHook(context.Background(), id, protocol.HookInput{HookEventName: protocol.HookEventPreToolUse})
	if out.Decision != "block" {
		t.Fatalf("got decision %q, want block", out.Decision)
	}
}

// TestExecuteHook_S1 covers scenario S1 exactly: a PreToolUse hook for
// pattern Bash that returns block("nope").
func TestExecuteHook_S1(t *testing.T) {
	r := New()
	id, _ := r.RegisterPreToolUse(strPtr("Bash"), func(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
		return protocol.BlockHookOutput("nope"), nil
	})

	out := r.ExecuteHook(context.Background(), id, protocol.HookInput{
		HookEventName: protocol.HookEventPreToolUse,
		ToolName:      "Bash",
		SessionID:     "s",
	})
	if out.Decision != "block" || out.Reason != "nope" || out.ContinueExecution == nil || *out.ContinueExecution {
		t.Fatalf("got %+v", out)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func noopHook(ctx context.Context, in protocol.HookInput) (*protocol.HookOutput, error) {
	return &protocol.HookOutput{}, nil
}

// registerWithTimeout is a test-only helper reaching past the public
// convenience methods (which don't expose timeout) to exercise grouping by
// maximum timeout.
func (r *Registry) registerWithTimeout(event protocol.HookEventKind, pattern *string, cb HookFunc, timeout int) (string, error) {
	r.mu.Lock()
	id := r.nextID()
	r.mu.Unlock()
	reg := Registration{ID: id, Event: event, ToolPattern: pattern, Callback: cb, TimeoutSeconds: timeout}
	if err := r.Register(reg); err != nil {
		return "", err
	}
	return id, nil
}
