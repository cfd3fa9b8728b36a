// Package hooks implements the hook registry: pattern-matched registration
// of callbacks keyed by event kind, event-scoped execution, and synthesis
// of the initialize request the host advertises to the CLI.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// defaultTimeoutSeconds is used whenever a registration's timeout is
// non-positive.
const defaultTimeoutSeconds = 60

// HookFunc is a registered callback. ctx carries cancellation for a single
// hook invocation; it is not the session's lifetime context.
type HookFunc func(ctx context.Context, input protocol.HookInput) (*protocol.HookOutput, error)

// Registration is one entry in the registry. ToolPattern, when non-nil, is
// matched full-string as a regex against a tool_name; nil matches any tool,
// including a hook input with no tool_name at all.
type Registration struct {
	ID             string
	Event          protocol.HookEventKind
	ToolPattern    *string
	Callback       HookFunc
	TimeoutSeconds int

	compiled *regexp.Regexp
}

// ErrDuplicateID is returned by Register when id is already registered.
type ErrDuplicateID struct{ ID string }

func (e *ErrDuplicateID) Error() string { return fmt.Sprintf("hooks: id %q already registered", e.ID) }

// Registry owns registrations through two indices — by-id (unique) and
// by-event (insertion-ordered) — kept in lockstep under a single mutex so
// every registration is always reachable through both.
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*Registration
	byEvent map[protocol.HookEventKind][]*Registration
	counter int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[string]*Registration),
		byEvent: make(map[protocol.HookEventKind][]*Registration),
	}
}

// Register inserts reg into both indices. Fails if reg.ID is already
// present or reg.ToolPattern does not compile as a regex. A non-positive
// TimeoutSeconds is normalized to the 60s default.
func (r *Registry) Register(reg Registration) error {
	if reg.TimeoutSeconds <= 0 {
		reg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if reg.ToolPattern != nil {
		compiled, err := regexp.Compile(*reg.ToolPattern)
		if err != nil {
			return fmt.Errorf("hooks: invalid tool_pattern %q: %w", *reg.ToolPattern, err)
		}
		reg.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[reg.ID]; exists {
		return &ErrDuplicateID{ID: reg.ID}
	}

	copied := reg
	r.byID[copied.ID] = &copied
	r.byEvent[copied.Event] = append(r.byEvent[copied.Event], &copied)

	pattern := "<any>"
	if copied.ToolPattern != nil {
		pattern = *copied.ToolPattern
	}
	slog.Info("hook registered", "id", copied.ID, "event", copied.Event, "pattern", pattern)
	return nil
}

func (r *Registry) nextID() string {
	r.counter++
	return fmt.Sprintf("hook_%d", r.counter)
}

// registerConvenience is the shared body of the per-event convenience
// registration helpers.
func (r *Registry) registerConvenience(event protocol.HookEventKind, pattern *string, cb HookFunc) (string, error) {
	r.mu.Lock()
	id := r.nextID()
	r.mu.Unlock()

	reg := Registration{ID: id, Event: event, ToolPattern: pattern, Callback: cb}
	if err := r.Register(reg); err != nil {
		return "", err
	}
	return id, nil
}

// RegisterPreToolUse registers a PreToolUse hook and returns its generated id.
func (r *Registry) RegisterPreToolUse(pattern *string, cb HookFunc) (string, error) {
	return r.registerConvenience(protocol.HookEventPreToolUse, pattern, cb)
}

// RegisterPostToolUse registers a PostToolUse hook and returns its generated id.
func (r *Registry) RegisterPostToolUse(pattern *string, cb HookFunc) (string, error) {
	return r.registerConvenience(protocol.HookEventPostToolUse, pattern, cb)
}

// RegisterUserPromptSubmit registers a UserPromptSubmit hook and returns its generated id.
func (r *Registry) RegisterUserPromptSubmit(cb HookFunc) (string, error) {
	return r.registerConvenience(protocol.HookEventUserPromptSubmit, nil, cb)
}

// RegisterStop registers a Stop hook and returns its generated id.
func (r *Registry) RegisterStop(cb HookFunc) (string, error) {
	return r.registerConvenience(protocol.HookEventStop, nil, cb)
}

// Unregister removes id from both indices. Idempotent: unregistering an
// absent id returns false without error.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	list := r.byEvent[reg.Event]
	for i, e := range list {
		if e.ID == id {
			r.byEvent[reg.Event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return true
}

// GetByID returns the registration for id, if any.
func (r *Registry) GetByID(id string) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// GetByEvent returns the registrations for kind in registration order.
func (r *Registry) GetByEvent(kind protocol.HookEventKind) []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byEvent[kind]
	out := make([]Registration, len(list))
	for i, e := range list {
		out[i] = *e
	}
	return out
}

// Clear empties both indices atomically.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Registration)
	r.byEvent = make(map[protocol.HookEventKind][]*Registration)
}

// HasHooks reports whether any registration exists.
func (r *Registry) HasHooks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID) > 0
}

// Matches reports whether pattern matches toolName under the registry's
// semantics: a nil pattern matches any tool, including one with no
// tool_name at all (hasToolName == false); a non-nil pattern is a
// full-string regex match.
func Matches(pattern *string, toolName string, hasToolName bool) bool {
	if pattern == nil {
		return true
	}
	if !hasToolName {
		return false
	}
	re, err := regexp.Compile("^(?:" + *pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(toolName)
}

// ExecuteHook invokes the callback registered under id. A missing id, a
// callback that returns an error, or a callback that panics all produce a
// block-decision HookOutput rather than propagating — the CLI must see
// some response for every hook_callback it sends.
func (r *Registry) ExecuteHook(ctx context.Context, id string, input protocol.HookInput) (output *protocol.HookOutput) {
	reg, ok := r.GetByID(id)
	if !ok {
		return protocol.BlockHookOutput(fmt.Sprintf("Hook execution failed: unknown hook id %q", id))
	}

	defer func() {
		if rec := recover(); rec != nil {
			output = protocol.BlockHookOutput(fmt.Sprintf("Hook execution failed: panic: %v", rec))
		}
	}()

	out, err := reg.Callback(ctx, input)
	if err != nil {
		return protocol.BlockHookOutput(fmt.Sprintf("Hook execution failed: %v", err))
	}
	if out == nil {
		return &protocol.HookOutput{}
	}
	return out
}

// BuildHookConfig groups registrations per event by pattern string (a nil
// pattern groups under ".*"); each matcher carries the ids of every
// registration sharing that pattern and the maximum timeout among them.
func (r *Registry) BuildHookConfig() map[string][]protocol.HookMatcherConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[string][]protocol.HookMatcherConfig)
	for event, regs := range r.byEvent {
		if len(regs) == 0 {
			continue
		}

		type group struct {
			ids     []string
			timeout int
		}
		order := []string{}
		groups := map[string]*group{}
		for _, reg := range regs {
			pattern := ".*"
			if reg.ToolPattern != nil {
				pattern = *reg.ToolPattern
			}
			g, exists := groups[pattern]
			if !exists {
				g = &group{}
				groups[pattern] = g
				order = append(order, pattern)
			}
			g.ids = append(g.ids, reg.ID)
			if reg.TimeoutSeconds > g.timeout {
				g.timeout = reg.TimeoutSeconds
			}
		}

		sort.Strings(order)
		matchers := make([]protocol.HookMatcherConfig, 0, len(order))
		for _, pattern := range order {
			g := groups[pattern]
			matchers = append(matchers, protocol.HookMatcherConfig{
				Matcher:         pattern,
				HookCallbackIDs: g.ids,
				Timeout:         g.timeout,
			})
		}
		result[string(event)] = matchers
	}
	return result
}

// CreateInitializeRequest wraps BuildHookConfig into an initialize control
// request ready to send to the CLI.
func (r *Registry) CreateInitializeRequest(requestID string) protocol.ControlRequestToSend {
	return protocol.ControlRequestToSend{
		Type:      "control_request",
		RequestID: requestID,
		Request: protocol.InitializeRequest{
			SubtypeField: protocol.ControlRequestSubtypeInitialize,
			Hooks:        r.BuildHookConfig(),
		},
	}
}
