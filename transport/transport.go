package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bazelment/yoloswe/agentwire/hooks"
	"github.com/bazelment/yoloswe/agentwire/internal/ndjson"
	"github.com/bazelment/yoloswe/agentwire/permission"
	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// SessionHandlers are the callbacks start_session wires up. MessageHandler
// sees only regular (non-control) records; ControlRequestHandler and
// ControlResponseHandler are optional observers invoked in addition to the
// transport's own dispatch (§4.6) and correlator (§4.5), not instead of
// them — the transport must always answer a control_request itself.
type SessionHandlers struct {
	MessageHandler         func(protocol.ParsedRecord)
	ControlRequestHandler  func(protocol.ControlRequest)
	ControlResponseHandler func(protocol.ControlResponse)
}

// ServerInfo is whatever payload accompanied a CLI-originated `initialize`
// control request, captured opportunistically (spec.md §9 Design Note b:
// the CLI's contract for when it sends this is undocumented, so it is
// never required by correctness tests).
type ServerInfo struct {
	Raw json.RawMessage
}

type outboundRecord struct {
	data []byte
}

// Transport is the bidirectional control-protocol transport: one child CLI
// process, three schedulers (inbound, outbound, stderr), an explicit state
// machine, and a request/response correlator — parameterized by a
// ProcessLauncher so a sandbox/container launcher is a drop-in
// substitution rather than a second transport (spec.md §9).
type Transport struct {
	cfg            Config
	workingDir     string
	defaultTimeout time.Duration
	state          *stateMachine

	// isClosing is read by every worker loop so shutdown becomes visible
	// without depending solely on state-atom reads (spec.md §5).
	isClosing   boolFlag
	closeSignal chan struct{}
	closeOnce   sync.Once

	process Process
	stdoutR *ndjson.Reader
	stdinW  *ndjson.Writer
	stdinMu sync.Mutex // guards only the stdin stream, per spec.md §5

	outboundCh chan outboundRecord
	broadcast  *broadcastSink
	correlator *correlator

	messageHandler         func(protocol.ParsedRecord)
	controlRequestHandler  func(protocol.ControlRequest)
	controlResponseHandler func(protocol.ControlResponse)

	mcpHandlers map[string]SDKToolHandler
	mcpMu       sync.Mutex

	workersWG sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	sessionErrMu sync.Mutex
	sessionErr   error

	serverInfoMu  sync.Mutex
	serverInfo    ServerInfo
	serverInfoSet bool

	lastEnvironMu sync.Mutex
	lastEnviron   []string

	// processWaitOnce serializes every caller of process.Wait(): exec.Cmd
	// forbids calling Wait twice, but both WaitForCompletion and the
	// shutdown sequence need to observe process exit.
	processWaitOnce sync.Once
	processWaitErr  error
	processWaitDone chan struct{}
}

// New constructs a Transport. workingDir and defaultTimeout are required
// (spec.md §4.5); every other tunable — CLI path, launcher, hooks, policy,
// buffer sizes — is an Option.
func New(workingDir string, defaultTimeout time.Duration, opts ...Option) (*Transport, error) {
	if workingDir == "" {
		return nil, fmt.Errorf("%w: working_dir is required", ErrIllegalState)
	}
	if defaultTimeout <= 0 {
		return nil, fmt.Errorf("%w: default_timeout is required", ErrIllegalState)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = hooks.New()
	}

	t := &Transport{
		cfg:         cfg,
		state:       &stateMachine{},
		closeSignal: make(chan struct{}),
		correlator:  newCorrelator(),
		mcpHandlers: make(map[string]SDKToolHandler),
		processWaitDone: make(chan struct{}),
	}
	t.workingDir = workingDir
	t.defaultTimeout = defaultTimeout
	return t, nil
}

// StartSession spawns the CLI child, wires the three schedulers, and
// transitions DISCONNECTED -> CONNECTING -> CONNECTED. A nil initialPrompt
// is legal: the caller may prefer to send an `initialize` control request
// as the first record instead.
func (t *Transport) StartSession(ctx context.Context, initialPrompt *string, handlers SessionHandlers) error {
	if !t.state.CAS(StateDisconnected, StateConnecting) {
		return fmt.Errorf("%w: start_session requires DISCONNECTED state", ErrIllegalState)
	}

	t.messageHandler = handlers.MessageHandler
	t.controlRequestHandler = handlers.ControlRequestHandler
	t.controlResponseHandler = handlers.ControlResponseHandler

	t.ctx, t.cancel = context.WithCancel(context.Background())

	env := buildEnv(t.cfg.EnvOverrides)
	t.lastEnvironMu.Lock()
	t.lastEnviron = env
	t.lastEnvironMu.Unlock()

	path, args := t.cliArgs()
	if t.cfg.User != "" {
		path, args = wrapForUser(path, args, t.cfg.User)
	}

	startupCtx, cancelStartup := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancelStartup()

	proc, err := t.cfg.Launcher.Launch(startupCtx, t.ctx, ProcessSpec{
		Path: path,
		Args: args,
		Env:  env,
		Dir:  t.workingDir,
	})
	if err != nil {
		t.state.Store(StateDisconnected)
		t.recordSessionError(err)
		t.cancel()
		return err
	}

	t.process = proc
	t.stdoutR = ndjson.NewReaderSize(proc.Stdout(), t.cfg.MaxRecordBytes)
	t.stdinW = ndjson.NewWriter(proc.Stdin())
	t.outboundCh = make(chan outboundRecord, t.cfg.OutboundBufferSize)
	t.broadcast = newBroadcastSink(t.cfg.BroadcastBufferSize, t.cfg.Backpressure)

	if !t.state.CAS(StateConnecting, StateConnected) {
		return fmt.Errorf("%w: unexpected concurrent transition during startup", ErrIllegalState)
	}

	t.workersWG.Add(2)
	go t.inboundLoop()
	go t.outboundLoop()

	if t.cfg.StderrHandler != nil {
		t.workersWG.Add(1)
		go t.stderrLoop()
	}

	if initialPrompt != nil {
		if err := t.SendUserMessage(*initialPrompt, ""); err != nil {
			return err
		}
	}

	return nil
}

// cliArgs builds the fixed flag set spec.md §6 requires, plus the escape
// hatch for extra flags. Full argument-list construction (e.g. translating
// high-level session options into flags) is explicitly a collaborator's
// concern (spec.md §1); this is only the flags the control-protocol wire
// format itself demands.
func (t *Transport) cliArgs() (string, []string) {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--permission-prompt-tool", "stdio",
		"--verbose",
	}
	args = append(args, t.cfg.ExtraArgs...)
	return t.cfg.CLIPath, args
}

// requireConnected returns nil in CONNECTED, ErrTransportClosed in CLOSING
// or CLOSED, and ErrIllegalState in any other state.
func (t *Transport) requireConnected(op string) error {
	switch t.state.Load() {
	case StateConnected:
		return nil
	case StateClosing, StateClosed:
		return fmt.Errorf("%w: %s", ErrTransportClosed, op)
	default:
		return fmt.Errorf("%w: %s requires CONNECTED state", ErrIllegalState, op)
	}
}

// SendUserMessage enqueues a user message for the current turn. Requires
// CONNECTED.
func (t *Transport) SendUserMessage(content, sessionID string) error {
	if err := t.requireConnected("send_user_message"); err != nil {
		return err
	}
	msg := protocol.UserMessageToSend{
		Type:      "user",
		SessionID: sessionID,
		Message: protocol.UserMessageToSendInner{
			Role:    "user",
			Content: content,
		},
	}
	b, err := msg.Marshal()
	if err != nil {
		return err
	}
	return t.enqueueOutbound(b)
}

// SendResponse enqueues a control response the host is answering, for
// callers that build one outside the automatic dispatch path. Requires
// CONNECTED.
func (t *Transport) SendResponse(resp protocol.ControlResponse) error {
	if err := t.requireConnected("send_response"); err != nil {
		return err
	}
	b, err := resp.Marshal()
	if err != nil {
		return err
	}
	return t.enqueueOutbound(b)
}

// SendMessage is the escape hatch for an arbitrary host-originated JSON
// record (e.g. a hand-built control request). Requires CONNECTED.
func (t *Transport) SendMessage(raw []byte) error {
	if err := t.requireConnected("send_message"); err != nil {
		return err
	}
	return t.enqueueOutbound(raw)
}

// sendControlRequest sends a host-originated control request and awaits
// its matching control_response, honoring timeout (the transport's default
// timeout when timeout <= 0).
func (t *Transport) sendControlRequest(ctx context.Context, req protocol.ControlRequestToSend, timeout time.Duration) (protocol.ControlResponsePayload, error) {
	if err := t.requireConnected("control request"); err != nil {
		return protocol.ControlResponsePayload{}, err
	}
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}

	ch := t.correlator.register(req.RequestID)
	b, err := req.Marshal()
	if err != nil {
		t.correlator.remove(req.RequestID)
		return protocol.ControlResponsePayload{}, err
	}
	if err := t.enqueueOutbound(b); err != nil {
		t.correlator.remove(req.RequestID)
		return protocol.ControlResponsePayload{}, err
	}

	resp, err := t.correlator.wait(ctx, req.RequestID, ch, timeout)
	if err != nil {
		return resp, err
	}
	if resp.Subtype == "error" {
		return resp, fmt.Errorf("control request %s failed: %s", req.RequestID, resp.Error)
	}
	return resp, nil
}

// Interrupt sends a cooperative interrupt control request and transitions
// CONNECTED -> CLOSING, per spec.md §4.5.
func (t *Transport) Interrupt(ctx context.Context) error {
	req := protocol.NewInterrupt(newRequestID())
	_, err := t.sendControlRequest(ctx, req, t.defaultTimeout)
	t.state.CAS(StateConnected, StateClosing)
	return err
}

// SetPermissionMode sends a set_permission_mode control request to the CLI.
func (t *Transport) SetPermissionMode(ctx context.Context, mode string) error {
	req := protocol.NewSetPermissionMode(newRequestID(), mode)
	_, err := t.sendControlRequest(ctx, req, t.defaultTimeout)
	return err
}

// SetModel sends a set_model control request to the CLI.
func (t *Transport) SetModel(ctx context.Context, model string) error {
	req := protocol.NewSetModel(newRequestID(), model)
	_, err := t.sendControlRequest(ctx, req, t.defaultTimeout)
	return err
}

// SendInitialize sends the host's hook configuration as the initialize
// control request, as a caller would when starting a session with a nil
// initial prompt.
func (t *Transport) SendInitialize(ctx context.Context) error {
	req := t.cfg.Hooks.CreateInitializeRequest(newRequestID())
	_, err := t.sendControlRequest(ctx, req, t.defaultTimeout)
	return err
}

// ReceiveMessages returns the backpressured broadcast channel of every
// inbound record, regardless of classification.
func (t *Transport) ReceiveMessages() <-chan protocol.ParsedRecord {
	return t.broadcast.Chan()
}

// MessageIterator returns a blocking pull adapter over the same sink
// ReceiveMessages exposes push-style access to (spec.md §9: "one true data
// path... host code chooses how to drive it").
func (t *Transport) MessageIterator() func() (protocol.ParsedRecord, bool) {
	ch := t.broadcast.Chan()
	return func() (protocol.ParsedRecord, bool) {
		rec, ok := <-ch
		return rec, ok
	}
}

// ServerInfo returns whatever payload a CLI-originated initialize control
// request carried, if one has been observed.
func (t *Transport) ServerInfo() (ServerInfo, bool) {
	t.serverInfoMu.Lock()
	defer t.serverInfoMu.Unlock()
	return t.serverInfo, t.serverInfoSet
}

// LastEnviron returns the environment actually handed to the child, for
// debugging (mirrors the teacher's Session.CLIArgs() accessor).
func (t *Transport) LastEnviron() []string {
	t.lastEnvironMu.Lock()
	defer t.lastEnvironMu.Unlock()
	out := make([]string, len(t.lastEnviron))
	copy(out, t.lastEnviron)
	return out
}

// State returns the current lifecycle state.
func (t *Transport) State() State {
	return t.state.Load()
}

// GetSessionError returns the worker-internal error recorded, if any. It
// does not itself raise; WaitForCompletion consults it to decide whether
// to return an error.
func (t *Transport) GetSessionError() error {
	t.sessionErrMu.Lock()
	defer t.sessionErrMu.Unlock()
	return t.sessionErr
}

func (t *Transport) recordSessionError(err error) {
	t.sessionErrMu.Lock()
	if t.sessionErr == nil {
		t.sessionErr = err
	}
	t.sessionErrMu.Unlock()
}

// WaitForCompletion blocks until the child process exits or timeout
// elapses, reporting whether it exited within that window. A non-zero
// exit, or any recorded session error, surfaces as the returned error.
func (t *Transport) WaitForCompletion(timeout time.Duration) (bool, error) {
	if t.process == nil {
		return false, fmt.Errorf("%w: wait_for_completion requires a started session", ErrIllegalState)
	}

	done := make(chan error, 1)
	go func() { done <- t.waitProcess() }()

	select {
	case err := <-done:
		if sessErr := t.GetSessionError(); sessErr != nil {
			return true, sessErr
		}
		if err != nil {
			var exitErr interface{ ExitCode() int }
			if errors.As(err, &exitErr) {
				return true, &ProcessExitError{ExitCode: exitErr.ExitCode(), Cause: err}
			}
			return true, &ProcessExitError{ExitCode: -1, Cause: err}
		}
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

// enqueueOutbound performs a non-blocking send: callers never wait on the
// channel themselves, and backpressure surfaces as ErrEmitFailure rather
// than stalling the caller (spec.md §5).
func (t *Transport) enqueueOutbound(data []byte) error {
	state := t.state.Load()
	if state == StateClosing || state == StateClosed {
		return ErrTransportClosed
	}
	select {
	case t.outboundCh <- outboundRecord{data: data}:
		return nil
	default:
		return fmt.Errorf("%w", ErrEmitFailure)
	}
}

func (t *Transport) writeRecord(data []byte) {
	if t.cfg.TraceSink != nil {
		t.cfg.TraceSink("sent", data)
	}
	t.stdinMu.Lock()
	err := t.stdinW.WriteLine(data)
	t.stdinMu.Unlock()
	if err != nil {
		t.recordSessionError(fmt.Errorf("write to CLI stdin: %w", err))
	}
}

func (t *Transport) outboundLoop() {
	defer t.workersWG.Done()
	for {
		select {
		case rec := <-t.outboundCh:
			t.writeRecord(rec.data)
		case <-t.closeSignal:
			t.drainOutbound(100 * time.Millisecond)
			return
		}
	}
}

func (t *Transport) drainOutbound(max time.Duration) {
	deadline := time.Now().Add(max)
	for time.Now().Before(deadline) {
		select {
		case rec := <-t.outboundCh:
			t.writeRecord(rec.data)
		default:
			return
		}
	}
}

func (t *Transport) inboundLoop() {
	defer t.workersWG.Done()
	for {
		select {
		case <-t.closeSignal:
			return
		default:
		}

		line, err := t.stdoutR.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if !t.isClosing.Load() {
				t.recordSessionError(err)
			}
			return
		}
		t.handleLine(line)
	}
}

func (t *Transport) stderrLoop() {
	defer t.workersWG.Done()
	stderr := t.process.Stderr()
	if stderr == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		select {
		case <-t.closeSignal:
			return
		default:
		}
		n, err := stderr.Read(buf)
		if n > 0 {
			t.cfg.StderrHandler(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// handleLine classifies one inbound record and fans it out: control
// requests dispatch to the hook/permission path (§4.6), control responses
// to the correlator (§4.5), and regular messages to the message handler.
// Every record, regardless of classification, then reaches the broadcast
// sink, always after the handler (Open Question (a): handler first, then
// sink, so tests are deterministic).
func (t *Transport) handleLine(line []byte) {
	if t.cfg.TraceSink != nil {
		t.cfg.TraceSink("received", line)
	}

	rec, err := protocol.Parse(line)
	if err != nil {
		slog.Warn("dropping malformed inbound record", "error", err)
		return
	}

	switch rec.Kind {
	case protocol.RecordControlRequest:
		t.dispatchControlRequest(*rec.ControlRequestEnvelope)
	case protocol.RecordControlResponse:
		t.handleControlResponse(*rec.ControlResponseEnvelope)
	}

	if rec.Kind == protocol.RecordRegularMessage && t.messageHandler != nil {
		t.messageHandler(rec)
	}
	t.broadcast.offer(rec)
}

// dispatchControlRequest answers a CLI-originated control_request: every
// path through here must end in exactly one control_response being sent,
// including the panic-recovery fallback, so the CLI never waits forever on
// a request the host failed to answer (spec.md §8, testable property 5).
func (t *Transport) dispatchControlRequest(req protocol.ControlRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			t.sendControlError(req.RequestID, fmt.Sprintf("internal error handling control request: %v", rec))
		}
	}()

	if t.controlRequestHandler != nil {
		t.controlRequestHandler(req)
	}

	data, err := req.ParsedRequest()
	if err != nil {
		t.sendControlError(req.RequestID, fmt.Sprintf("malformed control request: %v", err))
		return
	}

	switch v := data.(type) {
	case protocol.HookCallbackRequest:
		t.handleHookCallback(req.RequestID, v)
	case protocol.CanUseToolRequest:
		t.handleCanUseTool(req.RequestID, v)
	case protocol.MCPMessageRequest:
		t.handleMCPMessage(req.RequestID, v)
	case protocol.InitializeRequest:
		t.recordServerInfo(req.Request)
		t.sendControlSuccess(req.RequestID, map[string]interface{}{"status": "ok"})
	default:
		// Unknown or host-directed subtypes (interrupt/set_model/...)
		// arriving from the CLI are acknowledged but otherwise ignored;
		// the CLI never actually sends those itself.
		t.sendControlSuccess(req.RequestID, map[string]interface{}{})
	}
}

func (t *Transport) handleHookCallback(requestID string, req protocol.HookCallbackRequest) {
	var input protocol.HookInput
	if err := json.Unmarshal(req.Input, &input); err != nil {
		t.sendControlError(requestID, fmt.Sprintf("malformed hook input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.hookTimeout(req.CallbackID))
	defer cancel()

	output := t.cfg.Hooks.ExecuteHook(ctx, req.CallbackID, input)
	t.sendControlSuccess(requestID, output)
}

func (t *Transport) hookTimeout(callbackID string) time.Duration {
	reg, ok := t.cfg.Hooks.GetByID(callbackID)
	if !ok || reg.TimeoutSeconds <= 0 {
		return t.defaultTimeout
	}
	return time.Duration(reg.TimeoutSeconds) * time.Second
}

func (t *Transport) handleCanUseTool(requestID string, req protocol.CanUseToolRequest) {
	ctx, cancel := context.WithTimeout(t.ctx, t.defaultTimeout)
	defer cancel()

	result := permission.Evaluate(ctx, t.cfg.Policy, req)
	resp := result.ToControlResponse(requestID)
	b, err := resp.Marshal()
	if err != nil {
		t.recordSessionError(fmt.Errorf("marshal can_use_tool response: %w", err))
		return
	}
	_ = t.enqueueOutbound(b)
}

func (t *Transport) recordServerInfo(raw json.RawMessage) {
	t.serverInfoMu.Lock()
	t.serverInfo = ServerInfo{Raw: raw}
	t.serverInfoSet = true
	t.serverInfoMu.Unlock()
}

func (t *Transport) sendControlSuccess(requestID string, response interface{}) {
	resp := protocol.ControlResponse{
		Type: protocol.MessageTypeControlResponse,
		Response: protocol.ControlResponsePayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  response,
		},
	}
	b, err := resp.Marshal()
	if err != nil {
		t.recordSessionError(fmt.Errorf("marshal control success response: %w", err))
		return
	}
	_ = t.enqueueOutbound(b)
}

func (t *Transport) sendControlError(requestID, message string) {
	resp := protocol.ControlResponse{
		Type: protocol.MessageTypeControlResponse,
		Response: protocol.ControlResponsePayload{
			Subtype:   "error",
			RequestID: requestID,
			Error:     message,
		},
	}
	b, err := resp.Marshal()
	if err != nil {
		t.recordSessionError(fmt.Errorf("marshal control error response: %w", err))
		return
	}
	_ = t.enqueueOutbound(b)
}

func (t *Transport) handleControlResponse(resp protocol.ControlResponse) {
	t.correlator.complete(resp.Response.RequestID, resp.Response)
	if t.controlResponseHandler != nil {
		t.controlResponseHandler(resp)
	}
}

// Close synchronously shuts the transport down, waiting up to the
// configured graceful-shutdown timeout (default 5s) for the child to exit
// before forceful termination. Idempotent.
func (t *Transport) Close() error {
	return t.shutdown(t.cfg.GracefulShutdownTimeout)
}

// CloseGracefully is an alias for Close: both run the same SIGTERM-then-wait-
// then-SIGKILL sequence, bounded by GracefulShutdownTimeout. The separate
// name exists because callers reach for "graceful" and "close" interchangeably
// depending on whether they are thinking about the CLI process or the Go
// value.
func (t *Transport) CloseGracefully() error {
	return t.shutdown(t.cfg.GracefulShutdownTimeout)
}

func (t *Transport) shutdown(waitForExit time.Duration) error {
	var shutdownErr error
	t.closeOnce.Do(func() {
		t.isClosing.Store(true)
		close(t.closeSignal)

		for {
			cur := t.state.Load()
			if cur == StateClosed {
				return
			}
			if cur == StateClosing {
				break
			}
			if t.state.CAS(cur, StateClosing) {
				break
			}
		}

		t.broadcast.close()
		t.correlator.closeAll()

		if t.process != nil {
			_ = t.process.SignalGroup(syscall.SIGTERM)
			done := make(chan struct{})
			go func() { t.waitProcess(); close(done) }()

			select {
			case <-done:
			case <-time.After(waitForExit):
				_ = t.process.KillGroup()
				<-done
			}
		}

		if t.cancel != nil {
			t.cancel()
		}
		t.workersWG.Wait()

		t.state.Store(StateClosed)
	})
	return shutdownErr
}

// IsRunning reports whether the transport believes its child is alive:
// CONNECTED or CLOSING (interrupt/close in flight), but not DISCONNECTED,
// CONNECTING, or CLOSED.
func (t *Transport) IsRunning() bool {
	s := t.state.Load()
	return s == StateConnected || s == StateClosing
}

// waitProcess calls process.Wait() exactly once, however many goroutines
// call waitProcess concurrently, and caches the result for all of them.
func (t *Transport) waitProcess() error {
	t.processWaitOnce.Do(func() {
		t.processWaitErr = t.process.Wait()
		close(t.processWaitDone)
	})
	<-t.processWaitDone
	return t.processWaitErr
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixNano(), hex.EncodeToString(b))
}

// boolFlag is a tiny atomic bool, used for is_closing (spec.md §5) which
// every worker loop reads without taking the state-machine's CAS path.
type boolFlag struct {
	v atomic.Int32
}

func (f *boolFlag) Store(b bool) {
	if b {
		f.v.Store(1)
	} else {
		f.v.Store(0)
	}
}

func (f *boolFlag) Load() bool {
	return f.v.Load() == 1
}
