package transport

import (
	"time"

	"github.com/bazelment/yoloswe/agentwire/hooks"
	"github.com/bazelment/yoloswe/agentwire/internal/ndjson"
	"github.com/bazelment/yoloswe/agentwire/permission"
)

// Config holds every tunable the transport accepts. Callers never pass one
// to New directly; New builds it from Option values, mirroring the
// teacher's claude.SessionConfig / claude.SessionOption pattern.
type Config struct {
	CLIPath  string
	Launcher ProcessLauncher

	Hooks  *hooks.Registry
	Policy permission.Policy

	MaxRecordBytes          int
	OutboundBufferSize      int
	BroadcastBufferSize     int
	Backpressure            BackpressurePolicy
	GracefulShutdownTimeout time.Duration

	StderrHandler func([]byte)
	TraceSink     func(direction string, raw []byte)

	User        string
	EnvOverrides map[string]string
	ExtraArgs    []string
}

// Option is a functional option for configuring a Transport, exactly the
// teacher's claude.SessionOption shape generalized to this package.
type Option func(*Config)

// WithCLIPath sets a custom CLI binary path (default: "claude" on PATH).
func WithCLIPath(path string) Option {
	return func(c *Config) { c.CLIPath = path }
}

// WithLauncher installs a custom ProcessLauncher (e.g. a sandbox or
// container launcher) in place of DirectLauncher.
func WithLauncher(l ProcessLauncher) Option {
	return func(c *Config) { c.Launcher = l }
}

// WithHooks installs a pre-built hook registry. Without this option, New
// creates an empty one.
func WithHooks(r *hooks.Registry) Option {
	return func(c *Config) { c.Hooks = r }
}

// WithPolicy installs a tool-permission policy. Without this option,
// can_use_tool requests are answered by permission.AllowAll.
func WithPolicy(p permission.Policy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithMaxRecordBytes caps the stream framer's maximum record length.
func WithMaxRecordBytes(n int) Option {
	return func(c *Config) { c.MaxRecordBytes = n }
}

// WithOutboundBufferSize sets the outbound channel's buffer size.
func WithOutboundBufferSize(n int) Option {
	return func(c *Config) { c.OutboundBufferSize = n }
}

// WithBroadcastBufferSize sets the broadcast sink's buffer size.
func WithBroadcastBufferSize(n int) Option {
	return func(c *Config) { c.BroadcastBufferSize = n }
}

// WithBackpressurePolicy sets the broadcast sink's backpressure policy.
func WithBackpressurePolicy(p BackpressurePolicy) Option {
	return func(c *Config) { c.Backpressure = p }
}

// WithGracefulShutdownTimeout overrides the 5s default bound on
// CloseGracefully before it escalates to a forceful kill.
func WithGracefulShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.GracefulShutdownTimeout = d }
}

// WithStderrHandler installs a callback invoked with each stderr chunk read
// from the child, on the dedicated error scheduler.
func WithStderrHandler(f func([]byte)) Option {
	return func(c *Config) { c.StderrHandler = f }
}

// WithTraceSink installs a callback invoked with the raw bytes of every
// record, tagged "sent" or "received". No on-disk format is mandated here
// (spec.md §6: "no persisted state"); the example program wires this to a
// file.
func WithTraceSink(f func(direction string, raw []byte)) Option {
	return func(c *Config) { c.TraceSink = f }
}

// WithUser requests the child run under a different POSIX user via
// `sudo -u`. Ignored (and logged) on non-POSIX platforms.
func WithUser(user string) Option {
	return func(c *Config) { c.User = user }
}

// WithEnv merges extra environment variables into the child's environment,
// applied last so they win over both the whitelist and the SDK's own
// entries.
func WithEnv(overrides map[string]string) Option {
	return func(c *Config) { c.EnvOverrides = overrides }
}

// WithExtraArgs appends additional CLI flags after the transport's fixed
// set (spec.md §6). Argument-list construction beyond these fixed flags is
// explicitly out of this package's scope; this is the escape hatch.
func WithExtraArgs(args ...string) Option {
	return func(c *Config) { c.ExtraArgs = args }
}

func defaultConfig() Config {
	return Config{
		CLIPath:                 "claude",
		Launcher:                DirectLauncher{},
		MaxRecordBytes:          ndjson.DefaultMaxRecordBytes,
		OutboundBufferSize:      64,
		BroadcastBufferSize:     defaultBroadcastBufferSize,
		Backpressure:            BackpressureBlock,
		GracefulShutdownTimeout: 5 * time.Second,
	}
}
