// agentwire-demo is a small host program that wires transport, hooks, and
// permission into a runnable CLI session. It exists to exercise the stack
// end to end, not as a production agent host.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/agentwire/hooks"
	"github.com/bazelment/yoloswe/agentwire/protocol"
	"github.com/bazelment/yoloswe/agentwire/transport"
)

var (
	cliPath     string
	workingDir  string
	prompt      string
	policyPath  string
	traceFile   string
	watchPolicy bool
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentwire-demo",
	Short: "Drive a CLI agent over the agentwire control protocol",
	Long: `agentwire-demo starts an agent CLI as a child process, speaks the
stream-json control protocol to it, and prints every regular message it
receives.

It demonstrates wiring a hook registry, a tool-permission policy (with
optional on-disk config and hot reload), and a typed MCP tool server into
a single transport.Transport.`,
}

func init() {
	runCmd.Flags().StringVar(&cliPath, "cli-path", "claude", "path to the agent CLI binary")
	runCmd.Flags().StringVar(&workingDir, "cwd", ".", "working directory for the child process")
	runCmd.Flags().StringVar(&prompt, "prompt", "", "initial user message to send once connected")
	runCmd.Flags().StringVar(&policyPath, "policy", "", "optional YAML file with allow/deny tool policy")
	runCmd.Flags().StringVar(&traceFile, "trace-file", "", "optional file to append every sent/received record to")
	runCmd.Flags().BoolVar(&watchPolicy, "watch-policy", false, "hot-reload --policy when it changes on disk")
	runCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "startup and per-request timeout")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the CLI and relay records until interrupted",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := hooks.New()
	registerDemoHooks(reg)

	reloadable := newReloadablePolicy(nil)
	if policyPath != "" {
		pf, err := loadPolicyFile(policyPath)
		if err != nil {
			return fmt.Errorf("load policy: %w", err)
		}
		reloadable.set(pf.toPolicy())

		if watchPolicy {
			watcher := watchPolicyFile(policyPath, reloadable)
			if watcher != nil {
				defer watcher.Close()
			}
		}
	} else {
		reloadable.set(nil)
	}

	opts := []transport.Option{
		transport.WithCLIPath(cliPath),
		transport.WithHooks(reg),
		transport.WithPolicy(reloadable.asPolicy()),
	}

	var traceOut *os.File
	if traceFile != "" {
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer f.Close()
		traceOut = f
		opts = append(opts, transport.WithTraceSink(func(direction string, raw []byte) {
			fmt.Fprintf(traceOut, "%s %s\n", direction, raw)
		}))
	}

	demo, err := transport.New(workingDir, timeout, opts...)
	if err != nil {
		return fmt.Errorf("construct transport: %w", err)
	}

	registerDemoTools(demo)

	handlers := transport.SessionHandlers{
		MessageHandler: func(rec protocol.ParsedRecord) {
			printRecord(rec)
		},
	}

	if err := demo.StartSession(ctx, nil, handlers); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	slog.Info("session started", "cli_path", cliPath, "cwd", workingDir)

	// The initialize request advertises the registered hooks, so it goes
	// out before the first prompt.
	if err := demo.SendInitialize(ctx); err != nil {
		slog.Warn("initialize request failed", "error", err)
	}
	if prompt != "" {
		if err := demo.SendUserMessage(prompt, ""); err != nil {
			return fmt.Errorf("send prompt: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := demo.CloseGracefully(); err != nil {
			slog.Warn("graceful close failed", "error", err)
		}
	}()

	// WaitForCompletion takes a bounded timeout, not "forever"; the signal
	// handler above already drives CloseGracefully on ctx cancellation, so
	// this only needs to outlast any real session.
	exited, err := demo.WaitForCompletion(24 * time.Hour)
	if err != nil {
		return fmt.Errorf("session ended with error: %w", err)
	}
	if !exited {
		return fmt.Errorf("session did not exit cleanly")
	}
	return nil
}

// printRecord writes a one-line summary of every regular message the
// transport surfaces. A real host would route this to its own UI; the
// demo just prints it so the wiring is visible end to end.
func printRecord(rec protocol.ParsedRecord) {
	switch rec.Kind {
	case protocol.RecordRegularMessage:
		var compact map[string]interface{}
		if err := json.Unmarshal(rec.RegularMessage, &compact); err == nil {
			if t, ok := compact["type"]; ok {
				fmt.Printf("<- message type=%v\n", t)
				return
			}
		}
		fmt.Printf("<- message %s\n", rec.RegularMessage)
	default:
		fmt.Printf("<- %s\n", rec.Raw)
	}
}
