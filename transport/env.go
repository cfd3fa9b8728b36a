package transport

import (
	"log/slog"
	"os"
	"runtime"
	"strings"
)

// posixSafeEnv and windowsSafeEnv are the whitelisted parent environment
// variables the child is allowed to inherit (spec.md §4.5). Everything else
// in the parent's environment is dropped.
var (
	posixSafeEnv = []string{
		"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER", "LANG", "LC_ALL", "LC_CTYPE",
	}
	windowsSafeEnv = []string{
		"APPDATA", "HOMEDRIVE", "HOMEPATH", "LOCALAPPDATA", "PATH",
		"PROCESSOR_ARCHITECTURE", "SYSTEMDRIVE", "SYSTEMROOT", "TEMP",
		"USERNAME", "USERPROFILE",
	}
	// apiKeyEnvVars are forwarded from the parent if present, independent
	// of the whitelist above.
	apiKeyEnvVars = []string{"ANTHROPIC_API_KEY"}
)

const (
	entrypointValue = "sdk-go"
	sdkVersion      = "0.1.0"
)

// buildEnv constructs the child process environment: the platform
// whitelist, minus any value smuggling a shell function definition
// (values beginning with "()"), plus the entrypoint identifier, the SDK
// version, any forwarded API key, and finally overrides (last write wins).
func buildEnv(overrides map[string]string) []string {
	safe := posixSafeEnv
	if runtime.GOOS == "windows" {
		safe = windowsSafeEnv
	}

	out := make([]string, 0, len(safe)+len(overrides)+4)
	for _, key := range safe {
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if strings.HasPrefix(val, "()") {
			continue
		}
		out = append(out, key+"="+val)
	}

	out = append(out, "CLAUDE_CODE_ENTRYPOINT="+entrypointValue)
	out = append(out, "AGENTWIRE_SDK_VERSION="+sdkVersion)

	for _, key := range apiKeyEnvVars {
		if val, ok := os.LookupEnv(key); ok {
			out = append(out, key+"="+val)
		}
	}

	for key, val := range overrides {
		out = removeEnvKey(out, key)
		out = append(out, key+"="+val)
	}

	return out
}

// removeEnvKey strips any existing "key=..." entry so a later append always
// wins, since a duplicate key in an envp slice is otherwise implementation
// defined.
func removeEnvKey(env []string, key string) []string {
	prefix := key + "="
	out := env[:0:0]
	for _, e := range env {
		if strings.HasPrefix(e, prefix) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// wrapForUser rewrites the command to run as another user on POSIX by
// prefixing `sudo -u <user>`. On other platforms the request is logged and
// ignored, per spec.md §4.5's "optional user-context wrapping".
func wrapForUser(path string, args []string, user string) (string, []string) {
	if user == "" {
		return path, args
	}
	if runtime.GOOS == "windows" {
		logUnsupportedUserWrap(user)
		return path, args
	}
	newArgs := make([]string, 0, len(args)+3)
	newArgs = append(newArgs, "-u", user, path)
	newArgs = append(newArgs, args...)
	return "sudo", newArgs
}

func logUnsupportedUserWrap(user string) {
	slog.Warn("user-context wrapping is not supported on this platform; ignoring", "user", user, "os", runtime.GOOS)
}
