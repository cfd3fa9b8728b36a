package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bazelment/yoloswe/agentwire/transport"
)

// readFileParams is the input schema for the demo's one SDK-side MCP tool,
// reflected into JSON Schema by transport.AddTool via invopop/jsonschema.
type readFileParams struct {
	Path string `json:"path" jsonschema:"required,description=Path to a file under the working directory"`
}

// registerDemoTools wires a single "read_file" tool into an MCP server
// named "demo-tools", showing how a host exposes its own tools to the CLI
// alongside whatever tools the CLI already knows about natively.
func registerDemoTools(t *transport.Transport) {
	registry := transport.NewTypedToolRegistry()
	transport.AddTool(registry, "read_file", "Read a text file under the working directory", readFile)
	t.RegisterMCPServer("demo-tools", registry)
}

func readFile(ctx context.Context, p readFileParams) (string, error) {
	if filepath.IsAbs(p.Path) {
		return "", fmt.Errorf("path must be relative to the working directory")
	}
	data, err := os.ReadFile(filepath.Clean(p.Path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
