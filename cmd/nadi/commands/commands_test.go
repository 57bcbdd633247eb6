package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nadi/internal/printer"
)

const pipelineYAML = `version: "1.0"
name: test
nodes:
  a:
    abstract: relay
  b:
    abstract: relay
connections:
  - source: a:1
    destination: b:1
`

// execute runs the root command with args, with every flag reset to its
// default, and returns combined stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldColor := printer.Stdout, printer.Stderr, color.NoColor
	printer.Stdout, printer.Stderr, color.NoColor = out, errOut, true
	t.Cleanup(func() { printer.Stdout, printer.Stderr, color.NoColor = oldOut, oldErr, oldColor })

	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootShowsHelpWhenNoSubcommand(t *testing.T) {
	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "nadi")
}

func TestRootRejectsUnknownFlags(t *testing.T) {
	_, _, err := execute(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestValidate(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", pipelineYAML)
		out, _, err := execute(t, "validate", "-f", path)
		require.NoError(t, err)
		assert.Contains(t, out, "is valid: 2 nodes, 1 connections")
	})

	t.Run("unknown abstract node", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", `version: "1.0"
nodes:
  a:
    abstract: nope
`)
		_, errOut, err := execute(t, "validate", "-f", path)
		require.Error(t, err)
		assert.Contains(t, errOut, "node 'a': unknown abstract node 'nope'")
	})

	t.Run("undeclared channels", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", `version: "1.0"
nodes:
  a:
    abstract: relay
  b:
    abstract: logger
connections:
  - source: a:7
    destination: b:2
`)
		_, errOut, err := execute(t, "validate", "-f", path)
		require.Error(t, err)
		assert.Contains(t, errOut, "'a' has no output channel 7")
		assert.Contains(t, errOut, "'b' has no input channel 2")
	})

	t.Run("redis nodes are known when redis is configured", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", `version: "1.0"
redis:
  url: redis://localhost:6379
nodes:
  pub:
    abstract: redis-publish
    config: {topic: out}
`)
		_, _, err := execute(t, "validate", "-f", path)
		assert.NoError(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, errOut, err := execute(t, "validate", "-f", filepath.Join(t.TempDir(), "absent.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NotEmpty(t, errOut)
	})
}

func TestAbstract(t *testing.T) {
	t.Run("table of built-ins", func(t *testing.T) {
		out, _, err := execute(t, "abstract", "-f", writeFile(t, "nadi.yml", pipelineYAML))
		require.NoError(t, err)
		for _, name := range []string{"relay", "logger", "ticker", "builtin"} {
			assert.Contains(t, out, name)
		}
		assert.NotContains(t, out, "redis-publish")
	})

	t.Run("jsonl with bridge nodes", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", `version: "1.0"
redis:
  url: redis://localhost:6379
nodes:
  a:
    abstract: relay
`)
		out, _, err := execute(t, "abstract", "-f", path, "-o", "jsonl")
		require.NoError(t, err)

		var names []string
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			var desc map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &desc))
			names = append(names, desc["name"].(string))
		}
		assert.Equal(t, []string{"relay", "logger", "ticker", "redis-publish", "redis-subscribe"}, names)
	})

	t.Run("filtered", func(t *testing.T) {
		path := writeFile(t, "nadi.yml", `version: "1.0"
redis:
  url: redis://localhost:6379
nodes:
  a:
    abstract: relay
`)
		out, _, err := execute(t, "abstract", "-f", path, "--name", "redis-*")
		require.NoError(t, err)
		assert.Contains(t, out, "redis-publish")
		assert.Contains(t, out, "redis-subscribe")
		assert.NotContains(t, out, "ticker")
		assert.Contains(t, out, "2 abstract nodes")

		out, _, err = execute(t, "abstract", "-f", path, "--data-type", "microseconds-double")
		require.NoError(t, err)
		assert.Contains(t, out, "ticker")
		assert.Contains(t, out, "1 abstract node\n")
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, _, err := execute(t, "abstract", "--kind", "remote")
		require.Error(t, err)
		assert.Equal(t, "invalid kind", err.Error())
	})

	t.Run("invalid output format", func(t *testing.T) {
		_, _, err := execute(t, "abstract", "-o", "xml")
		require.Error(t, err)
		assert.Equal(t, "invalid output format", err.Error())
	})
}

func TestExec(t *testing.T) {
	cfg := writeFile(t, "nadi.yml", `version: "1.0"
nodes:
  a:
    abstract: relay
`)

	t.Run("applies requests and prints the graph", func(t *testing.T) {
		script := writeFile(t, "wire.jsonc", `[
  // second relay, wired behind the configured one
  {"type": "context.node.create", "abstract_name": "relay", "instance_name": "b", "id": "c1"},
  {"type": "context.connect", "source": ["a", 1], "destination": ["b", 1], "id": "c2"},
]`)
		out, _, err := execute(t, "exec", "-f", cfg, script)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ context.node.create.confirm [c1]: b = node")
		assert.Contains(t, out, "✓ context.connect.confirm [c2]")
		assert.Contains(t, out, "a:1")
		assert.Contains(t, out, "b:1")
		assert.Contains(t, out, "nadi-exec")
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		script := writeFile(t, "bad.jsonc", `[
  {"type": "context.node.destroy", "instance_name": "ghost", "id": "d1"},
  {"type": "context.node.create", "abstract_name": "relay", "instance_name": "b", "id": "c1"}
]`)
		out, _, err := execute(t, "exec", "-f", cfg, script)
		require.Error(t, err)
		assert.Equal(t, "1 of 2 requests failed", err.Error())
		assert.Contains(t, out, "✗ context.node.destroy failed [d1]")
		assert.NotContains(t, out, "[c1]")
	})

	t.Run("keep going", func(t *testing.T) {
		script := writeFile(t, "bad.jsonc", `[
  {"type": "context.node.destroy", "instance_name": "ghost", "id": "d1"},
  {"type": "context.node.create", "abstract_name": "relay", "instance_name": "b", "id": "c1"}
]`)
		out, _, err := execute(t, "exec", "-f", cfg, "--keep-going", script)
		require.Error(t, err)
		assert.Contains(t, out, "[c1]")
	})

	t.Run("jsonl output", func(t *testing.T) {
		script := writeFile(t, "list.jsonc", `{"type": "context.nodes", "id": "n1"}`)
		out, _, err := execute(t, "exec", "-f", cfg, "-o", "jsonl", script)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 1)
		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &resp))
		assert.Equal(t, "context.nodes.list", resp["type"])
		assert.Equal(t, "n1", resp["id"])
	})

	t.Run("invalid script", func(t *testing.T) {
		_, errOut, err := execute(t, "exec", "-f", cfg, writeFile(t, "bad.jsonc", `[1, 2]`))
		require.Error(t, err)
		assert.Equal(t, "invalid control script", err.Error())
		assert.Contains(t, errOut, "request 0 is not a JSON object")
	})
}

func TestRun(t *testing.T) {
	path := writeFile(t, "nadi.yml", pipelineYAML)
	out, _, err := execute(t, "run", "-f", path, "--for", "100ms", "--no-http")
	require.NoError(t, err)
	assert.Contains(t, out, "Graph 'test' running with 2 nodes and 1 connections")
	assert.Contains(t, out, "Shutting down gracefully")
}

func TestRunFailsOnBadConnection(t *testing.T) {
	path := writeFile(t, "nadi.yml", `version: "1.0"
nodes:
  a:
    abstract: relay
connections:
  - source: a:9
    destination: a:1
`)
	_, errOut, err := execute(t, "run", "-f", path, "--for", "100ms", "--no-http")
	require.Error(t, err)
	assert.Equal(t, "failed to build graph", err.Error())
	assert.Contains(t, errOut, "connection 0")
}

func TestInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graph")
	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)

	_, _, err = execute(t, "validate", "-f", filepath.Join(dir, "nadi.yml"))
	assert.NoError(t, err)

	_, _, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph already initialized")

	_, _, err = execute(t, "init", "--force", dir)
	assert.NoError(t, err)
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    int
		wantErr string
	}{
		{name: "single object", script: `{"type": "context.nodes"}`, want: 1},
		{name: "array with comments", script: "[\n// one\n{\"type\": \"context.nodes\"}, /* two */ {\"type\": \"context.connections\"},\n]", want: 2},
		{name: "empty", script: "  // nothing\n", wantErr: "script is empty"},
		{name: "scalar", script: `42`, wantErr: "script must be"},
		{name: "array of strings", script: `["x"]`, wantErr: "request 0 is not a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScript([]byte(tt.script))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}
