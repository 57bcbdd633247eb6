package scaffold

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/jsonc"

	"github.com/dyluth/nadi/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name:      "fresh initialization",
			setupFunc: func(dir string) {},
		},
		{
			name: "creates missing directory",
			setupFunc: func(dir string) {
				os.RemoveAll(dir)
			},
		},
		{
			name: "existing files without force",
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, GraphFile), []byte("old content"), 0644)
			},
			wantErr: true,
		},
		{
			name:  "force overwrites existing files",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, GraphFile), []byte("old content"), 0644)
				os.WriteFile(filepath.Join(dir, ScriptFile), []byte("old"), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "graph")
			require.NoError(t, os.MkdirAll(dir, 0755))
			tt.setupFunc(dir)

			err := Initialize(dir, tt.force)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			cfg, err := config.Load(filepath.Join(dir, GraphFile))
			require.NoError(t, err)
			assert.Equal(t, "example", cfg.Name)
			assert.Len(t, cfg.Nodes, 3)
			assert.Len(t, cfg.Connections, 2)

			script, err := os.ReadFile(filepath.Join(dir, ScriptFile))
			require.NoError(t, err)
			var requests []map[string]any
			require.NoError(t, json.Unmarshal(jsonc.ToJSON(script), &requests))
			assert.Len(t, requests, 3)
		})
	}
}

func TestCheckExisting(t *testing.T) {
	t.Run("clean directory", func(t *testing.T) {
		assert.NoError(t, CheckExisting(t.TempDir()))
	})

	t.Run("single file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ScriptFile), nil, 0644))
		err := CheckExisting(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Found existing: wire.jsonc")
	})

	t.Run("both files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, GraphFile), nil, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ScriptFile), nil, 0644))
		err := CheckExisting(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "  - nadi.yml\n")
		assert.Contains(t, err.Error(), "  - wire.jsonc\n")
		assert.Contains(t, err.Error(), "nadi init --force")
	})
}
