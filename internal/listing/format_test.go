package listing

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nadi/pkg/nadi"
)

func TestFormatNodesTable(t *testing.T) {
	var buf bytes.Buffer
	n, err := FormatNodesTable(&buf, []nadi.NodeInfo{
		{Alias: "context", Handle: 0, Abstract: "context"},
		{Alias: "", Handle: 4, Abstract: "relay"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	out := buf.String()
	assert.Contains(t, out, "HANDLE")
	assert.Contains(t, out, "relay")
	assert.Contains(t, out, "2 nodes")

	buf.Reset()
	n, err = FormatNodesTable(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "No nodes\n", buf.String())
}

func TestFormatAbstractTable(t *testing.T) {
	var buf bytes.Buffer
	n, err := FormatAbstractTable(&buf, []nadi.AbstractInfo{{
		Descriptor: nadi.Descriptor{
			Name:        "ticker",
			Version:     "1.0.0",
			Description: strings.Repeat("x", 50),
			Channels: nadi.Channels{
				Output: []nadi.ChannelDescriptor{{Number: 1, Name: "out"}, nadi.ConfigurationChannel()},
			},
		},
		Kind: nadi.KindPlugin,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := buf.String()
	assert.Contains(t, out, "1(out) 0xF100(configuration)")
	assert.Contains(t, out, "plugin")
	assert.Contains(t, out, strings.Repeat("x", 37)+"...")
	assert.Contains(t, out, "1 abstract node\n")
}

func TestFormatConnectionsTable(t *testing.T) {
	var buf bytes.Buffer
	n, err := FormatConnectionsTable(&buf, []nadi.Connection{
		{Source: nadi.At(nadi.ByAlias("context"), nadi.ChannelContext), Target: nadi.At(nadi.ByHandle(3), nadi.ChannelContext)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "context:0xF000")
	assert.Contains(t, buf.String(), "3:0xF000")
}

func TestFormatJSONL(t *testing.T) {
	var buf bytes.Buffer
	nodes := []nadi.NodeInfo{{Alias: "a", Handle: 1, Abstract: "relay"}, {Alias: "b", Handle: 2, Abstract: "logger"}}
	require.NoError(t, FormatJSONL(&buf, nodes))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "a", first["instance"])
	assert.Equal(t, float64(1), first["node"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "-", truncate("", 10))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijk", 10))
}
