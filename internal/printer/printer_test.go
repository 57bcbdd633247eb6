package printer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/nadi/pkg/nadi"
)

// capture redirects output into buffers with colors disabled.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldColor := Stdout, Stderr, color.NoColor
	Stdout, Stderr, color.NoColor = out, errOut, true
	t.Cleanup(func() { Stdout, Stderr, color.NoColor = oldOut, oldErr, oldColor })
	return out, errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", nil)
		require.Error(t, err)
		assert.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "This is a test error")
	})

	t.Run("single suggestion printed plainly", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"Try this fix"})
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions numbered", func(t *testing.T) {
		_, errOut := capture(t)
		Error("Test Error", "Explanation", []string{"one", "two"})
		assert.Contains(t, errOut.String(), "Either:\n  1. one\n  2. two\n")
	})
}

func TestErrorWithContextSortsKeys(t *testing.T) {
	_, errOut := capture(t)
	err := ErrorWithContext("Bad graph", "", map[string]string{"node": "tick", "abstract": "ticker"}, nil)
	assert.Equal(t, "Bad graph", err.Error())
	assert.Contains(t, errOut.String(), "  abstract: ticker\n  node: tick\n")
}

func TestStatusLines(t *testing.T) {
	out, _ := capture(t)
	Success("started %s\n", "lab")
	Warning("careful\n")
	Step("loading\n")
	Info("plain\n")
	assert.Equal(t, "✓ started lab\n⚠️  careful\n→ loading\nplain\n", out.String())
}

func TestResponse(t *testing.T) {
	h := nadi.Handle(4)
	tests := []struct {
		name string
		resp nadi.Response
		want string
	}{
		{
			name: "create confirm",
			resp: nadi.Response{Type: nadi.TypeNodeCreateConfirm, ID: "1", Node: &h, InstanceName: "e1"},
			want: "✓ context.node.create.confirm [1]: e1 = node 4\n",
		},
		{
			name: "status confirm without id",
			resp: nadi.Response{Type: nadi.TypeConnectConfirm, Status: nadi.StatusSuccess},
			want: "✓ context.connect.confirm [-]\n",
		},
		{
			name: "context error",
			resp: nadi.Response{Type: nadi.TypeContextError, Request: nadi.TypeNodeDestroy, ID: "x", Status: nadi.StatusError, Message: "unknown node"},
			want: "✗ context.node.destroy failed [x]: unknown node\n",
		},
		{
			name: "node confirm error",
			resp: nadi.Response{Type: nadi.TypeNodeConnectConfirm, ID: "y", Status: nadi.StatusError, Message: "edge already exists"},
			want: "✗ node.connect.confirm [y]: edge already exists\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := capture(t)
			Response(&tt.resp)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
