package control

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupClient(t *testing.T) (*nadi.Context, *Client) {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	c := nadi.New(nadi.Options{Name: "test", Logger: quiet})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	echo := nadi.NewAbstractNode(nadi.Descriptor{
		Name:    "echo",
		Version: "1.0.0",
		Channels: nadi.Channels{
			Input:  []nadi.ChannelDescriptor{{Number: 1}},
			Output: []nadi.ChannelDescriptor{{Number: 2}},
		},
	}, func(nadi.NodeParams) (nadi.Instance, error) {
		return nadi.ReceiveFunc(func(*nadi.Message) {}), nil
	})
	require.NoError(t, c.Register(echo))

	client, err := Attach(c, Options{Timeout: time.Second, Logger: quiet})
	require.NoError(t, err)
	return c, client
}

func TestClientLifecycle(t *testing.T) {
	c, client := setupClient(t)
	ctx := context.Background()

	h, err := client.CreateNode(ctx, "echo", "e1", map[string]any{"rate": 2})
	require.NoError(t, err)
	resolved, err := c.ResolveAlias("e1")
	require.NoError(t, err)
	assert.Equal(t, resolved, h)

	require.NoError(t, client.Connect(ctx, nadi.At(nadi.ByAlias("e1"), 2), nadi.At(nadi.ByAlias("e1"), 1)))

	conns, err := client.Connections(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, nadi.At(nadi.ByAlias("e1"), 2), conns[1].Source)

	nodes, err := client.Nodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.Nodes(), nodes)

	abstracts, err := client.AbstractNodes(ctx)
	require.NoError(t, err)
	require.Len(t, abstracts, 2)
	assert.Equal(t, "echo", abstracts[0].Name)
	assert.Equal(t, AbstractName, abstracts[1].Name)

	require.NoError(t, client.Disconnect(ctx, nadi.At(nadi.ByAlias("e1"), 2), nadi.At(nadi.ByAlias("e1"), 1)))
	require.NoError(t, client.DestroyNode(ctx, "e1"))
	_, err = c.ResolveAlias("e1")
	assert.ErrorIs(t, err, nadi.ErrUnknownAlias)
}

func TestClientErrorResponses(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	err := client.DestroyNode(ctx, "missing")
	assert.ErrorIs(t, err, ErrRequestFailed)

	resp, err := client.Do(ctx, nadi.DestroyNodeRequest("req-1", "missing"))
	assert.ErrorIs(t, err, ErrRequestFailed)
	require.NotNil(t, resp)
	assert.Equal(t, nadi.TypeContextError, resp.Type)
	assert.Equal(t, "req-1", resp.ID)

	_, err = client.CreateNode(ctx, "echo", "control", nil)
	assert.ErrorIs(t, err, ErrRequestFailed, "alias already held by the client")
}

func TestClientDoRaw(t *testing.T) {
	_, client := setupClient(t)
	ctx := context.Background()

	resp, err := client.DoRaw(ctx, []byte(`{"type":"context.nodes"}`))
	require.NoError(t, err)
	assert.Equal(t, nadi.TypeNodesList, resp.Type)
	assert.NotEmpty(t, resp.ID)

	resp, err = client.DoRaw(ctx, []byte(`{"type":"context.bogus","id":"b"}`))
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, "b", resp.ID)

	_, err = client.DoRaw(ctx, []byte(`[1]`))
	assert.ErrorIs(t, err, nadi.ErrSchemaInvalid)
}

func TestClientContextCancel(t *testing.T) {
	_, client := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Do(ctx, nadi.ListRequest("", nadi.TypeNodes))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestClientClosedWithContext(t *testing.T) {
	c, client := setupClient(t)
	require.NoError(t, c.Close(context.Background()))

	_, err := client.Do(context.Background(), nadi.ListRequest("", nadi.TypeNodes))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFactoryRequiresAttach(t *testing.T) {
	c, _ := setupClient(t)
	_, err := c.CreateNode(AbstractName, "rogue", nil)
	assert.ErrorIs(t, err, nadi.ErrFactory)
}
