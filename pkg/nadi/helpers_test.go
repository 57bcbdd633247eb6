package nadi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// delivery is a copy of one message seen by a recorder node.
type delivery struct {
	To      Handle
	Channel Channel
	From    Handle
	Meta    []byte
	Data    []byte
}

// recorder is an abstract node whose instances copy every delivery onto seen.
type recorder struct {
	desc Descriptor
	seen chan delivery
}

func newRecorder(name string, inputs, outputs []Channel) *recorder {
	desc := Descriptor{Name: name, Version: "0.1.0"}
	for _, ch := range inputs {
		desc.Channels.Input = append(desc.Channels.Input, ChannelDescriptor{Number: ch})
	}
	for _, ch := range outputs {
		desc.Channels.Output = append(desc.Channels.Output, ChannelDescriptor{Number: ch})
	}
	return &recorder{desc: desc, seen: make(chan delivery, 256)}
}

func (p *recorder) abstract() AbstractNode {
	return NewAbstractNode(p.desc, func(params NodeParams) (Instance, error) {
		h := params.Handle
		return ReceiveFunc(func(m *Message) {
			p.seen <- delivery{
				To:      h,
				Channel: m.Channel,
				From:    m.Node,
				Meta:    append([]byte(nil), m.Meta...),
				Data:    append([]byte(nil), m.Data...),
			}
		}), nil
	})
}

func (p *recorder) next(t *testing.T) delivery {
	t.Helper()
	select {
	case d := <-p.seen:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return delivery{}
	}
}

func (p *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case d := <-p.seen:
		t.Fatalf("unexpected delivery on channel %s from %d: %s", d.Channel, d.From, d.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

// newTestContext returns a Context that is closed when the test ends.
func newTestContext(t *testing.T) *Context {
	t.Helper()
	c := New(Options{Name: "test", Logger: log.New(io.Discard, "", 0)})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// controller is a node wired to the Context's command input and response output.
type controller struct {
	c      *Context
	handle Handle
	rec    *recorder
}

func newController(t *testing.T, c *Context) *controller {
	t.Helper()
	p := newRecorder("controller", []Channel{ChannelContext}, []Channel{ChannelContext})
	require.NoError(t, c.Register(p.abstract()))
	h, err := c.CreateNode("controller", "ctl", nil)
	require.NoError(t, err)
	require.NoError(t, c.Connect(At(ByHandle(ContextHandle), ChannelContext), At(ByHandle(h), ChannelContext)))
	return &controller{c: c, handle: h, rec: p}
}

// request sends v to the Context and returns the next response.
func (ctl *controller) request(t *testing.T, v any) *Response {
	t.Helper()
	msg, err := JSONMessage(ctl.handle, ChannelContext, v)
	require.NoError(t, err)
	require.NoError(t, ctl.c.Send(msg, ContextHandle))
	return ctl.response(t)
}

// raw sends an arbitrary payload as a control request.
func (ctl *controller) raw(t *testing.T, payload string) *Response {
	t.Helper()
	msg := &Message{Meta: jsonMeta, Data: []byte(payload), Channel: ChannelContext, Node: ctl.handle, Release: NopRelease}
	require.NoError(t, ctl.c.Send(msg, ContextHandle))
	return ctl.response(t)
}

func (ctl *controller) response(t *testing.T) *Response {
	t.Helper()
	d := ctl.rec.next(t)
	require.Equal(t, ContextHandle, d.From)
	resp, err := DecodeResponse(d.Data)
	require.NoError(t, err)
	return resp
}

// releaseCounter builds release callbacks that count their invocations.
type releaseCounter struct {
	n atomic.Int64
}

func (r *releaseCounter) release(*Message) { r.n.Add(1) }

func (r *releaseCounter) count() int64 { return r.n.Load() }

func rawMessage(sender Handle, ch Channel, meta, data string, release ReleaseFunc) *Message {
	return &Message{Meta: []byte(meta), Data: []byte(data), Channel: ch, Node: sender, Release: release}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
