// Package nadi implements the Context of the Node Agnostic Datastream
// Interface: the runtime that instantiates nodes from abstract node
// templates, routes messages between node channels, and owns the
// control plane that mutates the graph.
//
// # Overview
//
// A NADI graph is a set of nodes connected by directed edges. Every node
// declares numbered input and output channels in its Descriptor. An edge
// links one node's output channel to another node's input channel, and a
// single output may fan out to many inputs.
//
// The Context is itself a node with the fixed handle 0 and the alias
// "context". Commands sent to its input channel 0xF000 create and destroy
// nodes and connect or disconnect channels. Its responses leave on its own
// output channel 0xF000 and follow the routing table like any other message.
//
// # Messages and ownership
//
// A Message carries JSON metadata (with a mandatory "format" field), an
// opaque binary payload, and a non-nil release callback. Ownership is
// single-owner at all times:
//
//   - Before Send the caller owns the message.
//   - A successful Send moves ownership into the Context. The caller must
//     not touch the message again.
//   - A failed Send leaves ownership with the caller, who must call Free.
//
// When a message fans out, each destination receives a read-only view of the
// same metadata and payload. The release callback fires exactly once, after
// the last view is dropped.
//
// # Usage Example
//
//	ctx := nadi.New(nadi.Options{})
//	defer ctx.Close(context.Background())
//
//	_ = ctx.Register(myAbstractNode)
//	sensor, _ := ctx.CreateNode("sensor", "s1", nil)
//	sink, _ := ctx.CreateNode("sink", "k1", nil)
//	_ = ctx.Connect(nadi.At(nadi.ByAlias("s1"), 1), nadi.At(nadi.ByAlias("k1"), 1))
//
//	msg := &nadi.Message{
//		Meta:    []byte(`{"format":"json"}`),
//		Data:    []byte(`{"celsius":21.5}`),
//		Channel: 1,
//		Node:    sensor,
//		Release: func(*nadi.Message) {},
//	}
//	if err := ctx.Send(msg, nadi.ContextHandle); err != nil {
//		ctx.Free(msg)
//	}
//
// # Concurrency
//
// Send, Free, CreateNode and the other Context methods are safe for
// concurrent use. Each node owns a mailbox served by one goroutine, so a
// node's Receive is never invoked concurrently with itself and messages from
// one sender over one edge arrive in send order. Receive runs on a Context
// goroutine and must not block for long.
package nadi
