package nadi

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// ReleaseFunc frees the resources behind a message. It is invoked exactly once
// per message, by whichever owner drops the message last.
type ReleaseFunc func(msg *Message)

// NopRelease is a ReleaseFunc for messages whose buffers need no cleanup.
func NopRelease(*Message) {}

// Message is the unit of data exchanged between nodes: JSON metadata plus an
// opaque binary payload, tagged with the sending node and a channel.
//
// The sender fills the exported fields and hands the message to Send. After a
// successful Send the message is immutable and belongs to the Context.
// Deliveries passed to Receive are read-only views that share Meta and Data
// with the original; Channel on a delivery is the destination input channel.
// A delivery's Release is a no-op: receivers keep it with Retain and give it
// back with Host.Free.
type Message struct {
	Meta     []byte      // JSON document with a string "format" field
	MetaHash uint64      // Hash of Meta, 0 = unhashed; only comparable between messages of one sender
	Data     []byte      // Payload laid out according to the metadata format
	Channel  Channel     // Output channel when routed, input channel when delivered
	Node     Handle      // Sending node
	Release  ReleaseFunc // Must not be nil

	ref      *viewRef // non-nil on delivery views
	released sync.Once
}

// release invokes the release callback of an owner-held message once.
func (m *Message) release() {
	m.released.Do(func() {
		if m.Release != nil {
			m.Release(m)
		}
	})
}

// drop discards a message nobody will read: an undelivered view gives up
// every hold it has, an owner-held message is released.
func (m *Message) drop() {
	if m.ref != nil {
		m.ref.discard()
		return
	}
	m.release()
}

// free is Host.Free: a view gives back one hold, an owner-held message is
// released.
func (m *Message) free() {
	if m.ref != nil {
		m.ref.free()
		return
	}
	m.release()
}

// Retain keeps a delivery alive after Receive returns. Every Retain must be
// balanced by one Host.Free. Retain on a message that is not a delivery does
// nothing.
func (m *Message) Retain() *Message {
	if m.ref != nil {
		m.ref.retain()
	}
	return m
}

// Format parses the metadata and returns its "format" field.
func (m *Message) Format() (string, error) {
	return MetaFormat(m.Meta)
}

// MetaFormat extracts the mandatory string "format" field from a metadata document.
func MetaFormat(meta []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(meta, &fields); err != nil {
		return "", fmt.Errorf("%w: metadata is not a JSON object: %v", ErrInvalidMessage, err)
	}
	raw, ok := fields["format"]
	if !ok {
		return "", fmt.Errorf("%w: metadata has no format field", ErrInvalidMessage)
	}
	var format string
	if err := json.Unmarshal(raw, &format); err != nil {
		return "", fmt.Errorf("%w: metadata format is not a string", ErrInvalidMessage)
	}
	return format, nil
}

// HashMeta computes a non-zero metadata hash suitable for Message.MetaHash.
// Equal hashes are a hint only; receivers must parse the metadata whenever
// behavior depends on its content.
func HashMeta(meta []byte) uint64 {
	h := xxhash.Sum64(meta)
	if h == 0 {
		h = 1
	}
	return h
}

// JSONMessage builds an owner-held message with {"format":"json"} metadata
// and v marshaled as the payload.
func JSONMessage(sender Handle, ch Channel, v any) (*Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Message{
		Meta:     jsonMeta,
		MetaHash: jsonMetaHash,
		Data:     data,
		Channel:  ch,
		Node:     sender,
		Release:  NopRelease,
	}, nil
}

var (
	jsonMeta     = []byte(`{"format":"json"}`)
	jsonMetaHash = HashMeta(jsonMeta)
)

// Forward retains a delivery and wraps it in a new owner-held message sent by
// sender on ch. The payload is shared, not copied; releasing the returned
// message frees the retained delivery through host.
func Forward(host Host, delivery *Message, sender Handle, ch Channel) *Message {
	delivery.Retain()
	return &Message{
		Meta:     delivery.Meta,
		MetaHash: delivery.MetaHash,
		Data:     delivery.Data,
		Channel:  ch,
		Node:     sender,
		Release:  func(*Message) { host.Free(delivery) },
	}
}

// lease counts the outstanding views of one accepted message. The origin's
// release callback fires when the count reaches zero.
type lease struct {
	refs      atomic.Int64
	origin    *Message
	onRelease func()
}

func newLease(origin *Message, onRelease func()) *lease {
	l := &lease{origin: origin, onRelease: onRelease}
	l.refs.Store(1)
	return l
}

func (l *lease) acquire() {
	l.refs.Add(1)
}

func (l *lease) drop() {
	if l.refs.Add(-1) != 0 {
		return
	}
	l.origin.release()
	if l.onRelease != nil {
		l.onRelease()
	}
}

// view creates a delivery of the leased message on a destination channel.
// The caller must have acquired a reference for it; the view owns that
// single reference until its last hold is given up.
func (l *lease) view(ch Channel) *Message {
	o := l.origin
	return &Message{
		Meta:     o.Meta,
		MetaHash: o.MetaHash,
		Data:     o.Data,
		Channel:  ch,
		Node:     o.Node,
		Release:  NopRelease,
		ref:      &viewRef{lease: l, base: true},
	}
}

// viewRef tracks the holds on one delivery. A view is held by the receiver
// (base, given up by one Free or when Receive returns), by the running
// callback (pinned), and once per Retain. Its lease reference is dropped
// when the last hold goes.
type viewRef struct {
	lease *lease

	mu      sync.Mutex
	base    bool
	pinned  bool
	retains int
	dropped bool
}

// pin marks the receive callback as running.
func (v *viewRef) pin() {
	v.mu.Lock()
	v.pinned = true
	v.mu.Unlock()
}

// unpin ends the callback. The receiver's base hold ends with it, whether or
// not the callback freed the delivery.
func (v *viewRef) unpin() {
	v.mu.Lock()
	v.pinned = false
	v.base = false
	v.settle()
}

func (v *viewRef) retain() {
	v.mu.Lock()
	if !v.dropped {
		v.retains++
	}
	v.mu.Unlock()
}

// free gives back a Retain, or else the base hold. Frees beyond that are ignored.
func (v *viewRef) free() {
	v.mu.Lock()
	switch {
	case v.retains > 0:
		v.retains--
	case v.base:
		v.base = false
	}
	v.settle()
}

// discard gives up every hold of a view that was never delivered.
func (v *viewRef) discard() {
	v.mu.Lock()
	v.base, v.pinned, v.retains = false, false, 0
	v.settle()
}

// settle drops the lease reference once no hold remains. Requires v.mu held;
// it is released on return.
func (v *viewRef) settle() {
	last := !v.dropped && !v.base && !v.pinned && v.retains == 0
	if last {
		v.dropped = true
	}
	v.mu.Unlock()
	if last {
		v.lease.drop()
	}
}
