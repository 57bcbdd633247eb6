package nadi

import (
	"fmt"
	"strconv"
)

// Handle identifies a node within one Context. Handles are never reused while
// the Context is alive.
type Handle uint64

// ContextHandle is the handle of the Context node itself.
const ContextHandle Handle = 0

// ContextAlias is the reserved alias of the Context node.
const ContextAlias = "context"

// InterfaceVersion is the NADI interface version implemented by this package.
const InterfaceVersion = "1.0.0"

// Channel numbers a directional port on a node.
type Channel uint32

const (
	// ChannelContext is the Context's command input and, on other nodes, the
	// "configure context" output.
	ChannelContext Channel = 0xF000

	// ChannelConfiguration is the per-node configuration channel (input and output).
	ChannelConfiguration Channel = 0xF100

	// MaxUserChannel is the highest user-defined channel number.
	MaxUserChannel Channel = 0xF000
)

// Reserved reports whether c lies in the range kept for standardization.
func (c Channel) Reserved() bool {
	return c > MaxUserChannel
}

// String renders the channel in hex when it is reserved or the context channel.
func (c Channel) String() string {
	if c >= ChannelContext {
		return fmt.Sprintf("0x%X", uint32(c))
	}
	return strconv.FormatUint(uint64(c), 10)
}

// Port is a resolved (node, channel) pair.
type Port struct {
	Node    Handle  `json:"node"`
	Channel Channel `json:"channel"`
}

func (p Port) String() string {
	return fmt.Sprintf("%d:%s", p.Node, p.Channel)
}

// Edge is a directed connection from a source output port to a destination input port.
type Edge struct {
	Source      Port `json:"source"`
	Destination Port `json:"destination"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Source, e.Destination)
}

// NodeRef names a node either by alias or by handle.
type NodeRef struct {
	Alias  string
	Handle Handle
	named  bool
}

// ByAlias refers to a node by its instance name.
func ByAlias(alias string) NodeRef {
	return NodeRef{Alias: alias, named: true}
}

// ByHandle refers to a node by its handle.
func ByHandle(h Handle) NodeRef {
	return NodeRef{Handle: h}
}

// IsAlias reports whether the reference names an alias.
func (r NodeRef) IsAlias() bool {
	return r.named
}

func (r NodeRef) String() string {
	if r.named {
		return strconv.Quote(r.Alias)
	}
	return strconv.FormatUint(uint64(r.Handle), 10)
}

// Endpoint is an unresolved (node reference, channel) pair used by connect and disconnect.
type Endpoint struct {
	Node    NodeRef
	Channel Channel
}

// At builds an Endpoint.
func At(ref NodeRef, ch Channel) Endpoint {
	return Endpoint{Node: ref, Channel: ch}
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s", e.Node, e.Channel)
}

// NodeInfo is one entry of a node listing.
type NodeInfo struct {
	Alias    string `json:"instance"`
	Handle   Handle `json:"node"`
	Abstract string `json:"abstract"`
}
