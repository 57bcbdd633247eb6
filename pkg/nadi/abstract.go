package nadi

// Kind tags where an abstract node comes from. The Context never branches on
// it; it is reported in listings only.
type Kind string

const (
	// KindBuiltin marks abstract nodes compiled into the process.
	KindBuiltin Kind = "builtin"

	// KindPlugin marks abstract nodes loaded from a shared object at runtime.
	KindPlugin Kind = "plugin"
)

// Host is the view of the Context handed to node instances.
type Host interface {
	// Send transfers ownership of msg to the Context on success.
	Send(msg *Message, receiver Handle) error

	// Free releases a message the caller still owns, or gives back a delivery
	// (a Retain, or the receiver's own hold from inside Receive).
	Free(msg *Message)
}

// NodeParams are the construction parameters passed to a node factory.
type NodeParams struct {
	Handle       Handle         // Handle allocated for the new node
	InstanceName string         // Alias the node was created under
	Host         Host           // Context the node sends through
	Config       map[string]any // Optional instance configuration, may be nil
}

// Instance is a live node. Receive is invoked on a Context goroutine for every
// message delivered to one of the node's input channels; the message is only
// valid until Receive returns unless the instance calls Retain.
//
// An Instance that also implements io.Closer is closed once, after its final
// delivery, when the node is destroyed or the Context closes.
type Instance interface {
	Receive(msg *Message)
}

// AbstractNode is a template from which nodes are instantiated.
type AbstractNode interface {
	Descriptor() Descriptor
	Kind() Kind
	New(params NodeParams) (Instance, error)
}

// Factory builds an Instance for an in-process abstract node.
type Factory func(params NodeParams) (Instance, error)

// ReceiveFunc adapts a function to the Instance interface.
type ReceiveFunc func(msg *Message)

// Receive calls f(msg).
func (f ReceiveFunc) Receive(msg *Message) { f(msg) }

type builtin struct {
	desc    Descriptor
	factory Factory
}

// NewAbstractNode wraps a descriptor and factory as an in-process abstract node.
func NewAbstractNode(desc Descriptor, factory Factory) AbstractNode {
	if desc.InterfaceVersion == "" {
		desc.InterfaceVersion = InterfaceVersion
	}
	return &builtin{desc: desc, factory: factory}
}

func (b *builtin) Descriptor() Descriptor { return b.desc }

func (b *builtin) Kind() Kind { return KindBuiltin }

func (b *builtin) New(params NodeParams) (Instance, error) {
	if b.factory == nil {
		return nil, nil
	}
	return b.factory(params)
}
