package nodes

import (
	"log"

	"github.com/dyluth/nadi/pkg/nadi"
)

// Relay forwards everything arriving on input 1 to output 1 without copying
// the payload.
func Relay() nadi.AbstractNode {
	return nadi.NewAbstractNode(nadi.Descriptor{
		Name:        "relay",
		Version:     "1.0.0",
		Description: "Forwards input 1 to output 1",
		Channels: nadi.Channels{
			Input:  []nadi.ChannelDescriptor{{Number: 1, Name: "in"}},
			Output: []nadi.ChannelDescriptor{{Number: 1, Name: "out"}},
		},
	}, func(p nadi.NodeParams) (nadi.Instance, error) {
		return &relay{host: p.Host, handle: p.Handle}, nil
	})
}

type relay struct {
	host   nadi.Host
	handle nadi.Handle
}

func (r *relay) Receive(msg *nadi.Message) {
	out := nadi.Forward(r.host, msg, r.handle, 1)
	if err := r.host.Send(out, nadi.ContextHandle); err != nil {
		log.Printf("[WARN] relay %d: forward failed: %v", r.handle, err)
		r.host.Free(out)
	}
}
