package nadi

import "fmt"

// target is one resolved delivery destination.
type target struct {
	box     *mailbox
	channel Channel
}

// Send hands msg to the Context, addressed to receiver.
//
// With receiver == ContextHandle the Context acts as router: channel 0xF000 is
// a control request, any other channel must be a declared output of msg.Node
// and the message fans out along every edge leaving (msg.Node, msg.Channel).
// With any other receiver the message is delivered directly to that node's
// declared input channel msg.Channel.
//
// On success ownership of msg moves to the Context and the caller must not
// touch it again; its release callback fires once the last destination is
// done with it, or immediately when there is no destination. On failure the
// caller still owns msg and must Free it. Send never retries.
func (c *Context) Send(msg *Message, receiver Handle) error {
	if err := checkMessage(msg); err != nil {
		c.metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return err
	}

	c.life.RLock()
	defer c.life.RUnlock()
	if c.closing {
		c.metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return ErrNotInitialized
	}

	c.mu.RLock()
	targets, err := c.resolveTargets(msg, receiver)
	if err != nil {
		c.mu.RUnlock()
		c.metrics.MessagesSent.WithLabelValues("rejected").Inc()
		return err
	}
	l := c.enqueue(msg, targets)
	c.mu.RUnlock()

	c.metrics.MessagesSent.WithLabelValues("accepted").Inc()
	l.drop()
	return nil
}

// Free releases a message the caller still owns (after a failed Send, or one
// never sent) or gives back a delivery: once per Retain, plus once from inside
// Receive when the callback is done reading. A delivery's lease reference
// outlives its running callback either way.
func (c *Context) Free(msg *Message) {
	if msg == nil {
		return
	}
	msg.free()
}

// checkMessage validates the parts of a message Send relies on.
func checkMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.Release == nil {
		return fmt.Errorf("%w: release callback is nil", ErrInvalidMessage)
	}
	if msg.ref != nil {
		return fmt.Errorf("%w: deliveries cannot be re-sent, use Forward", ErrInvalidMessage)
	}
	if _, err := MetaFormat(msg.Meta); err != nil {
		return err
	}
	return nil
}

// resolveTargets computes the destinations of a send. Requires c.mu held for reading.
func (c *Context) resolveTargets(msg *Message, receiver Handle) ([]target, error) {
	if receiver != ContextHandle {
		recv, ok := c.reg.get(receiver)
		if !ok {
			return nil, fmt.Errorf("%w: receiver %d", ErrInvalidNode, receiver)
		}
		if !recv.desc.HasInput(msg.Channel) {
			return nil, fmt.Errorf("%w: %s is not an input of node %d", ErrInvalidChannel, msg.Channel, receiver)
		}
		return []target{{box: recv.box, channel: msg.Channel}}, nil
	}

	sender, ok := c.reg.get(msg.Node)
	if !ok {
		return nil, fmt.Errorf("%w: sender %d", ErrInvalidNode, msg.Node)
	}
	if msg.Channel == ChannelContext {
		self, _ := c.reg.get(ContextHandle)
		return []target{{box: self.box, channel: ChannelContext}}, nil
	}
	if !sender.desc.HasOutput(msg.Channel) {
		return nil, fmt.Errorf("%w: %s is not an output of node %d", ErrInvalidChannel, msg.Channel, msg.Node)
	}
	return c.routeTargets(Port{Node: msg.Node, Channel: msg.Channel}), nil
}

// routeTargets resolves the routing table for src. Requires c.mu held for reading.
func (c *Context) routeTargets(src Port) []target {
	dests := c.rt.resolve(src)
	targets := make([]target, 0, len(dests))
	for _, d := range dests {
		n, ok := c.reg.get(d.Node)
		if !ok {
			continue
		}
		targets = append(targets, target{box: n.box, channel: d.Channel})
	}
	return targets
}

// enqueue leases msg and queues one view per target. The returned lease still
// holds the dispatch reference, which the caller drops once the topology lock
// is released. Requires c.mu held for reading.
func (c *Context) enqueue(msg *Message, targets []target) *lease {
	l := newLease(msg, c.metrics.Released.Inc)
	queued := 0
	for _, t := range targets {
		l.acquire()
		v := l.view(t.channel)
		if !t.box.put(v) {
			v.drop()
			continue
		}
		queued++
	}
	c.metrics.Deliveries.Add(float64(queued))
	if queued == 0 {
		c.metrics.Unrouted.Inc()
	}
	return l
}

// emit routes a message produced by the runtime itself (control responses)
// from msg's (Node, Channel) along the routing table. Undeliverable messages
// are released.
func (c *Context) emit(msg *Message) {
	c.mu.RLock()
	if c.stopped {
		c.mu.RUnlock()
		msg.release()
		return
	}
	l := c.enqueue(msg, c.routeTargets(Port{Node: msg.Node, Channel: msg.Channel}))
	c.mu.RUnlock()
	l.drop()
}
