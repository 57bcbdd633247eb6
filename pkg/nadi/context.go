package nadi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Options configure a Context.
type Options struct {
	Name    string      // Instance name reported in log events, default "default"
	Logger  *log.Logger // Default log.Default()
	Metrics *Metrics    // Default unregistered collectors
}

// Context is a running NADI graph: the node registry, the routing table, the
// dispatch core and the control plane behind handle 0.
//
// A Context is created running and is safe for concurrent use. Close tears it
// down; afterwards every operation fails with ErrNotInitialized.
type Context struct {
	name    string
	logger  *log.Logger
	metrics *Metrics

	// life is held for reading by every in-flight Send. Close takes it for
	// writing to flip closing, which waits out the in-flight sends.
	life    sync.RWMutex
	closing bool

	// mu guards the topology: registry, routes and stopped.
	mu      sync.RWMutex
	reg     *registry
	rt      *routes
	stopped bool

	workers   sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a running Context with its Context node installed at handle 0.
func New(opts Options) *Context {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	c := &Context{
		name:    opts.Name,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		reg:     newRegistry(),
		rt:      newRoutes(),
		done:    make(chan struct{}),
	}

	self := &node{
		handle: ContextHandle,
		alias:  ContextAlias,
		desc:   contextDescriptor(),
		box:    newMailbox(),
	}
	c.reg.insertContext(self)
	c.startWorker(self)
	c.metrics.Nodes.Set(1)

	c.logger.Printf("[Context] Started instance '%s'", c.name)
	return c
}

// Name returns the instance name given in Options.
func (c *Context) Name() string {
	return c.name
}

// Descriptor is the Context node's own capability answer.
func (c *Context) Descriptor() Descriptor {
	return contextDescriptor()
}

// Register adds an abstract node template. Names are unique per Context.
func (c *Context) Register(an AbstractNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrNotInitialized
	}
	if err := c.reg.register(an); err != nil {
		return fmt.Errorf("failed to register abstract node: %w", err)
	}
	return nil
}

// CreateNode instantiates abstractName under the alias instanceName and returns
// the new handle. An empty instanceName creates an unaliased node.
//
// The factory runs without the topology lock held, so it may call Send; the
// alias stays reserved until the factory returns.
func (c *Context) CreateNode(abstractName, instanceName string, config map[string]any) (Handle, error) {
	if err := validAlias(instanceName); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, ErrNotInitialized
	}
	an, h, err := c.reg.reserve(abstractName, instanceName)
	c.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to create node: %w", err)
	}

	inst, err := an.New(NodeParams{Handle: h, InstanceName: instanceName, Host: c, Config: config})
	if err != nil {
		c.mu.Lock()
		c.reg.cancel(instanceName)
		c.mu.Unlock()
		return 0, fmt.Errorf("failed to create node %q: %w: %v", instanceName, ErrFactory, err)
	}

	n := &node{
		handle:   h,
		alias:    instanceName,
		abstract: abstractName,
		desc:     an.Descriptor(),
		instance: inst,
		box:      newMailbox(),
	}

	c.mu.Lock()
	if c.stopped {
		c.reg.cancel(instanceName)
		c.mu.Unlock()
		closeInstance(c.logger, inst)
		return 0, ErrNotInitialized
	}
	c.reg.commit(n)
	c.startWorker(n)
	c.metrics.Nodes.Set(float64(len(c.reg.nodes)))
	c.mu.Unlock()

	c.logEvent("node_created", map[string]interface{}{
		"node":     uint64(h),
		"instance": instanceName,
		"abstract": abstractName,
	})
	return h, nil
}

// DestroyNode removes a node, its alias and every edge touching it. Deliveries
// still queued for the node are released undelivered; the instance is closed
// after its current callback returns.
func (c *Context) DestroyNode(ref NodeRef) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	n, err := c.reg.remove(ref)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to destroy node %s: %w", ref, err)
	}
	removed := c.rt.removeNode(n.handle)
	c.metrics.Nodes.Set(float64(len(c.reg.nodes)))
	c.metrics.Edges.Set(float64(len(c.rt.edges)))
	c.mu.Unlock()

	discarded := n.box.close(true)
	c.metrics.Discarded.Add(float64(discarded))

	c.logEvent("node_destroyed", map[string]interface{}{
		"node":          uint64(n.handle),
		"instance":      n.alias,
		"edges_removed": removed,
		"discarded":     discarded,
	})
	return nil
}

// ResolveAlias returns the handle of the live node named alias.
func (c *Context) ResolveAlias(alias string) (Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.resolveAlias(alias)
}

// Describe answers the capability query for a live node.
func (c *Context) Describe(ref NodeRef) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, err := c.reg.lookup(ref)
	if err != nil {
		return Descriptor{}, err
	}
	return n.desc, nil
}

// Nodes returns a snapshot of live nodes ordered by handle.
func (c *Context) Nodes() []NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.list()
}

// AbstractNodes returns a snapshot of registered templates in registration order.
func (c *Context) AbstractNodes() []AbstractInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reg.listAbstract()
}

// Connect adds the edge src -> dst. src must be a declared output channel and
// dst a declared input channel of live nodes.
func (c *Context) Connect(src, dst Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrNotInitialized
	}
	e, err := c.resolveEdge(src, dst)
	if err != nil {
		return fmt.Errorf("failed to connect %s -> %s: %w", src, dst, err)
	}
	s, _ := c.reg.get(e.Source.Node)
	if !s.desc.HasOutput(e.Source.Channel) {
		return fmt.Errorf("failed to connect %s -> %s: %w: %s is not an output of %s",
			src, dst, ErrInvalidChannel, e.Source.Channel, src.Node)
	}
	d, _ := c.reg.get(e.Destination.Node)
	if !d.desc.HasInput(e.Destination.Channel) {
		return fmt.Errorf("failed to connect %s -> %s: %w: %s is not an input of %s",
			src, dst, ErrInvalidChannel, e.Destination.Channel, dst.Node)
	}
	if err := c.rt.connect(e); err != nil {
		return fmt.Errorf("failed to connect %s -> %s: %w", src, dst, err)
	}
	c.metrics.Edges.Set(float64(len(c.rt.edges)))
	return nil
}

// Disconnect removes the edge src -> dst.
func (c *Context) Disconnect(src, dst Endpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrNotInitialized
	}
	e, err := c.resolveEdge(src, dst)
	if err != nil {
		return fmt.Errorf("failed to disconnect %s -> %s: %w", src, dst, err)
	}
	if err := c.rt.disconnect(e); err != nil {
		return fmt.Errorf("failed to disconnect %s -> %s: %w", src, dst, err)
	}
	c.metrics.Edges.Set(float64(len(c.rt.edges)))
	return nil
}

// resolveEdge turns two endpoints into an Edge between live nodes. Requires c.mu.
func (c *Context) resolveEdge(src, dst Endpoint) (Edge, error) {
	s, err := c.reg.lookup(src.Node)
	if err != nil {
		return Edge{}, err
	}
	d, err := c.reg.lookup(dst.Node)
	if err != nil {
		return Edge{}, err
	}
	return Edge{
		Source:      Port{Node: s.handle, Channel: src.Channel},
		Destination: Port{Node: d.handle, Channel: dst.Channel},
	}, nil
}

// Connections returns a snapshot of all edges in insertion order.
func (c *Context) Connections() []Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rt.list()
}

// Close tears the Context down. New sends fail with ErrNotInitialized, sends
// already in flight complete, queued deliveries are drained, and Close blocks
// until every receive callback has returned and every instance is closed.
// If ctx ends first Close returns its error; teardown continues in the background.
func (c *Context) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.life.Lock()
		c.closing = true
		c.life.Unlock()

		c.mu.Lock()
		c.stopped = true
		boxes := make([]*mailbox, 0, len(c.reg.nodes))
		for _, n := range c.reg.nodes {
			boxes = append(boxes, n.box)
		}
		c.mu.Unlock()

		for _, b := range boxes {
			b.close(false)
		}
		go func() {
			c.workers.Wait()
			c.logger.Printf("[Context] Instance '%s' stopped", c.name)
			close(c.done)
		}()
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Close has finished tearing the Context down.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// startWorker launches the goroutine serving a node's mailbox. Requires c.mu
// held for writing, or construction.
func (c *Context) startWorker(n *node) {
	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		n.box.run(func(m *Message) { c.deliver(n, m) })
		closeInstance(c.logger, n.instance)
	}()
}

// deliver hands one delivery to its node and then drops the delivery reference.
func (c *Context) deliver(n *node, m *Message) {
	if m.ref != nil {
		m.ref.pin()
		defer m.ref.unpin()
	}
	defer func() {
		if r := recover(); r != nil {
			c.metrics.CallbackPanics.Inc()
			c.logger.Printf("[Context] Receive callback of node %d (%s) panicked: %v", n.handle, n.alias, r)
		}
	}()

	start := time.Now()
	defer func() { c.metrics.CallbackSeconds.Observe(time.Since(start).Seconds()) }()

	switch {
	case n.handle == ContextHandle:
		c.handleControl(m)
	case m.Channel == ChannelConfiguration && isNodeCommand(m):
		c.handleNodeCommand(n, m)
	case n.instance != nil:
		n.instance.Receive(m)
	}
}

func closeInstance(logger *log.Logger, inst Instance) {
	closer, ok := inst.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Printf("[Context] Failed to close node instance: %v", err)
	}
}

// logEvent writes a structured JSON log line.
func (c *Context) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "context"
	data["event_type"] = eventType
	data["context"] = c.name

	jsonData, err := json.Marshal(data)
	if err != nil {
		c.logger.Printf("[Context] Failed to marshal log event: %v", err)
		return
	}
	c.logger.Println(string(jsonData))
}
