// Package control provides a client node that drives a Context's control plane
// through ordinary messages, correlating each response to its request by id.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/google/uuid"
)

// AbstractName is the abstract node name registered by Attach.
const AbstractName = "control-client"

// DefaultTimeout is the per-request timeout when Options leaves it unset.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = errors.New("control request timed out")

	// ErrRequestFailed wraps the message of an error response.
	ErrRequestFailed = errors.New("control request failed")

	// ErrClosed is returned for requests pending when the client node is destroyed.
	ErrClosed = errors.New("control client closed")
)

// Graph is the part of a Context needed to install a client node.
type Graph interface {
	Register(an nadi.AbstractNode) error
	CreateNode(abstractName, instanceName string, config map[string]any) (nadi.Handle, error)
	Connect(src, dst nadi.Endpoint) error
}

// Options configure a Client.
type Options struct {
	Alias   string        // Instance name of the client node, default "control"
	Timeout time.Duration // Per-request timeout, default DefaultTimeout
	Logger  *log.Logger   // Default log.Default()
}

// Client is a node that sends control requests on its "configure context"
// output and receives responses from the Context's response output.
type Client struct {
	handle  nadi.Handle
	host    nadi.Host
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	pending map[string]chan *nadi.Response
	closed  bool
}

// Descriptor is the client node's capability answer.
func Descriptor() nadi.Descriptor {
	return nadi.Descriptor{
		Name:        AbstractName,
		Version:     "1.0.0",
		Description: "Sends control requests and correlates their responses",
		Channels: nadi.Channels{
			Input:  []nadi.ChannelDescriptor{{Number: nadi.ChannelContext, Name: "responses", DataTypes: []string{"json"}}},
			Output: []nadi.ChannelDescriptor{nadi.ConfigureContextChannel()},
		},
	}
}

// Attach registers the client abstract node (once per Context), creates a
// client instance and connects the Context's response output to it.
//
// Each Client must use its own alias.
func Attach(g Graph, opts Options) (*Client, error) {
	if opts.Alias == "" {
		opts.Alias = "control"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	an := nadi.NewAbstractNode(Descriptor(), func(p nadi.NodeParams) (nadi.Instance, error) {
		client, ok := p.Config["client"].(*Client)
		if !ok {
			return nil, fmt.Errorf("%s must be created through control.Attach", AbstractName)
		}
		client.handle = p.Handle
		client.host = p.Host
		return client, nil
	})
	if err := g.Register(an); err != nil && !errors.Is(err, nadi.ErrAbstractExists) {
		return nil, err
	}

	c := &Client{
		timeout: opts.Timeout,
		logger:  opts.Logger,
		pending: make(map[string]chan *nadi.Response),
	}
	h, err := g.CreateNode(AbstractName, opts.Alias, map[string]any{"client": c})
	if err != nil {
		return nil, fmt.Errorf("failed to create control client: %w", err)
	}
	err = g.Connect(
		nadi.At(nadi.ByHandle(nadi.ContextHandle), nadi.ChannelContext),
		nadi.At(nadi.ByHandle(h), nadi.ChannelContext),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect control client: %w", err)
	}
	return c, nil
}

// Handle returns the client node's handle.
func (c *Client) Handle() nadi.Handle {
	return c.handle
}

// Receive matches a response to its pending request. Responses without a
// pending request (another client's, or one that timed out) are ignored.
func (c *Client) Receive(msg *nadi.Message) {
	resp, err := nadi.DecodeResponse(msg.Data)
	if err != nil {
		c.logger.Printf("[WARN] Control client dropped undecodable response: %v", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// Close fails every pending request. It runs when the node is destroyed or
// the Context closes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	return nil
}

// Do sends req and waits for its response. A missing id is filled with a
// fresh uuid. Error responses are returned together with an error wrapping
// ErrRequestFailed.
func (c *Client) Do(ctx context.Context, req nadi.Request) (*nadi.Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return c.do(ctx, req.ID, req)
}

// DoRaw sends an arbitrary JSON object as a control request. The object's
// "id" is filled in when absent so the response can be correlated.
func (c *Client) DoRaw(ctx context.Context, payload []byte) (*nadi.Response, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: request is not a JSON object", nadi.ErrSchemaInvalid)
	}
	id, _ := fields["id"].(string)
	if id == "" {
		id = uuid.NewString()
		fields["id"] = id
	}
	return c.do(ctx, id, fields)
}

func (c *Client) do(ctx context.Context, id string, body any) (*nadi.Response, error) {
	if c.host == nil {
		return nil, ErrClosed
	}
	msg, err := nadi.JSONMessage(c.handle, nadi.ChannelContext, body)
	if err != nil {
		return nil, err
	}

	ch := make(chan *nadi.Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.host.Send(msg, nadi.ContextHandle); err != nil {
		c.forget(id)
		c.host.Free(msg)
		return nil, fmt.Errorf("failed to send control request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.Failed() {
			return resp, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Message)
		}
		return resp, nil
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("%w after %s (id %s)", ErrTimeout, c.timeout, id)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// CreateNode asks the Context to instantiate abstractName as instanceName.
func (c *Client) CreateNode(ctx context.Context, abstractName, instanceName string, config map[string]any) (nadi.Handle, error) {
	resp, err := c.Do(ctx, nadi.CreateNodeRequest("", abstractName, instanceName, config))
	if err != nil {
		return 0, err
	}
	if resp.Node == nil {
		return 0, fmt.Errorf("%w: create confirm carries no node", ErrRequestFailed)
	}
	return *resp.Node, nil
}

// DestroyNode asks the Context to destroy the node named instanceName.
func (c *Client) DestroyNode(ctx context.Context, instanceName string) error {
	_, err := c.Do(ctx, nadi.DestroyNodeRequest("", instanceName))
	return err
}

// Connect asks the Context to add the edge src -> dst.
func (c *Client) Connect(ctx context.Context, src, dst nadi.Endpoint) error {
	_, err := c.Do(ctx, nadi.ConnectRequest("", src, dst))
	return err
}

// Disconnect asks the Context to remove the edge src -> dst.
func (c *Client) Disconnect(ctx context.Context, src, dst nadi.Endpoint) error {
	_, err := c.Do(ctx, nadi.DisconnectRequest("", src, dst))
	return err
}

// Connections fetches the routing table.
func (c *Client) Connections(ctx context.Context) ([]nadi.Connection, error) {
	var out []nadi.Connection
	err := c.list(ctx, nadi.TypeConnections, func(r *nadi.Response) error {
		return json.Unmarshal(r.Connections, &out)
	})
	return out, err
}

// Nodes fetches the live node listing.
func (c *Client) Nodes(ctx context.Context) ([]nadi.NodeInfo, error) {
	var out []nadi.NodeInfo
	err := c.list(ctx, nadi.TypeNodes, func(r *nadi.Response) error {
		return json.Unmarshal(r.Instances, &out)
	})
	return out, err
}

// AbstractNodes fetches the abstract node listing.
func (c *Client) AbstractNodes(ctx context.Context) ([]nadi.AbstractInfo, error) {
	var out []nadi.AbstractInfo
	err := c.list(ctx, nadi.TypeAbstractNodes, func(r *nadi.Response) error {
		return json.Unmarshal(r.Instances, &out)
	})
	return out, err
}

func (c *Client) list(ctx context.Context, typ string, decode func(*nadi.Response) error) error {
	resp, err := c.Do(ctx, nadi.ListRequest("", typ))
	if err != nil {
		return err
	}
	if err := decode(resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", typ, err)
	}
	return nil
}
