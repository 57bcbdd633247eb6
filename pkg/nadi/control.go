package nadi

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

type createConfirm struct {
	Type         string `json:"type"`
	Node         Handle `json:"node"`
	InstanceName string `json:"instance_name"`
	ID           string `json:"id"`
}

type statusConfirm struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

type connectionsList struct {
	Type        string       `json:"type"`
	Connections []Connection `json:"connections"`
	ID          string       `json:"id"`
}

type abstractList struct {
	Type      string         `json:"type"`
	Instances []AbstractInfo `json:"instances"`
	ID        string         `json:"id"`
}

type nodesList struct {
	Type      string     `json:"type"`
	Instances []NodeInfo `json:"instances"`
	ID        string     `json:"id"`
}

type contextError struct {
	Type    string `json:"type"`
	Request string `json:"request"`
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// handleControl serves one request delivered on the Context's command input.
// Runs on the Context worker, so requests are applied in arrival order.
func (c *Context) handleControl(m *Message) {
	typ, id := peekRequest(m.Data)

	format, err := m.Format()
	if err == nil && format != "json" {
		err = errors.New("control requests must use the json format")
	}
	var req *Request
	if err == nil {
		req, err = ParseRequest(m.Data)
	}
	if err != nil {
		c.controlError(typ, id, err)
		return
	}

	switch req.Type {
	case TypeNodeCreate:
		h, err := c.CreateNode(req.AbstractName, req.InstanceName, req.Config)
		if err != nil {
			c.controlError(req.Type, req.ID, err)
			return
		}
		c.respond(req.Type, createConfirm{
			Type:         TypeNodeCreateConfirm,
			Node:         h,
			InstanceName: req.InstanceName,
			ID:           ensureID(req.ID),
		})

	case TypeNodeDestroy:
		if err := c.DestroyNode(ByAlias(req.InstanceName)); err != nil {
			c.controlError(req.Type, req.ID, err)
			return
		}
		c.respond(req.Type, statusConfirm{Type: TypeNodeDestroyConfirm, Status: StatusSuccess, ID: req.ID})

	case TypeConnect:
		if err := c.Connect(*req.Source, *req.Destination); err != nil {
			c.controlError(req.Type, req.ID, err)
			return
		}
		c.respond(req.Type, statusConfirm{Type: TypeConnectConfirm, Status: StatusSuccess, ID: req.ID})

	case TypeDisconnect:
		if err := c.Disconnect(*req.Source, *req.Destination); err != nil {
			c.controlError(req.Type, req.ID, err)
			return
		}
		c.respond(req.Type, statusConfirm{Type: TypeDisconnectConfirm, Status: StatusSuccess, ID: req.ID})

	case TypeConnections:
		c.respond(req.Type, connectionsList{Type: TypeConnectionsList, Connections: c.connectionRefs(), ID: req.ID})

	case TypeAbstractNodes:
		c.respond(req.Type, abstractList{Type: TypeAbstractNodesList, Instances: c.AbstractNodes(), ID: req.ID})

	case TypeNodes:
		c.respond(req.Type, nodesList{Type: TypeNodesList, Instances: c.Nodes(), ID: req.ID})

	default:
		// node.* requests belong on a node's configuration channel.
		c.controlError(req.Type, req.ID, errors.New("request must be sent to a node configuration channel"))
	}
}

// connectionRefs renders the edges with aliases where nodes have one.
func (c *Context) connectionRefs() []Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref := func(h Handle) NodeRef {
		if n, ok := c.reg.get(h); ok && n.alias != "" {
			return ByAlias(n.alias)
		}
		return ByHandle(h)
	}
	out := make([]Connection, 0, len(c.rt.edges))
	for _, e := range c.rt.edges {
		out = append(out, Connection{
			Source: At(ref(e.Source.Node), e.Source.Channel),
			Target: At(ref(e.Destination.Node), e.Destination.Channel),
		})
	}
	return out
}

// isNodeCommand reports whether a configuration-channel delivery is a
// node.connect or node.disconnect request. Anything else reaches the node.
func isNodeCommand(m *Message) bool {
	if format, err := m.Format(); err != nil || format != "json" {
		return false
	}
	typ, _ := peekRequest(m.Data)
	return typ == TypeNodeConnect || typ == TypeNodeDisconnect
}

// handleNodeCommand applies a node.connect or node.disconnect addressed to n:
// the edge runs from the request's source port to n's target input.
func (c *Context) handleNodeCommand(n *node, m *Message) {
	typ, id := peekRequest(m.Data)
	confirm := TypeNodeConnectConfirm
	if typ == TypeNodeDisconnect {
		confirm = TypeNodeDisconnectConfirm
	}
	id = ensureID(id)

	req, err := ParseRequest(m.Data)
	if err == nil {
		dst := At(ByHandle(n.handle), *req.Target)
		if typ == TypeNodeConnect {
			err = c.Connect(*req.Source, dst)
		} else {
			err = c.Disconnect(*req.Source, dst)
		}
	}

	resp := statusConfirm{Type: confirm, Status: StatusSuccess, ID: id}
	if err != nil {
		resp.Status = StatusError
		resp.Message = err.Error()
		c.logger.Printf("[Context] %s on node %d failed: %v", typ, n.handle, err)
	}
	c.metrics.ControlRequests.WithLabelValues(typ, resp.Status).Inc()

	msg, merr := JSONMessage(n.handle, ChannelConfiguration, resp)
	if merr != nil {
		c.logger.Printf("[Context] Failed to build %s: %v", confirm, merr)
		return
	}
	c.emit(msg)
}

// respond emits a successful response from the Context's response output.
func (c *Context) respond(request string, v any) {
	c.metrics.ControlRequests.WithLabelValues(request, StatusSuccess).Inc()
	msg, err := JSONMessage(ContextHandle, ChannelContext, v)
	if err != nil {
		c.logger.Printf("[Context] Failed to build response to %s: %v", request, err)
		return
	}
	c.emit(msg)
}

// controlError emits a context.error correlated to the failed request.
func (c *Context) controlError(request, id string, err error) {
	c.metrics.ControlRequests.WithLabelValues(metricType(request), StatusError).Inc()
	c.logger.Printf("[Context] Control request %q failed: %v", request, err)

	msg, merr := JSONMessage(ContextHandle, ChannelContext, contextError{
		Type:    TypeContextError,
		Request: request,
		Status:  StatusError,
		Message: err.Error(),
		ID:      id,
	})
	if merr != nil {
		c.logger.Printf("[Context] Failed to build error response: %v", merr)
		return
	}
	c.emit(msg)
}

// metricType bounds the label cardinality for malformed requests.
func metricType(typ string) string {
	switch typ {
	case TypeNodeCreate, TypeNodeDestroy, TypeConnect, TypeDisconnect,
		TypeConnections, TypeAbstractNodes, TypeNodes, TypeNodeConnect, TypeNodeDisconnect:
		return typ
	}
	return "invalid"
}

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// DecodeResponse parses a control response payload.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
