package nadi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Control message types.
const (
	TypeNodeCreate            = "context.node.create"
	TypeNodeCreateConfirm     = "context.node.create.confirm"
	TypeNodeDestroy           = "context.node.destroy"
	TypeNodeDestroyConfirm    = "context.node.destroy.confirm"
	TypeConnect               = "context.connect"
	TypeConnectConfirm        = "context.connect.confirm"
	TypeDisconnect            = "context.disconnect"
	TypeDisconnectConfirm     = "context.disconnect.confirm"
	TypeConnections           = "context.connections"
	TypeConnectionsList       = "context.connections.list"
	TypeAbstractNodes         = "context.abstract_nodes"
	TypeAbstractNodesList     = "context.abstract_nodes.list"
	TypeNodes                 = "context.nodes"
	TypeNodesList             = "context.nodes.list"
	TypeContextError          = "context.error"
	TypeNodeConnect           = "node.connect"
	TypeNodeConnectConfirm    = "node.connect.confirm"
	TypeNodeDisconnect        = "node.disconnect"
	TypeNodeDisconnectConfirm = "node.disconnect.confirm"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is a decoded control request. Only the fields of its Type are set.
type Request struct {
	Type         string         `json:"type"`
	ID           string         `json:"id,omitempty"`
	AbstractName string         `json:"abstract_name,omitempty"`
	InstanceName string         `json:"instance_name,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Source       *Endpoint      `json:"source,omitempty"`
	Destination  *Endpoint      `json:"destination,omitempty"`
	Target       *Channel       `json:"target,omitempty"`
}

// Response is a decoded control response. List payloads are left raw.
type Response struct {
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Message      string          `json:"message,omitempty"`
	Request      string          `json:"request,omitempty"`
	Node         *Handle         `json:"node,omitempty"`
	InstanceName string          `json:"instance_name,omitempty"`
	Connections  json.RawMessage `json:"connections,omitempty"`
	Instances    json.RawMessage `json:"instances,omitempty"`
}

// Failed reports whether the response carries an error status.
func (r *Response) Failed() bool {
	return r.Status == StatusError || r.Type == TypeContextError
}

// Connection is one entry of context.connections.list.
type Connection struct {
	Source Endpoint `json:"source"`
	Target Endpoint `json:"target"`
}

// MarshalJSON encodes an alias as a string and a handle as an integer.
func (r NodeRef) MarshalJSON() ([]byte, error) {
	if r.named {
		return json.Marshal(r.Alias)
	}
	return []byte(strconv.FormatUint(uint64(r.Handle), 10)), nil
}

// UnmarshalJSON accepts a string alias or an integer handle.
func (r *NodeRef) UnmarshalJSON(data []byte) error {
	ref, err := decodeRef(data)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// MarshalJSON encodes the endpoint as [node, channel].
func (e Endpoint) MarshalJSON() ([]byte, error) {
	ref, err := e.Node.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("[%s,%d]", ref, e.Channel)), nil
}

// UnmarshalJSON decodes [node, channel].
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	ep, err := decodeEndpoint(data, false)
	if err != nil {
		return err
	}
	*e = ep
	return nil
}

// ParseRequest decodes and validates a control request field by field. No
// state is touched; a request that fails here must not cause any mutation.
func ParseRequest(data []byte) (*Request, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	typ, err := requireString(fields, "type")
	if err != nil {
		return nil, err
	}
	req := &Request{Type: typ}

	// List requests require an id for correlation; the rest accept one.
	switch typ {
	case TypeConnections, TypeAbstractNodes, TypeNodes:
		if req.ID, err = requireString(fields, "id"); err != nil {
			return nil, err
		}
	default:
		if req.ID, _, err = optionalString(fields, "id"); err != nil {
			return nil, err
		}
	}

	switch typ {
	case TypeNodeCreate:
		if req.AbstractName, err = requireString(fields, "abstract_name"); err != nil {
			return nil, err
		}
		if req.InstanceName, err = requireString(fields, "instance_name"); err != nil {
			return nil, err
		}
		if req.InstanceName == "" {
			return nil, fmt.Errorf("%w: instance_name must not be empty", ErrSchemaInvalid)
		}
		if raw, ok := fields["config"]; ok {
			if err := json.Unmarshal(raw, &req.Config); err != nil || req.Config == nil {
				return nil, fmt.Errorf("%w: config must be an object", ErrSchemaInvalid)
			}
		}

	case TypeNodeDestroy:
		if req.InstanceName, err = requireString(fields, "instance_name"); err != nil {
			return nil, err
		}

	case TypeConnect, TypeDisconnect:
		src, err := requireEndpoint(fields, "source", false)
		if err != nil {
			return nil, err
		}
		dst, err := requireEndpoint(fields, "destination", false)
		if err != nil {
			return nil, err
		}
		req.Source, req.Destination = &src, &dst

	case TypeNodeConnect, TypeNodeDisconnect:
		src, err := requireEndpoint(fields, "source", true)
		if err != nil {
			return nil, err
		}
		raw, ok := fields["target"]
		if !ok {
			return nil, fmt.Errorf("%w: target is required", ErrSchemaInvalid)
		}
		ch, err := decodeChannel(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: target: %v", ErrSchemaInvalid, err)
		}
		req.Source, req.Target = &src, &ch

	case TypeConnections, TypeAbstractNodes, TypeNodes:

	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ErrSchemaInvalid, typ)
	}
	return req, nil
}

// peekRequest extracts type and id from a document that may fail validation,
// so error responses can still be correlated.
func peekRequest(data []byte) (typ, id string) {
	var env struct {
		Type any `json:"type"`
		ID   any `json:"id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", ""
	}
	typ, _ = env.Type.(string)
	id, _ = env.ID.(string)
	return typ, id
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: request is not a JSON object", ErrSchemaInvalid)
	}
	return fields, nil
}

func requireString(fields map[string]json.RawMessage, name string) (string, error) {
	s, ok, err := optionalString(fields, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrSchemaInvalid, name)
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, name string) (string, bool, error) {
	raw, ok := fields[name]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || isNull(raw) {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrSchemaInvalid, name)
	}
	return s, true, nil
}

func requireEndpoint(fields map[string]json.RawMessage, name string, handleOnly bool) (Endpoint, error) {
	raw, ok := fields[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s is required", ErrSchemaInvalid, name)
	}
	ep, err := decodeEndpoint(raw, handleOnly)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%s: %w", name, err)
	}
	return ep, nil
}

// decodeEndpoint parses [node, channel]. With handleOnly the node must be an integer.
func decodeEndpoint(data []byte, handleOnly bool) (Endpoint, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return Endpoint{}, fmt.Errorf("%w: endpoint must be a two-element array", ErrSchemaInvalid)
	}
	ref, err := decodeRef(pair[0])
	if err != nil {
		return Endpoint{}, err
	}
	if handleOnly && ref.IsAlias() {
		return Endpoint{}, fmt.Errorf("%w: endpoint node must be an integer handle", ErrSchemaInvalid)
	}
	ch, err := decodeChannel(pair[1])
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: endpoint channel: %v", ErrSchemaInvalid, err)
	}
	return Endpoint{Node: ref, Channel: ch}, nil
}

func decodeRef(data []byte) (NodeRef, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var alias string
		if err := json.Unmarshal(data, &alias); err != nil {
			return NodeRef{}, fmt.Errorf("%w: invalid node alias", ErrSchemaInvalid)
		}
		return ByAlias(alias), nil
	}
	h, err := decodeUint(data, 64)
	if err != nil {
		return NodeRef{}, fmt.Errorf("%w: node must be a string alias or an integer handle", ErrSchemaInvalid)
	}
	return ByHandle(Handle(h)), nil
}

func decodeChannel(data []byte) (Channel, error) {
	v, err := decodeUint(data, 32)
	if err != nil {
		return 0, err
	}
	return Channel(v), nil
}

// decodeUint accepts only plain non-negative JSON integers (no fraction or exponent).
func decodeUint(data []byte, bits int) (uint64, error) {
	data = bytes.TrimSpace(data)
	v, err := strconv.ParseUint(string(data), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("not a non-negative integer: %s", data)
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// CreateNodeRequest builds a context.node.create request.
func CreateNodeRequest(id, abstractName, instanceName string, config map[string]any) Request {
	return Request{Type: TypeNodeCreate, ID: id, AbstractName: abstractName, InstanceName: instanceName, Config: config}
}

// DestroyNodeRequest builds a context.node.destroy request.
func DestroyNodeRequest(id, instanceName string) Request {
	return Request{Type: TypeNodeDestroy, ID: id, InstanceName: instanceName}
}

// ConnectRequest builds a context.connect request.
func ConnectRequest(id string, src, dst Endpoint) Request {
	return Request{Type: TypeConnect, ID: id, Source: &src, Destination: &dst}
}

// DisconnectRequest builds a context.disconnect request.
func DisconnectRequest(id string, src, dst Endpoint) Request {
	return Request{Type: TypeDisconnect, ID: id, Source: &src, Destination: &dst}
}

// ListRequest builds one of the snapshot requests (context.connections,
// context.abstract_nodes, context.nodes).
func ListRequest(id, typ string) Request {
	return Request{Type: typ, ID: id}
}

// NodeConnectRequest builds a node.connect request, sent to a node's 0xF100
// input, linking src to the receiving node's target input channel.
func NodeConnectRequest(id string, src Port, target Channel) Request {
	return Request{Type: TypeNodeConnect, ID: id, Source: &Endpoint{Node: ByHandle(src.Node), Channel: src.Channel}, Target: &target}
}

// NodeDisconnectRequest builds a node.disconnect request.
func NodeDisconnectRequest(id string, src Port, target Channel) Request {
	return Request{Type: TypeNodeDisconnect, ID: id, Source: &Endpoint{Node: ByHandle(src.Node), Channel: src.Channel}, Target: &target}
}
