package nadi

import (
	"fmt"
	"sort"
	"strings"
)

// AbstractInfo is one entry of the abstract node listing.
type AbstractInfo struct {
	Descriptor
	Kind Kind `json:"kind"`
}

// node is a live node instance.
type node struct {
	handle   Handle
	alias    string
	abstract string // "" for the Context node
	desc     Descriptor
	instance Instance
	box      *mailbox
}

// registry tracks abstract nodes and live node instances. It is not locked;
// the Context guards it with its topology lock.
type registry struct {
	abstracts map[string]AbstractNode
	order     []string          // abstract names in registration order
	nodes     map[Handle]*node  // live nodes by handle
	aliases   map[string]Handle // alias -> handle of live nodes
	pending   map[string]Handle // aliases reserved by creations in progress
	next      Handle
}

func newRegistry() *registry {
	return &registry{
		abstracts: make(map[string]AbstractNode),
		nodes:     make(map[Handle]*node),
		aliases:   make(map[string]Handle),
		pending:   make(map[string]Handle),
		next:      ContextHandle + 1,
	}
}

// register adds an abstract node template. Templates are immutable once registered.
func (r *registry) register(an AbstractNode) error {
	if an == nil {
		return fmt.Errorf("%w: abstract node is nil", ErrInvalidDescriptor)
	}
	desc := an.Descriptor()
	if err := desc.Validate(); err != nil {
		return err
	}
	if _, exists := r.abstracts[desc.Name]; exists {
		return fmt.Errorf("%w: %q", ErrAbstractExists, desc.Name)
	}
	r.abstracts[desc.Name] = an
	r.order = append(r.order, desc.Name)
	return nil
}

// reserve checks a creation request and allocates its handle and alias.
// The reservation must be settled with commit or cancel.
func (r *registry) reserve(abstractName, alias string) (AbstractNode, Handle, error) {
	an, ok := r.abstracts[abstractName]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrNameNotFound, abstractName)
	}
	if alias != "" {
		if r.aliasTaken(alias) {
			return nil, 0, fmt.Errorf("%w: %q", ErrAliasInUse, alias)
		}
	}
	h := r.next
	r.next++
	if alias != "" {
		r.pending[alias] = h
	}
	return an, h, nil
}

func (r *registry) aliasTaken(alias string) bool {
	if _, ok := r.aliases[alias]; ok {
		return true
	}
	_, ok := r.pending[alias]
	return ok
}

// commit turns a reservation into a live node.
func (r *registry) commit(n *node) {
	if n.alias != "" {
		delete(r.pending, n.alias)
		r.aliases[n.alias] = n.handle
	}
	r.nodes[n.handle] = n
}

// cancel drops a reservation whose factory failed. The handle is not reissued.
func (r *registry) cancel(alias string) {
	if alias != "" {
		delete(r.pending, alias)
	}
}

// insertContext installs the Context node under handle 0.
func (r *registry) insertContext(n *node) {
	r.nodes[ContextHandle] = n
	r.aliases[ContextAlias] = ContextHandle
}

// get returns a live node by handle.
func (r *registry) get(h Handle) (*node, bool) {
	n, ok := r.nodes[h]
	return n, ok
}

// lookup resolves a node reference to a live node.
func (r *registry) lookup(ref NodeRef) (*node, error) {
	if ref.IsAlias() {
		h, ok := r.aliases[ref.Alias]
		if !ok {
			return nil, fmt.Errorf("%w: alias %q", ErrUnknownNode, ref.Alias)
		}
		return r.nodes[h], nil
	}
	n, ok := r.nodes[ref.Handle]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", ErrUnknownNode, ref.Handle)
	}
	return n, nil
}

// resolveAlias maps an alias to the handle of a live node.
func (r *registry) resolveAlias(alias string) (Handle, error) {
	h, ok := r.aliases[alias]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return h, nil
}

// remove deletes a live node and its alias. The Context node cannot be removed.
func (r *registry) remove(ref NodeRef) (*node, error) {
	n, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	if n.handle == ContextHandle {
		return nil, fmt.Errorf("%w: cannot destroy the context node", ErrForbidden)
	}
	delete(r.nodes, n.handle)
	if n.alias != "" {
		delete(r.aliases, n.alias)
	}
	return n, nil
}

// list returns live nodes ordered by handle.
func (r *registry) list() []NodeInfo {
	out := make([]NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		abstract := n.abstract
		if n.handle == ContextHandle {
			abstract = ContextAlias
		}
		out = append(out, NodeInfo{Alias: n.alias, Handle: n.handle, Abstract: abstract})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Handle < out[j].Handle
	})
	return out
}

// listAbstract returns registered abstract nodes in registration order.
func (r *registry) listAbstract() []AbstractInfo {
	out := make([]AbstractInfo, 0, len(r.order))
	for _, name := range r.order {
		an := r.abstracts[name]
		out = append(out, AbstractInfo{Descriptor: an.Descriptor(), Kind: an.Kind()})
	}
	return out
}

// validAlias rejects aliases that could not be typed back into a control message.
func validAlias(alias string) error {
	if strings.TrimSpace(alias) != alias {
		return fmt.Errorf("%w: alias %q has surrounding whitespace", ErrSchemaInvalid, alias)
	}
	return nil
}
