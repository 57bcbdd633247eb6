// Package plugin loads abstract nodes from Go plugins built with
// -buildmode=plugin.
//
// A plugin exports the symbol NadiAbstractNode either as a variable of type
// nadi.AbstractNode or as a func() nadi.AbstractNode. The loaded node is
// reported with nadi.KindPlugin; the Context treats it like any other.
package plugin

import (
	"fmt"
	goplugin "plugin"

	"github.com/dyluth/nadi/pkg/nadi"
)

// Symbol is the name looked up in every plugin.
const Symbol = "NadiAbstractNode"

// Open loads the plugin at path and returns its abstract node.
func Open(path string) (nadi.AbstractNode, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}
	an, err := fromSymbol(sym)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}
	return Wrap(an), nil
}

// fromSymbol accepts the two supported export shapes.
func fromSymbol(sym any) (nadi.AbstractNode, error) {
	var an nadi.AbstractNode
	switch v := sym.(type) {
	case *nadi.AbstractNode:
		an = *v
	case func() nadi.AbstractNode:
		an = v()
	default:
		return nil, fmt.Errorf("%w: symbol %s has type %T", nadi.ErrInvalidDescriptor, Symbol, sym)
	}
	if an == nil {
		return nil, fmt.Errorf("%w: symbol %s is nil", nadi.ErrInvalidDescriptor, Symbol)
	}
	return an, nil
}

type loaded struct {
	nadi.AbstractNode
}

func (loaded) Kind() nadi.Kind { return nadi.KindPlugin }

// Wrap tags an abstract node as plugin-provided.
func Wrap(an nadi.AbstractNode) nadi.AbstractNode {
	return loaded{an}
}
