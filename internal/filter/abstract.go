// Package filter selects abstract nodes from a listing.
package filter

import (
	"path/filepath"

	"github.com/dyluth/nadi/pkg/nadi"
)

// Criteria defines filtering criteria for abstract nodes.
// All filters are ANDed together - an abstract node must match ALL criteria to pass.
type Criteria struct {
	NameGlob   string    // Glob pattern for the abstract name, empty = no filter
	Kind       nadi.Kind // Exact match on kind, empty = no filter
	DataType   string    // Some declared channel carries this format, empty = no filter
	HasInputs  bool      // Only nodes declaring at least one input
	HasOutputs bool      // Only nodes declaring at least one output
}

// Matches returns true if the abstract node matches all filter criteria.
// Empty/zero criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(info nadi.AbstractInfo) bool {
	if c.NameGlob != "" {
		matched, err := filepath.Match(c.NameGlob, info.Name)
		if err != nil || !matched {
			return false
		}
	}

	if c.Kind != "" && info.Kind != c.Kind {
		return false
	}

	if c.HasInputs && len(info.Channels.Input) == 0 {
		return false
	}
	if c.HasOutputs && len(info.Channels.Output) == 0 {
		return false
	}

	if c.DataType != "" && !carries(info.Channels, c.DataType) {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.NameGlob != "" ||
		c.Kind != "" ||
		c.DataType != "" ||
		c.HasInputs ||
		c.HasOutputs
}

// Apply returns the matching subset of infos, preserving order.
func (c *Criteria) Apply(infos []nadi.AbstractInfo) []nadi.AbstractInfo {
	if !c.HasFilters() {
		return infos
	}
	out := make([]nadi.AbstractInfo, 0, len(infos))
	for _, info := range infos {
		if c.Matches(info) {
			out = append(out, info)
		}
	}
	return out
}

func carries(ch nadi.Channels, dataType string) bool {
	for _, list := range [][]nadi.ChannelDescriptor{ch.Input, ch.Output} {
		for _, d := range list {
			for _, t := range d.DataTypes {
				if t == dataType {
					return true
				}
			}
		}
	}
	return false
}
