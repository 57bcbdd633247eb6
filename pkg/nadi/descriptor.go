package nadi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChannelDescriptor describes one declared channel of a node.
type ChannelDescriptor struct {
	Number      Channel  `json:"number"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	DataTypes   []string `json:"data types,omitempty"`
}

// Channels groups a node's declared input and output channels.
type Channels struct {
	Input  []ChannelDescriptor `json:"input"`
	Output []ChannelDescriptor `json:"output"`
}

// Descriptor is a node's answer to the capability query: its name, its own
// version, the interface version it implements, and its channels.
type Descriptor struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	InterfaceVersion string   `json:"nadi version"`
	Description      string   `json:"description,omitempty"`
	Channels         Channels `json:"channels"`
}

// ConfigurationChannel is the conventional descriptor of channel 0xF100.
func ConfigurationChannel() ChannelDescriptor {
	return ChannelDescriptor{Number: ChannelConfiguration, Name: "configuration", DataTypes: []string{"json"}}
}

// ConfigureContextChannel is the conventional "configure context" output descriptor.
func ConfigureContextChannel() ChannelDescriptor {
	return ChannelDescriptor{Number: ChannelContext, Name: "configure context", DataTypes: []string{"json"}}
}

// HasInput reports whether ch is a declared input channel.
func (d Descriptor) HasInput(ch Channel) bool {
	return hasChannel(d.Channels.Input, ch)
}

// HasOutput reports whether ch is a declared output channel.
func (d Descriptor) HasOutput(ch Channel) bool {
	return hasChannel(d.Channels.Output, ch)
}

func hasChannel(list []ChannelDescriptor, ch Channel) bool {
	for _, c := range list {
		if c.Number == ch {
			return true
		}
	}
	return false
}

// Validate checks required fields and channel numbers.
// Channel numbers must be unique per direction and either user-defined or one
// of the standardized reserved channels.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("%w: %s: version is required", ErrInvalidDescriptor, d.Name)
	}
	if err := validateChannels(d.Name, "input", d.Channels.Input); err != nil {
		return err
	}
	return validateChannels(d.Name, "output", d.Channels.Output)
}

func validateChannels(name, direction string, list []ChannelDescriptor) error {
	seen := make(map[Channel]bool, len(list))
	for _, c := range list {
		if c.Number.Reserved() && c.Number != ChannelConfiguration {
			return fmt.Errorf("%w: %s: %s channel %s is reserved", ErrInvalidDescriptor, name, direction, c.Number)
		}
		if seen[c.Number] {
			return fmt.Errorf("%w: %s: duplicate %s channel %s", ErrInvalidDescriptor, name, direction, c.Number)
		}
		seen[c.Number] = true
	}
	return nil
}

// JSON renders the descriptor, filling in the interface version when unset.
func (d Descriptor) JSON() ([]byte, error) {
	if d.InterfaceVersion == "" {
		d.InterfaceVersion = InterfaceVersion
	}
	if d.Channels.Input == nil {
		d.Channels.Input = []ChannelDescriptor{}
	}
	if d.Channels.Output == nil {
		d.Channels.Output = []ChannelDescriptor{}
	}
	return json.Marshal(d)
}

// Encode writes the descriptor as a null-terminated JSON string into buf.
// It returns the encoded length including the terminator. When buf is too
// small nothing is written and the required length is returned with
// ErrBufferTooSmall.
func (d Descriptor) Encode(buf []byte) (int, error) {
	data, err := d.JSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal descriptor: %w", err)
	}
	need := len(data) + 1
	if len(buf) < need {
		return need, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, need, len(buf))
	}
	copy(buf, data)
	buf[len(data)] = 0
	return need, nil
}

// contextDescriptor is the Context node's own capability answer.
func contextDescriptor() Descriptor {
	return Descriptor{
		Name:             ContextAlias,
		Version:          InterfaceVersion,
		InterfaceVersion: InterfaceVersion,
		Description:      "NADI context: node lifecycle, routing and control plane",
		Channels: Channels{
			Input:  []ChannelDescriptor{{Number: ChannelContext, Name: "commands", DataTypes: []string{"json"}}},
			Output: []ChannelDescriptor{{Number: ChannelContext, Name: "responses", DataTypes: []string{"json"}}},
		},
	}
}
