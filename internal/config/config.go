package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/nadi/pkg/nadi"
)

// DefaultHTTPAddr is used when http.addr is omitted.
const DefaultHTTPAddr = ":9464"

// GraphConfig represents the top-level nadi.yml configuration
type GraphConfig struct {
	Version     string                `yaml:"version"`
	Name        string                `yaml:"name,omitempty"` // Instance name, default "default"
	Redis       *RedisConfig          `yaml:"redis,omitempty"`
	HTTP        *HTTPConfig           `yaml:"http,omitempty"`
	Plugins     []string              `yaml:"plugins,omitempty"` // Shared objects exporting NadiAbstractNode
	Nodes       map[string]NodeConfig `yaml:"nodes"`
	Connections []ConnectionConfig    `yaml:"connections,omitempty"`
}

// RedisConfig enables the Redis bridge nodes
type RedisConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig specifies the health and metrics listener
type HTTPConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// NodeConfig represents a single node instance
type NodeConfig struct {
	Abstract string         `yaml:"abstract"`
	Config   map[string]any `yaml:"config,omitempty"`
}

// ConnectionConfig is one edge, written as "alias:channel" on both ends
type ConnectionConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Validate performs strict validation on the configuration
func (c *GraphConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one node
	if len(c.Nodes) == 0 {
		return fmt.Errorf("no nodes defined")
	}

	for alias, node := range c.Nodes {
		if err := node.Validate(alias); err != nil {
			return err
		}
	}

	for i, conn := range c.Connections {
		src, err := ParseEndpoint(conn.Source)
		if err != nil {
			return fmt.Errorf("connection %d: source: %w", i, err)
		}
		dst, err := ParseEndpoint(conn.Destination)
		if err != nil {
			return fmt.Errorf("connection %d: destination: %w", i, err)
		}
		if err := c.checkAlias(src.Node); err != nil {
			return fmt.Errorf("connection %d: source: %w", i, err)
		}
		if err := c.checkAlias(dst.Node); err != nil {
			return fmt.Errorf("connection %d: destination: %w", i, err)
		}
	}

	if c.Redis != nil && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is configured")
	}

	// Apply defaults
	if c.Name == "" {
		c.Name = "default"
	}
	if c.HTTP == nil {
		c.HTTP = &HTTPConfig{}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}

	return nil
}

// checkAlias verifies that an endpoint names a configured node or the context.
func (c *GraphConfig) checkAlias(ref nadi.NodeRef) error {
	if !ref.IsAlias() || ref.Alias == nadi.ContextAlias {
		return nil
	}
	if _, ok := c.Nodes[ref.Alias]; !ok {
		return fmt.Errorf("unknown node '%s'", ref.Alias)
	}
	return nil
}

// Validate performs validation on a single node configuration
func (n *NodeConfig) Validate(alias string) error {
	if strings.TrimSpace(alias) == "" || strings.TrimSpace(alias) != alias {
		return fmt.Errorf("node '%s': alias must be non-empty without surrounding whitespace", alias)
	}
	if alias == nadi.ContextAlias {
		return fmt.Errorf("node '%s': alias is reserved", alias)
	}
	if strings.Contains(alias, ":") {
		return fmt.Errorf("node '%s': alias must not contain ':'", alias)
	}
	if _, err := strconv.ParseUint(alias, 10, 64); err == nil {
		return fmt.Errorf("node '%s': alias must not be numeric", alias)
	}
	if n.Abstract == "" {
		return fmt.Errorf("node '%s': abstract is required", alias)
	}
	return nil
}

// ParseEndpoint parses "alias:channel" or "handle:channel". Channels may be
// decimal or 0x-prefixed hex.
func ParseEndpoint(s string) (nadi.Endpoint, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return nadi.Endpoint{}, fmt.Errorf("invalid endpoint '%s' (expected node:channel)", s)
	}
	node, chText := s[:i], s[i+1:]

	base := 10
	if strings.HasPrefix(chText, "0x") || strings.HasPrefix(chText, "0X") {
		chText, base = chText[2:], 16
	}
	ch, err := strconv.ParseUint(chText, base, 32)
	if err != nil {
		return nadi.Endpoint{}, fmt.Errorf("invalid channel in endpoint '%s': %w", s, err)
	}

	ref := nadi.ByAlias(node)
	if h, err := strconv.ParseUint(node, 10, 64); err == nil {
		ref = nadi.ByHandle(nadi.Handle(h))
	}
	return nadi.At(ref, nadi.Channel(ch)), nil
}

// Graph is the part of a Context that Apply drives.
type Graph interface {
	CreateNode(abstractName, instanceName string, config map[string]any) (nadi.Handle, error)
	Connect(src, dst nadi.Endpoint) error
}

// Aliases returns the configured node aliases in creation order.
func (c *GraphConfig) Aliases() []string {
	aliases := make([]string, 0, len(c.Nodes))
	for alias := range c.Nodes {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Apply creates every node (sorted by alias) and then every connection in
// file order. It stops at the first failure.
func (c *GraphConfig) Apply(g Graph) error {
	for _, alias := range c.Aliases() {
		node := c.Nodes[alias]
		if _, err := g.CreateNode(node.Abstract, alias, node.Config); err != nil {
			return fmt.Errorf("node '%s': %w", alias, err)
		}
	}
	for i, conn := range c.Connections {
		src, err := ParseEndpoint(conn.Source)
		if err != nil {
			return err
		}
		dst, err := ParseEndpoint(conn.Destination)
		if err != nil {
			return err
		}
		if err := g.Connect(src, dst); err != nil {
			return fmt.Errorf("connection %d (%s -> %s): %w", i, conn.Source, conn.Destination, err)
		}
	}
	return nil
}

// Parse decodes and validates a configuration document
func Parse(data []byte) (*GraphConfig, error) {
	var config GraphConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads and validates nadi.yml from the specified path
func Load(path string) (*GraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}
