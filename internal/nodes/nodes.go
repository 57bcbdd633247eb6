// Package nodes provides the built-in abstract nodes shipped with the nadi
// binary: relay, logger and ticker.
package nodes

import (
	"fmt"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
)

// Registrar accepts abstract node templates.
type Registrar interface {
	Register(an nadi.AbstractNode) error
}

// Builtins returns every built-in abstract node.
func Builtins() []nadi.AbstractNode {
	return []nadi.AbstractNode{
		Relay(),
		Logger(nil),
		Ticker(),
	}
}

// RegisterAll registers the built-in abstract nodes with r.
func RegisterAll(r Registrar) error {
	for _, an := range Builtins() {
		if err := r.Register(an); err != nil {
			return err
		}
	}
	return nil
}

// durationOption reads a duration from node config. Strings use
// time.ParseDuration syntax; numbers are milliseconds.
func durationOption(config map[string]any, key string, def time.Duration) (time.Duration, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	var d time.Duration
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		d = parsed
	case int:
		d = time.Duration(x) * time.Millisecond
	case float64:
		d = time.Duration(x * float64(time.Millisecond))
	default:
		return 0, fmt.Errorf("invalid %s: expected duration string or milliseconds, got %T", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func stringOption(config map[string]any, key, def string) (string, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid %s: expected string, got %T", key, v)
	}
	return s, nil
}

func floatOption(config map[string]any, key string, def float64) (float64, error) {
	v, ok := config[key]
	if !ok {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("invalid %s: expected number, got %T", key, v)
	}
}
