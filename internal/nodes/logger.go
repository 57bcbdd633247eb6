package nodes

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/dyluth/nadi/pkg/nadi/samples"
)

// Logger writes one line per message arriving on input 1. JSON and text
// payloads are printed, microseconds-double payloads are summarized, other
// formats are reported by size.
//
// A nil logger means log.Default(). The "prefix" config option is prepended
// to every line.
func Logger(out *log.Logger) nadi.AbstractNode {
	return nadi.NewAbstractNode(nadi.Descriptor{
		Name:        "logger",
		Version:     "1.0.0",
		Description: "Logs every message received on input 1",
		Channels: nadi.Channels{
			Input: []nadi.ChannelDescriptor{{Number: 1, Name: "in"}},
		},
	}, func(p nadi.NodeParams) (nadi.Instance, error) {
		prefix, err := stringOption(p.Config, "prefix", p.InstanceName)
		if err != nil {
			return nil, err
		}
		l := out
		if l == nil {
			l = log.Default()
		}
		return &logger{out: l, prefix: prefix}, nil
	})
}

type logger struct {
	out    *log.Logger
	prefix string
}

func (l *logger) Receive(msg *nadi.Message) {
	l.out.Printf("[%s] from=%d %s", l.prefix, msg.Node, describe(msg))
}

// describe renders a one-line summary of a message.
func describe(msg *nadi.Message) string {
	format, err := msg.Format()
	if err != nil {
		return fmt.Sprintf("invalid metadata: %v", err)
	}
	switch format {
	case "json":
		if json.Valid(msg.Data) {
			return "json " + string(msg.Data)
		}
		return fmt.Sprintf("json (malformed, %d bytes)", len(msg.Data))
	case "text":
		return "text " + string(msg.Data)
	case samples.Format:
		recs, err := samples.Decode(msg.Data)
		if err != nil {
			return fmt.Sprintf("%s (%v)", samples.Format, err)
		}
		if len(recs) == 0 {
			return samples.Format + " (0 samples)"
		}
		last := recs[len(recs)-1]
		return fmt.Sprintf("%s (%d samples, last %g at %d)", samples.Format, len(recs), last.Value, last.Micros)
	default:
		return fmt.Sprintf("%s (%d bytes)", format, len(msg.Data))
	}
}
