// Package samples encodes and decodes the "microseconds-double" payload
// layout: a packed array of 16-byte records, each an unsigned 64-bit
// timestamp in microseconds followed by an IEEE-754 double, both little-endian.
package samples

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
)

// Format is the metadata format name of this layout.
const Format = "microseconds-double"

// RecordSize is the encoded size of one Sample.
const RecordSize = 16

// ErrLength is returned when a payload is not a whole number of records.
var ErrLength = errors.New("payload length is not a multiple of 16")

// Sample is one timestamped value.
type Sample struct {
	Micros uint64
	Value  float64
}

// At builds a Sample from a wall-clock time.
func At(t time.Time, v float64) Sample {
	return Sample{Micros: uint64(t.UnixMicro()), Value: v}
}

// Time returns the sample timestamp.
func (s Sample) Time() time.Time {
	return time.UnixMicro(int64(s.Micros))
}

// Encode packs samples into a new payload.
func Encode(samples []Sample) []byte {
	buf := make([]byte, len(samples)*RecordSize)
	for i, s := range samples {
		rec := buf[i*RecordSize:]
		binary.LittleEndian.PutUint64(rec[0:8], s.Micros)
		binary.LittleEndian.PutUint64(rec[8:16], math.Float64bits(s.Value))
	}
	return buf
}

// Decode unpacks a payload.
func Decode(data []byte) ([]Sample, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrLength, len(data))
	}
	out := make([]Sample, len(data)/RecordSize)
	for i := range out {
		rec := data[i*RecordSize:]
		out[i] = Sample{
			Micros: binary.LittleEndian.Uint64(rec[0:8]),
			Value:  math.Float64frombits(binary.LittleEndian.Uint64(rec[8:16])),
		}
	}
	return out, nil
}

var (
	meta     = []byte(`{"format":"` + Format + `"}`)
	metaHash = nadi.HashMeta(meta)
)

// Message wraps samples in an owner-held message from sender on ch.
func Message(sender nadi.Handle, ch nadi.Channel, samples []Sample) *nadi.Message {
	return &nadi.Message{
		Meta:     meta,
		MetaHash: metaHash,
		Data:     Encode(samples),
		Channel:  ch,
		Node:     sender,
		Release:  nadi.NopRelease,
	}
}

// FromMessage decodes a message carrying this layout. The metadata is always
// parsed; MetaHash is not trusted.
func FromMessage(m *nadi.Message) ([]Sample, error) {
	format, err := m.Format()
	if err != nil {
		return nil, err
	}
	if format != Format {
		return nil, fmt.Errorf("%w: format %q is not %s", nadi.ErrInvalidMessage, format, Format)
	}
	return Decode(m.Data)
}
