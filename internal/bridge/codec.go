package bridge

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Envelope is the wire form of a bridged message.
type Envelope struct {
	Meta       []byte `cbor:"1,keyasint" json:"meta"`
	Data       []byte `cbor:"2,keyasint" json:"data"`
	Node       uint64 `cbor:"3,keyasint" json:"node"` // Publishing node, informational
	Compressed bool   `cbor:"4,keyasint,omitempty" json:"compressed,omitempty"`
}

// maxPayloadSize caps a decompressed payload. Larger frames are dropped.
const maxPayloadSize = 64 << 20

// Codec serializes envelopes for Redis.
type Codec interface {
	Name() string
	Marshal(env *Envelope) ([]byte, error)
	Unmarshal(data []byte, env *Envelope) error
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bridge: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bridge: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bridge: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = newPayloadDecoder(maxPayloadSize)
	if err != nil {
		panic("bridge: zstd decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }

func (cborCodec) Marshal(env *Envelope) ([]byte, error) { return encMode.Marshal(env) }

func (cborCodec) Unmarshal(data []byte, env *Envelope) error { return decMode.Unmarshal(data, env) }

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(env *Envelope) ([]byte, error) { return json.Marshal(env) }

func (jsonCodec) Unmarshal(data []byte, env *Envelope) error { return json.Unmarshal(data, env) }

// CodecByName returns the codec called name. The empty name selects cbor.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "cbor":
		return cborCodec{}, nil
	case "json":
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (expected cbor or json)", name)
	}
}

// compress replaces the payload with its zstd frame.
func compress(env *Envelope) {
	env.Data = zstdEncoder.EncodeAll(env.Data, nil)
	env.Compressed = true
}

func newPayloadDecoder(limit uint64) (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
}

// decompress restores a compressed payload.
func decompress(env *Envelope) error {
	return decompressWith(zstdDecoder, env)
}

func decompressWith(dec *zstd.Decoder, env *Envelope) error {
	if !env.Compressed {
		return nil
	}
	data, err := dec.DecodeAll(env.Data, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress payload: %w", err)
	}
	env.Data = data
	env.Compressed = false
	return nil
}
