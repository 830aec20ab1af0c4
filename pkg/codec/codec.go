// Package codec defines the body codecs used on the CRUD transport.
//
// JSON is the default, backed by goccy/go-json. CBOR is available for
// backends that negotiate application/cbor.
package codec

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec marshals request bodies and unmarshals response bodies for one media type.
type Codec interface {
	Marshaler
	Unmarshaler
	ContentType() string
}

type jsonCodec struct{}

// JSON returns the application/json codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, dst any) error { return json.Unmarshal(data, dst) }
func (jsonCodec) NewEncoder(w io.Writer) Encoder       { return json.NewEncoder(w) }
func (jsonCodec) NewDecoder(r io.Reader) Decoder       { return json.NewDecoder(r) }
func (jsonCodec) ContentType() string                  { return "application/json" }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns the application/cbor codec. Struct fields use their json tags.
func CBOR() Codec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("codec: invalid cbor encode options: " + err.Error())
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: invalid cbor decode options: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (c cborCodec) Marshal(v any) ([]byte, error)        { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, dst any) error { return c.dec.Unmarshal(data, dst) }
func (c cborCodec) NewEncoder(w io.Writer) Encoder       { return c.enc.NewEncoder(w) }
func (c cborCodec) NewDecoder(r io.Reader) Decoder       { return c.dec.NewDecoder(r) }
func (cborCodec) ContentType() string                    { return "application/cbor" }

// ByName resolves "json" or "cbor"; anything else falls back to JSON.
func ByName(name string) Codec {
	if name == "cbor" {
		return CBOR()
	}
	return JSON()
}
