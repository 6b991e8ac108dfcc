// Package wire converts between live values and the typed envelope format that crosses layer
// boundaries.
//
// An envelope value is either a scalar, an ordered list, a plain keyed map or a typed object.
// A typed object is a map with a reserved "_type" key that names either a built-in scalar codec
// or an item registered in the receiving layer. The reserved "_new" key marks an instance the
// sender believes is not yet known to the receiver.
package wire

import (
	"encoding/json"

	"github.com/mb0/xelf/bfr"
	"github.com/mb0/xelf/cor"
)

// Reserved keys of typed objects.
const (
	TypeKey = "_type"
	ValKey  = "_value"
	NewKey  = "_new"
)

// ErrNull is returned when a null value is serialized or deserialized. Null is never a valid
// envelope value.
var ErrNull = cor.Error("null is not a serializable value")

// Encoder is implemented by values that serialize themselves into a typed object.
type Encoder interface {
	EncodeWire(o *Opts) (map[string]interface{}, error)
}

// Decoder consumes the payload of a typed object and returns the live value it represents.
// Registered items implement it to deserialize instances of themselves, converging repeated
// references to one instance through an identity map where available.
type Decoder interface {
	DecodeWire(raw map[string]interface{}, o *Opts) (interface{}, error)
}

// Opts carries the context of one serialization pass.
type Opts struct {
	// Target is the name of the remote layer and is used as authorization scope by encoders.
	Target string
	// Resolve maps a type name of an incoming typed object to a registered decoder.
	Resolve func(typ string) (Decoder, error)
	// SetFilter reports whether a property of a typed object may be written during
	// deserialization. A nil filter permits all writes.
	SetFilter func(typ, prop string) bool
	// GetFilter reports whether a property of a typed object may be read during
	// serialization. A nil filter includes all properties.
	GetFilter func(typ, prop string) bool
}

// Request is the envelope of one query sent to a parent layer. Items carries the serialized
// state of sender items the receiver also registers under the same name.
type Request struct {
	Query  interface{}            `json:"query"`
	Items  map[string]interface{} `json:"items,omitempty"`
	Source string                 `json:"source"`
}

// Response is the envelope of one query result. Items carries updates for items exposed for
// reading by the receiving layer.
type Response struct {
	Result interface{}            `json:"result,omitempty"`
	Items  map[string]interface{} `json:"items,omitempty"`
}

func (r *Request) String() string  { return bfr.String(r) }
func (r *Response) String() string { return bfr.String(r) }

func (r *Request) WriteBfr(c *bfr.Ctx) error  { return encodeJSON(c, r) }
func (r *Response) WriteBfr(c *bfr.Ctx) error { return encodeJSON(c, r) }

// ParseRequest decodes a request envelope from raw JSON bytes.
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	err := json.Unmarshal(raw, &req)
	if err != nil {
		return nil, cor.Errorf("parse request envelope: %w", err)
	}
	return &req, nil
}

// ParseResponse decodes a response envelope from raw JSON bytes.
func ParseResponse(raw []byte) (*Response, error) {
	var res Response
	err := json.Unmarshal(raw, &res)
	if err != nil {
		return nil, cor.Errorf("parse response envelope: %w", err)
	}
	return &res, nil
}

func encodeJSON(c *bfr.Ctx, v interface{}) error { return json.NewEncoder(c.B).Encode(v) }
