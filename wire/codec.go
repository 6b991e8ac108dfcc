package wire

import (
	"time"

	"github.com/mb0/xelf/cor"
)

// Codec encodes and decodes one built-in scalar type as a typed object.
type Codec struct {
	// Name is the type name written to the _type key.
	Name string
	// Test reports whether the codec applies to a live value.
	Test func(v interface{}) bool
	// Enc returns the typed object for a matched value.
	Enc func(v interface{}) (map[string]interface{}, error)
	// Dec returns the live value for a typed object payload.
	Dec func(raw map[string]interface{}) (interface{}, error)
}

var codecs = []*Codec{dateCodec,
	markCodec("class"), markCodec("instance"), markCodec("field"), markCodec("method"),
}

// RegisterCodec installs an additional scalar codec. Codecs registered later win name clashes.
func RegisterCodec(c *Codec) { codecs = append([]*Codec{c}, codecs...) }

func codecFor(v interface{}) *Codec {
	for _, c := range codecs {
		if c.Test(v) {
			return c
		}
	}
	return nil
}

func codecByName(name string) *Codec {
	for _, c := range codecs {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// markCodec returns a codec for an introspection marker type. Marker objects describe the
// exposed surface of a registry and carry no live value, so they decode to the plain map and
// never match a value on encode.
func markCodec(name string) *Codec {
	return &Codec{
		Name: name,
		Test: func(interface{}) bool { return false },
		Enc: func(v interface{}) (map[string]interface{}, error) {
			return nil, cor.Errorf("marker type %s cannot encode values", name)
		},
		Dec: func(raw map[string]interface{}) (interface{}, error) {
			return raw, nil
		},
	}
}

// dateCodec maps time.Time to {"_type":"Date","_value":"<RFC 3339>"}.
var dateCodec = &Codec{
	Name: "Date",
	Test: func(v interface{}) bool {
		_, ok := v.(time.Time)
		return ok
	},
	Enc: func(v interface{}) (map[string]interface{}, error) {
		t := v.(time.Time)
		return map[string]interface{}{
			TypeKey: "Date",
			ValKey:  t.UTC().Format(time.RFC3339Nano),
		}, nil
	},
	Dec: func(raw map[string]interface{}) (interface{}, error) {
		s, ok := raw[ValKey].(string)
		if !ok {
			return nil, cor.Errorf("date value must be a string, got %T", raw[ValKey])
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, cor.Errorf("invalid date value %q: %w", s, err)
		}
		return t, nil
	},
}
