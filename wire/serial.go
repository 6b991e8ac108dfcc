package wire

import "github.com/mb0/xelf/cor"

// Serialize converts a live value into an envelope value. Lists and maps are converted
// element-wise preserving order, codec types and encoders become typed objects and scalars pass
// through unchanged. A nil value or a value of any other type is an error.
func Serialize(v interface{}, o *Opts) (interface{}, error) {
	if v == nil {
		return nil, ErrNull
	}
	if c := codecFor(v); c != nil {
		return c.Enc(v)
	}
	switch d := v.(type) {
	case Encoder:
		return d.EncodeWire(o)
	case []interface{}:
		res := make([]interface{}, len(d))
		for i, el := range d {
			s, err := Serialize(el, o)
			if err != nil {
				return nil, err
			}
			res[i] = s
		}
		return res, nil
	case map[string]interface{}:
		res := make(map[string]interface{}, len(d))
		for k, el := range d {
			s, err := Serialize(el, o)
			if err != nil {
				return nil, err
			}
			res[k] = s
		}
		return res, nil
	}
	if isScalar(v) {
		return v, nil
	}
	return nil, cor.Errorf("cannot serialize value of type %T", v)
}

// Deserialize converts an envelope value back into a live value. A map carrying the _type key
// is a typed object: built-in scalar names use their codec, any other name is resolved to a
// registered item that deserializes the payload itself. An unresolvable type name is an error.
func Deserialize(v interface{}, o *Opts) (interface{}, error) {
	if v == nil {
		return nil, ErrNull
	}
	switch d := v.(type) {
	case []interface{}:
		res := make([]interface{}, len(d))
		for i, el := range d {
			r, err := Deserialize(el, o)
			if err != nil {
				return nil, err
			}
			res[i] = r
		}
		return res, nil
	case map[string]interface{}:
		if name, ok := d[TypeKey]; ok {
			str, ok := name.(string)
			if !ok {
				return nil, cor.Errorf("typed value name must be a string, got %T", name)
			}
			if c := codecByName(str); c != nil {
				return c.Dec(d)
			}
			if o == nil || o.Resolve == nil {
				return nil, cor.Errorf("cannot resolve typed value %q", str)
			}
			dec, err := o.Resolve(str)
			if err != nil {
				return nil, err
			}
			return dec.DecodeWire(d, o)
		}
		res := make(map[string]interface{}, len(d))
		for k, el := range d {
			r, err := Deserialize(el, o)
			if err != nil {
				return nil, err
			}
			res[k] = r
		}
		return res, nil
	}
	if isScalar(v) {
		return v, nil
	}
	return nil, cor.Errorf("cannot deserialize value of type %T", v)
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
