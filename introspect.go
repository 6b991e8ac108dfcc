package liaison

// IntroName is the well-known introspection call every layer answers. The authorizer permits
// it without prior exposure so callers can discover the exposed surface.
const IntroName = "introspect"

// IntroOpts controls introspection output.
type IntroOpts struct {
	// ExposedOnly restricts the output to items and properties with a truthy exposure.
	ExposedOnly bool
}

// Introspect describes the layer. The name is omitted when it was generated. Items map each
// visible item name to the item's own introspection.
func (l *Layer) Introspect(o *IntroOpts) map[string]interface{} {
	res := make(map[string]interface{})
	if !l.gen {
		res["name"] = l.name
	}
	items := make(map[string]interface{})
	for _, name := range l.Names() {
		it := l.Lookup(name)
		if o != nil && o.ExposedOnly && !it.expo.Exposed() {
			continue
		}
		items[name] = it.Introspect(o)
	}
	if len(items) > 0 {
		res["items"] = items
	}
	return res
}

// Introspect describes the item's exposed surface. Instances nest the introspection of their
// defining class under the class key.
func (it *Item) Introspect(o *IntroOpts) map[string]interface{} {
	res := make(map[string]interface{})
	if it.IsClass() {
		res["_type"] = "class"
	} else {
		res["_type"] = "instance"
	}
	for _, name := range it.expo.Keys() {
		p, ok := it.expo.Prop(name)
		if !ok {
			continue
		}
		res[name] = map[string]interface{}{"_type": string(p.Kind)}
	}
	if it.class != nil {
		res["class"] = it.class.Introspect(o)
	}
	return res
}
