package liaison

import (
	"sort"

	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/expo"
	"github.com/cnx2016/liaison/wire"
)

// Method is a callable item member. The receiver is the item the call was resolved on.
type Method func(recv *Item, args []interface{}) (interface{}, error)

// Item is a registerable capability holder, either a class-like definition or one of its
// instances. An item holds field values and bound methods behind an exposure table. Items are
// composed at startup with Define, Bind and Expose and registered into exactly one layer.
//
// Items fork copy-on-write. A fork shares the field values and exposure table of its origin
// until written to, so layer forks can hand out diverging views without touching the original.
type Item struct {
	name  string
	lay   *Layer
	base  *Item
	class *Item
	expo  *expo.Table
	vals  map[string]interface{}
	meths map[string]Method
	det   bool
	fresh bool

	insts map[interface{}]*Item

	// Opener and Closer manage nested resources and are called by the owning layer's
	// Open and Close.
	Opener func() error
	Closer func() error

	// GetInst and SetInst override the identity map used during deserialization, so that
	// repeated references to the same logical object converge to one instance.
	GetInst func(raw map[string]interface{}, prev *Item) *Item
	SetInst func(inst *Item)
}

// NewClass returns a new empty class item.
func NewClass() *Item {
	return &Item{expo: &expo.Table{}}
}

// NewInstance returns a new instance of the class. The instance shares the class exposure
// table copy-on-write and resolves members through the class. It is marked as new until it
// travels through a boundary.
func (it *Item) NewInstance() *Item {
	c := it
	if c.class != nil {
		c = c.class
	}
	return &Item{class: c, expo: c.expo.Fork(), fresh: true}
}

// Extend returns a subtype of the class. The subtype inherits field values, methods and the
// exposure table copy-on-write, so additions never show up on the origin or its other subtypes.
func (it *Item) Extend() *Item {
	return &Item{base: it, class: it.class, expo: it.expo.Fork()}
}

// Fork returns a copy-on-write snapshot of the item keeping its registered name. The fork is
// re-parented by the layer that materializes it.
func (it *Item) Fork() *Item {
	return &Item{
		name: it.name, base: it, class: it.class, expo: it.expo.Fork(), det: it.det,
		Opener: it.Opener, Closer: it.Closer, GetInst: it.GetInst, SetInst: it.SetInst,
	}
}

// RegName returns the registered name or an empty string.
func (it *Item) RegName() string { return it.name }

// Layer returns the owning layer. Instances without own layer fall back to the layer of their
// defining class.
func (it *Item) Layer() *Layer {
	if it.lay == nil && it.class != nil {
		return it.class.Layer()
	}
	return it.lay
}

// Expo returns the exposure table of the item.
func (it *Item) Expo() *expo.Table { return it.expo }

// IsClass reports whether the item is a class-like definition rather than an instance.
func (it *Item) IsClass() bool { return it.class == nil }

// IsNew reports whether the item is an instance the local side considers unknown to remotes.
func (it *Item) IsNew() bool { return it.fresh }

// Detach marks the item as detached.
func (it *Item) Detach() { it.det = true }

// Detached reports whether the item is detached.
func (it *Item) Detached() bool { return it.det }

// Define sets the field value for name on the item itself.
func (it *Item) Define(name string, v interface{}) {
	if it.vals == nil {
		it.vals = make(map[string]interface{})
	}
	it.vals[name] = v
}

// Bind sets the method for name on the item itself.
func (it *Item) Bind(name string, m Method) {
	if it.meths == nil {
		it.meths = make(map[string]Method)
	}
	it.meths[name] = m
}

// Expose registers the property in the item's exposure table. Only exposed properties are
// reachable through remote queries.
func (it *Item) Expose(name string, kind expo.Kind, perm expo.Perm) error {
	return it.expo.Expose(name, kind, perm)
}

// Field returns the field value for name, walking the fork chain and then the class chain.
func (it *Item) Field(name string) (interface{}, bool) {
	for b := it; b != nil; b = b.base {
		if v, ok := b.vals[name]; ok {
			return v, true
		}
	}
	if it.class != nil {
		return it.class.Field(name)
	}
	return nil, false
}

// Meth returns the method for name, walking the fork chain and then the class chain.
func (it *Item) Meth(name string) (Method, bool) {
	for b := it; b != nil; b = b.base {
		if m, ok := b.meths[name]; ok {
			return m, true
		}
	}
	if it.class != nil {
		return it.class.Meth(name)
	}
	return nil, false
}

// Open calls the item opener if configured.
func (it *Item) Open() error {
	if it.Opener != nil {
		return it.Opener()
	}
	return nil
}

// Close calls the item closer if configured.
func (it *Item) Close() error {
	if it.Closer != nil {
		return it.Closer()
	}
	return nil
}

func (it *Item) register(name string, l *Layer) error {
	if it.lay != nil {
		return cor.Errorf("register %s: %w", name, ErrRegistered)
	}
	if it.name != "" && it.name != name {
		return cor.Errorf("register %s: item is already named %s", name, it.name)
	}
	it.name = name
	it.lay = l
	return nil
}

// typeName returns the wire type name, the registered name of the item or its defining class.
func (it *Item) typeName() string {
	if it.name != "" {
		return it.name
	}
	if it.class != nil {
		return it.class.typeName()
	}
	return ""
}

// EncodeWire serializes the item as a typed object carrying its field values. Items without a
// registered type name cannot travel and fail. When the opts carry a get filter, only fields
// the filter admits are included.
func (it *Item) EncodeWire(o *wire.Opts) (map[string]interface{}, error) {
	name := it.typeName()
	if name == "" {
		return nil, cor.Error("cannot serialize unregistered item")
	}
	res := make(map[string]interface{})
	res[wire.TypeKey] = name
	if it.fresh {
		res[wire.NewKey] = true
	}
	for _, key := range it.fieldKeys() {
		if o != nil && o.GetFilter != nil && !o.GetFilter(name, key) {
			continue
		}
		v, _ := it.Field(key)
		s, err := wire.Serialize(v, o)
		if err != nil {
			return nil, err
		}
		res[key] = s
	}
	return res, nil
}

// DecodeWire deserializes a typed object payload into an instance of the item, honoring the
// set filter and the identity map hooks. The registered item receives updates itself when the
// payload is not marked new and carries no identity.
func (it *Item) DecodeWire(raw map[string]interface{}, o *wire.Opts) (interface{}, error) {
	inst := it.instance(raw)
	err := inst.applyWire(raw, o)
	if err != nil {
		return nil, err
	}
	if it.SetInst != nil {
		it.SetInst(inst)
	}
	return inst, nil
}

// applyWire writes the fields of a typed object payload onto the item itself.
func (it *Item) applyWire(raw map[string]interface{}, o *wire.Opts) error {
	for _, key := range sortedRawKeys(raw) {
		if key == wire.TypeKey || key == wire.NewKey {
			continue
		}
		if o != nil && o.SetFilter != nil && !o.SetFilter(it.typeName(), key) {
			return cor.Errorf("%s %s: %w", it.typeName(), key, ErrDenied)
		}
		d, err := wire.Deserialize(raw[key], o)
		if err != nil {
			return err
		}
		it.Define(key, d)
	}
	return nil
}

func sortedRawKeys(raw map[string]interface{}) []string {
	res := make([]string, 0, len(raw))
	for k := range raw {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// instance resolves the live instance a typed object payload refers to.
func (it *Item) instance(raw map[string]interface{}) *Item {
	var prev *Item
	id, hasID := raw["id"]
	if hasID {
		prev = it.insts[id]
	}
	if it.GetInst != nil {
		if inst := it.GetInst(raw, prev); inst != nil {
			return inst
		}
	}
	if prev != nil {
		return prev
	}
	if isNew, _ := raw[wire.NewKey].(bool); isNew || hasID {
		inst := it.NewInstance()
		inst.fresh = false
		if hasID {
			if it.insts == nil {
				it.insts = make(map[interface{}]*Item)
			}
			it.insts[id] = inst
		}
		return inst
	}
	return it
}

// fieldKeys returns all field names visible on the item in a stable order.
func (it *Item) fieldKeys() []string {
	seen := make(map[string]bool)
	var res []string
	for b := it; b != nil; b = b.base {
		for k := range b.vals {
			if !seen[k] {
				seen[k] = true
				res = append(res, k)
			}
		}
	}
	if it.class != nil {
		for _, k := range it.class.fieldKeys() {
			if !seen[k] {
				seen[k] = true
				res = append(res, k)
			}
		}
	}
	sort.Strings(res)
	return res
}
