// Package liaison implements layered registries of exposed items and the routed query protocol
// between them.
//
// A layer is a flat namespace of registered items with an optional parent layer. Queries built
// on one layer are serialized with any shared item state, shipped to the parent, authorized
// against the items' exposure tables, executed by a query invoker and the result travels back
// the same way. Layers fork copy-on-write so multiple logical sessions can share unmodified
// items but diverge on the ones they touch.
package liaison

import (
	"sort"

	"github.com/google/uuid"
	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/expo"
	"github.com/cnx2016/liaison/log"
	"github.com/cnx2016/liaison/wire"
)

var (
	// ErrRegistered rejects registering an item that is owned by another layer.
	ErrRegistered = cor.Error("item is already registered in a layer")
	// ErrDupName rejects registering a name that is already visible in the layer.
	ErrDupName = cor.Error("name is already registered")
	// ErrOpenLayer rejects registering into an open layer.
	ErrOpenLayer = cor.Error("cannot register into an open layer")
	// ErrAlreadyOpen rejects opening an open layer.
	ErrAlreadyOpen = cor.Error("layer is already open")
	// ErrNotOpen rejects closing a layer that this instance did not open. Forks never inherit
	// the open state, so closing a fork of an open layer fails with this error.
	ErrNotOpen = cor.Error("layer is not open")
	// ErrNotFound is returned for missing items and members.
	ErrNotFound = cor.Error("not found")
	// ErrDenied is returned for operations the authorizer rejects. It reads exactly like
	// ErrNotFound so callers cannot probe the registry shape.
	ErrDenied = cor.Error("not found")
)

// Parent is a layer reachable for query routing, either in process or through a transport.
// A layer never owns its parent.
type Parent interface {
	Name() string
	// Has reports whether the parent registers an item under name.
	Has(name string) bool
	// ExposesMethod reports whether the parent's item exposes prop as a method.
	ExposesMethod(item, prop string) bool
	ReceiveQuery(req *wire.Request) (*wire.Response, error)
}

// AuthFunc decides whether the named operation on the target receiver is permitted.
// Implementations may consult external predicates and fail with their error.
type AuthFunc func(target interface{}, name, op string) (bool, error)

// Invoker executes a deserialized query value against a receiver tree. It is an external
// collaborator consumed as a black box and must consult auth before every member access.
type Invoker interface {
	Invoke(root Receiver, query interface{}, auth AuthFunc) (interface{}, error)
}

// Delegate resolves permission settings the exposure table could not decide itself, usually
// by mapping identifier settings to the roles of the current caller.
type Delegate interface {
	Resolve(s expo.Setting, op string) (bool, error)
}

// Hooks are optional callbacks around query execution in ReceiveQuery.
type Hooks struct {
	Before func(l *Layer) error
	After  func(l *Layer) error
}

// Layer is a named registry of items plus the routing logic to a parent layer.
type Layer struct {
	name     string
	gen      bool
	reg      *registry
	parent   Parent
	open     bool
	detached bool
	ghost    *Layer
	batch    *batch

	// Invoker executes received queries. Receiving a query without one fails.
	Invoker Invoker
	// Delegate resolves delegated permission settings. Without one they are denied.
	Delegate Delegate
	// Hooks run before and after query invocation.
	Hooks Hooks
	// Yield is the scheduling point the batch driver calls once per flush pass.
	Yield func()
	Log   log.Logger
}

// New returns a new layer with the given name and optional parent. An empty name is replaced
// with a generated one.
func New(name string, parent Parent) *Layer {
	gen := name == ""
	if gen {
		name = uuid.New().String()
	}
	return &Layer{name: name, gen: gen, reg: &registry{}, parent: parent, Log: log.Root}
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Generated reports whether the layer name was generated.
func (l *Layer) Generated() bool { return l.gen }

// Parent returns the parent layer or nil.
func (l *Layer) Parent() Parent { return l.parent }

// IsOpen reports whether this layer instance is open. Forks never inherit the open state.
func (l *Layer) IsOpen() bool { return l.open }

// Register installs the given items into the layer. It fails if the layer is open, if an item
// is already owned by a layer, or if a name is already visible in this layer or its fork
// chain. Items are installed in name order and none are installed on failure.
func (l *Layer) Register(items map[string]*Item) error {
	if l.open {
		return ErrOpenLayer
	}
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		it := items[name]
		if it == nil {
			return cor.Errorf("register %s: nil item", name)
		}
		if it.lay != nil {
			return cor.Errorf("register %s: %w", name, ErrRegistered)
		}
		if _, ok := l.reg.lookup(name); ok {
			return cor.Errorf("register %s: %w", name, ErrDupName)
		}
	}
	for _, name := range names {
		it := items[name]
		err := it.register(name, l)
		if err != nil {
			return err
		}
		l.reg.install(name, it)
	}
	return nil
}

// RegisterOne installs a single item.
func (l *Layer) RegisterOne(name string, it *Item) error {
	return l.Register(map[string]*Item{name: it})
}

// Lookup resolves an item by name or returns nil. On a fork chain the first access to an
// inherited name materializes an own copy: the inherited item is forked, re-parented to this
// layer, detached if this layer is detached and cached.
func (l *Layer) Lookup(name string) *Item {
	if it, ok := l.reg.own[name]; ok {
		return it
	}
	it, ok := l.reg.inherited(name)
	if !ok {
		return nil
	}
	f := it.Fork()
	f.lay = l
	if l.detached {
		f.det = true
	}
	l.reg.install(name, f)
	return f
}

// Get resolves an item by name or fails with ErrNotFound.
func (l *Layer) Get(name string) (*Item, error) {
	it := l.Lookup(name)
	if it == nil {
		return nil, cor.Errorf("item %s: %w", name, ErrNotFound)
	}
	return it, nil
}

// Names returns all item names visible in the layer in a stable order.
func (l *Layer) Names() []string { return l.reg.names() }

// Has reports whether the layer registers an item under name. It implements Parent.
func (l *Layer) Has(name string) bool {
	_, ok := l.reg.lookup(name)
	return ok
}

// ExposesMethod reports whether the named item exposes prop as a method. It implements Parent.
func (l *Layer) ExposesMethod(item, prop string) bool {
	it, ok := l.reg.lookup(item)
	if !ok {
		return false
	}
	p, ok := it.expo.Prop(prop)
	return ok && p.Kind == expo.KindMethod
}

// Open opens the layer and every item in it. Inherited items are materialized first so each
// layer opens its own copies. A failed item open closes the already opened items again.
func (l *Layer) Open() error {
	if l.open {
		return ErrAlreadyOpen
	}
	names := l.Names()
	for i, name := range names {
		it := l.Lookup(name)
		err := it.Open()
		if err != nil {
			for j := i - 1; j >= 0; j-- {
				l.Lookup(names[j]).Close()
			}
			return cor.Errorf("open item %s: %w", name, err)
		}
	}
	l.open = true
	return nil
}

// Close closes every item of the layer and clears the open state. Only the layer instance that
// performed the matching Open may close, forks fail with ErrNotOpen. The items close in
// reverse open order and the first item error is returned after all of them closed.
func (l *Layer) Close() error {
	if !l.open {
		return ErrNotOpen
	}
	var first error
	names := l.Names()
	for i := len(names) - 1; i >= 0; i-- {
		err := l.Lookup(names[i]).Close()
		if err != nil && first == nil {
			first = cor.Errorf("close item %s: %w", names[i], err)
		}
	}
	l.open = false
	return first
}

// Fork returns a new layer view inheriting the registry copy-on-write. The fork shares
// unmodified items with its origin and never mutates the origin's table. The fork is not open
// regardless of the origin's state.
func (l *Layer) Fork() *Layer {
	return &Layer{
		name: l.name, gen: l.gen,
		reg:      &registry{base: l.reg},
		parent:   l.parent,
		detached: l.detached,
		Invoker:  l.Invoker, Delegate: l.Delegate, Hooks: l.Hooks,
		Yield: l.Yield, Log: l.Log,
	}
}

// Ghost returns the memoized scratch fork of the layer. It is created on first use and never
// touches the canonical registry.
func (l *Layer) Ghost() *Layer {
	if l.ghost == nil {
		l.ghost = l.Fork()
	}
	return l.ghost
}

// Detach marks the layer and every directly owned item as detached. Inherited items are
// detached when they materialize.
func (l *Layer) Detach() {
	l.detached = true
	for _, name := range l.reg.keys {
		l.reg.own[name].Detach()
	}
}

// Detached reports whether the layer is detached.
func (l *Layer) Detached() bool { return l.detached }

// registry is the item namespace of one layer. Own entries shadow the base chain, reads walk
// the chain until found and forks always materialize into the own map.
type registry struct {
	base *registry
	own  map[string]*Item
	keys []string
}

func (r *registry) install(name string, it *Item) {
	if r.own == nil {
		r.own = make(map[string]*Item)
	}
	if _, ok := r.own[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.own[name] = it
}

func (r *registry) lookup(name string) (*Item, bool) {
	for ; r != nil; r = r.base {
		if it, ok := r.own[name]; ok {
			return it, true
		}
	}
	return nil, false
}

func (r *registry) inherited(name string) (*Item, bool) {
	if r.base == nil {
		return nil, false
	}
	return r.base.lookup(name)
}

func (r *registry) names() []string {
	seen := make(map[string]bool)
	var res []string
	for ; r != nil; r = r.base {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				res = append(res, k)
			}
		}
	}
	sort.Strings(res)
	return res
}
