package liaison

import (
	"sort"

	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/expo"
	"github.com/cnx2016/liaison/wire"
)

// SendQuery serializes the query and any item state shared with the parent layer, ships the
// envelope to the parent and deserializes the result. Calling it on a layer without parent is
// a programming error and panics. While a batch is active the query is enqueued instead and
// the call blocks until the batch driver resolves it.
func (l *Layer) SendQuery(q interface{}) (interface{}, error) {
	if l.parent == nil {
		panic("liaison: send query on layer without parent")
	}
	if p := l.enqueue(q); p != nil {
		a := <-p.ch
		return a.val, a.err
	}
	return l.dispatch(q)
}

// dispatch performs one round trip to the parent layer.
func (l *Layer) dispatch(q interface{}) (interface{}, error) {
	req, err := l.buildRequest(q)
	if err != nil {
		return nil, err
	}
	l.Log.Debug("send query", "layer", l.name, "parent", l.parent.Name())
	res, err := l.parent.ReceiveQuery(req)
	if err != nil {
		return nil, err
	}
	return l.acceptResponse(res)
}

// buildRequest serializes the query in the parent's authorization scope together with every
// locally owned item the parent also registers under the same name, so object identity and
// state travel with the call.
func (l *Layer) buildRequest(q interface{}) (*wire.Request, error) {
	o := &wire.Opts{Target: l.parent.Name()}
	sq, err := wire.Serialize(q, o)
	if err != nil {
		return nil, err
	}
	var items map[string]interface{}
	for _, name := range sortedKeys(l.reg.keys) {
		if !l.parent.Has(name) {
			continue
		}
		enc, err := l.reg.own[name].EncodeWire(o)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = make(map[string]interface{})
		}
		items[name] = enc
	}
	return &wire.Request{Query: sq, Items: items, Source: l.name}, nil
}

// acceptResponse applies returned item updates and deserializes the result.
func (l *Layer) acceptResponse(res *wire.Response) (interface{}, error) {
	if res == nil {
		return nil, cor.Error("empty response envelope")
	}
	o := l.decodeOpts("", false)
	for _, name := range sortedItemKeys(res.Items) {
		it := l.Lookup(name)
		if it == nil {
			continue
		}
		raw, ok := res.Items[name].(map[string]interface{})
		if !ok {
			return nil, cor.Errorf("item update %s: invalid payload %T", name, res.Items[name])
		}
		err := it.applyWire(raw, o)
		if err != nil {
			return nil, err
		}
	}
	if res.Result == nil {
		return nil, nil
	}
	return wire.Deserialize(res.Result, o)
}

// ReceiveQuery authorizes, executes and answers one query envelope:
// incoming item updates apply first and only to exposed, settable state, then the layer opens,
// the query deserializes filtered by set permission, the hooks and the invoker run, the result
// and the readable item state serialize back to the source. The layer closes unconditionally,
// even when execution fails, and the original failure is surfaced.
func (l *Layer) ReceiveQuery(req *wire.Request) (res *wire.Response, err error) {
	if req == nil || req.Query == nil {
		return nil, cor.Error("empty query envelope")
	}
	l.Log.Debug("receive query", "layer", l.name, "source", req.Source)
	o := l.decodeOpts(req.Source, true)
	names := sortedItemKeys(req.Items)
	for _, name := range names {
		it := l.Lookup(name)
		if it == nil || !it.expo.Exposed() {
			return nil, cor.Errorf("item update %s: %w", name, ErrDenied)
		}
		raw, ok := req.Items[name].(map[string]interface{})
		if !ok {
			return nil, cor.Errorf("item update %s: invalid payload %T", name, req.Items[name])
		}
		err = it.applyWire(raw, o)
		if err != nil {
			return nil, err
		}
	}
	err = l.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		cerr := l.Close()
		if err == nil && cerr != nil {
			res, err = nil, cerr
		}
	}()
	q, err := wire.Deserialize(req.Query, o)
	if err != nil {
		return nil, err
	}
	if l.Hooks.Before != nil {
		err = l.Hooks.Before(l)
		if err != nil {
			return nil, err
		}
	}
	out, err := l.invoke(q, req.Source)
	if err != nil {
		return nil, err
	}
	so := &wire.Opts{Target: req.Source, GetFilter: l.getFilter()}
	var sr interface{}
	if out != nil {
		sr, err = wire.Serialize(out, so)
		if err != nil {
			return nil, err
		}
	}
	items, err := l.readableItems(names, so)
	if err != nil {
		return nil, err
	}
	if l.Hooks.After != nil {
		err = l.Hooks.After(l)
		if err != nil {
			return nil, err
		}
	}
	return &wire.Response{Result: sr, Items: items}, nil
}

// invoke executes the query through the configured invoker. A top-level list is a combined
// multi-query call, its elements are invoked in order and answered positionally.
func (l *Layer) invoke(q interface{}, source string) (interface{}, error) {
	if l.Invoker == nil {
		return nil, cor.Errorf("no query invoker configured for layer %s", l.name)
	}
	auth := l.authorizer(source)
	qs, ok := q.([]interface{})
	if !ok {
		return l.Invoker.Invoke(l, q, auth)
	}
	list := make([]interface{}, len(qs))
	for i, sub := range qs {
		out, err := l.Invoker.Invoke(l, sub, auth)
		if err != nil {
			return nil, err
		}
		list[i] = out
	}
	return list, nil
}

// authorizer builds the deny-by-default authorization callback for queries from source.
// The layer itself only answers the well-known introspection call and reads of exposed items.
// Item operations follow the exposure table votes, delegated settings resolve through the
// layer delegate.
func (l *Layer) authorizer(source string) AuthFunc {
	return func(target interface{}, name, op string) (bool, error) {
		switch t := target.(type) {
		case *Layer:
			if t != l {
				return false, nil
			}
			if op == expo.OpCall && name == IntroName {
				return true, nil
			}
			if op == expo.OpGet {
				it := l.Lookup(name)
				return it != nil && it.expo.Exposed(), nil
			}
		case *Item:
			return l.allowed(t, name, op)
		}
		return false, nil
	}
}

func (l *Layer) allowed(it *Item, name, op string) (bool, error) {
	v, s := it.expo.Vote(name, op)
	switch v {
	case expo.Allow:
		return true, nil
	case expo.Delegate:
		if l.Delegate == nil {
			return false, nil
		}
		return l.Delegate.Resolve(s, op)
	}
	return false, nil
}

// decodeOpts returns the deserialization options of this layer, resolving type names to
// registered items and optionally filtering writes by set permission.
func (l *Layer) decodeOpts(source string, filter bool) *wire.Opts {
	o := &wire.Opts{Target: source}
	o.Resolve = func(typ string) (wire.Decoder, error) {
		it := l.Lookup(typ)
		if it == nil {
			return nil, cor.Errorf("typed value %s: %w", typ, ErrNotFound)
		}
		return it, nil
	}
	if filter {
		o.SetFilter = func(typ, prop string) bool {
			it := l.Lookup(typ)
			if it == nil {
				return false
			}
			ok, err := l.allowed(it, prop, expo.OpSet)
			return err == nil && ok
		}
	}
	return o
}

// getFilter admits properties exposed for reading in the scope of the current caller.
func (l *Layer) getFilter() func(typ, prop string) bool {
	return func(typ, prop string) bool {
		it := l.Lookup(typ)
		if it == nil {
			return false
		}
		ok, err := l.allowed(it, prop, expo.OpGet)
		return err == nil && ok
	}
}

// readableItems serializes the state of the updated items that expose readable fields.
func (l *Layer) readableItems(names []string, o *wire.Opts) (map[string]interface{}, error) {
	var items map[string]interface{}
	for _, name := range names {
		it := l.Lookup(name)
		if it == nil {
			continue
		}
		enc, err := it.EncodeWire(o)
		if err != nil {
			return nil, err
		}
		if !hasPayload(enc) {
			continue
		}
		if items == nil {
			items = make(map[string]interface{})
		}
		items[name] = enc
	}
	return items, nil
}

// hasPayload reports whether a typed object carries fields beyond the reserved keys.
func hasPayload(enc map[string]interface{}) bool {
	for k := range enc {
		if k != wire.TypeKey && k != wire.NewKey {
			return true
		}
	}
	return false
}

func sortedKeys(keys []string) []string {
	res := make([]string, len(keys))
	copy(res, keys)
	sort.Strings(res)
	return res
}

func sortedItemKeys(items map[string]interface{}) []string {
	if len(items) == 0 {
		return nil
	}
	res := make([]string, 0, len(items))
	for k := range items {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
