package liaison

import (
	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/expo"
)

// Receiver resolves member names during query invocation. Layers and items are receivers.
type Receiver interface {
	QueryMember(name string) (*Member, bool)
}

// Member is a resolved receiver member. Fields carry their value in Val, which may itself be a
// receiver for nested selection. Methods carry a bound call function.
type Member struct {
	Name string
	Kind expo.Kind
	Val  interface{}
	Call func(args []interface{}) (interface{}, error)
}

// QueryMember resolves layer members: the well-known introspect call and registered items as
// read-only fields.
func (l *Layer) QueryMember(name string) (*Member, bool) {
	if name == IntroName {
		return &Member{Name: name, Kind: expo.KindMethod, Call: func([]interface{}) (interface{}, error) {
			return l.Introspect(&IntroOpts{ExposedOnly: true}), nil
		}}, true
	}
	it := l.Lookup(name)
	if it == nil {
		return nil, false
	}
	return &Member{Name: name, Kind: expo.KindField, Val: it}, true
}

// QueryMember resolves item members local first and falls back to a remote proxy.
func (it *Item) QueryMember(name string) (*Member, bool) {
	if m, ok := it.Member(name); ok {
		return m, true
	}
	if call, ok := it.RemoteMethod(name); ok {
		return &Member{Name: name, Kind: expo.KindMethod, Call: call}, true
	}
	return nil, false
}

// Member resolves a local field or method of the item.
func (it *Item) Member(name string) (*Member, bool) {
	if m, ok := it.Meth(name); ok {
		meth := m
		return &Member{Name: name, Kind: expo.KindMethod, Call: func(args []interface{}) (interface{}, error) {
			return meth(it, args)
		}}, true
	}
	if v, ok := it.Field(name); ok {
		return &Member{Name: name, Kind: expo.KindField, Val: v}, true
	}
	return nil, false
}

// RemoteMethod returns a proxy function that forwards a call to the parent layer, when the
// item has a registered name, a reachable parent layer and the parent's same-named item
// exposes the property as a method. This lets edge code call backend methods through plain
// member access.
func (it *Item) RemoteMethod(name string) (func(args []interface{}) (interface{}, error), bool) {
	reg := it.typeName()
	if reg == "" {
		return nil, false
	}
	lay := it.Layer()
	if lay == nil || lay.parent == nil {
		return nil, false
	}
	if !lay.parent.ExposesMethod(reg, name) {
		return nil, false
	}
	return func(args []interface{}) (interface{}, error) {
		if args == nil {
			args = []interface{}{}
		}
		q := map[string]interface{}{
			reg + "=>": map[string]interface{}{
				name + "=>": map[string]interface{}{"()": args},
			},
		}
		return lay.SendQuery(q)
	}, true
}

// Resolve returns the member for name trying local members first and the remote proxy second.
func (it *Item) Resolve(name string) (*Member, error) {
	m, ok := it.QueryMember(name)
	if !ok {
		return nil, cor.Errorf("member %s: %w", name, ErrNotFound)
	}
	return m, nil
}
