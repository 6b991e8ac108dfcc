// Package expo provides per-item exposure tables that describe which properties a remote caller
// may read, write or call.
//
// Tables are organized in a base chain. A forked table shares all properties of its base until the
// first write, at which point the change lands in the fork's own map and never in the base. This
// lets subtypes and layer forks extend an inherited table without affecting siblings.
package expo

import "github.com/mb0/xelf/cor"

// Kind classifies an exposed property as either a data field or a callable method.
type Kind string

const (
	KindField  Kind = "field"
	KindMethod Kind = "method"
)

// Operation names used for permission settings and authorization checks.
const (
	OpGet  = "get"
	OpSet  = "set"
	OpCall = "call"
)

// Setting is the permission setting for one operation on one property. A valid setting is nil,
// a bool, a non-empty identifier string or a slice of identifier strings. Identifiers are not
// interpreted by this package, they are resolved by a delegate at call time.
type Setting interface{}

// Perm holds the settings for all operations applicable to a property kind. Fields use the get
// and set settings, methods only the call setting.
type Perm struct {
	Get  Setting
	Set  Setting
	Call Setting
}

// Prop describes one exposed property.
type Prop struct {
	Name string
	Kind Kind
	Perm Perm
}

// Setting returns the permission setting for op or nil if op does not apply to the prop kind.
func (p *Prop) Setting(op string) Setting {
	switch op {
	case OpGet:
		if p.Kind == KindField {
			return p.Perm.Get
		}
	case OpSet:
		if p.Kind == KindField {
			return p.Perm.Set
		}
	case OpCall:
		if p.Kind == KindMethod {
			return p.Perm.Call
		}
	}
	return nil
}

// Vote is the three-way result of a permission check.
type Vote int

const (
	// Deny rejects the operation outright.
	Deny Vote = iota
	// Allow permits the operation without consulting a delegate.
	Allow
	// Delegate defers the decision to an external predicate resolved at call time.
	Delegate
)

// Table maps property names to exposure props. The zero value is an empty table.
type Table struct {
	base *Table
	own  map[string]*Prop
}

// Fork returns a new table that inherits all props from t until its first own write.
func (t *Table) Fork() *Table { return &Table{base: t} }

// Expose registers or overwrites the prop for name. It fails on an invalid kind or a setting
// for an operation that does not apply to the kind.
func (t *Table) Expose(name string, kind Kind, perm Perm) error {
	if name == "" {
		return cor.Error("expose property without name")
	}
	switch kind {
	case KindField:
		if perm.Call != nil {
			return cor.Errorf("field %s cannot have a call setting", name)
		}
	case KindMethod:
		if perm.Get != nil || perm.Set != nil {
			return cor.Errorf("method %s cannot have get or set settings", name)
		}
	default:
		return cor.Errorf("invalid property kind %q", kind)
	}
	if err := checkSetting(name, perm.Get); err != nil {
		return err
	}
	if err := checkSetting(name, perm.Set); err != nil {
		return err
	}
	if err := checkSetting(name, perm.Call); err != nil {
		return err
	}
	if t.own == nil {
		t.own = make(map[string]*Prop)
	}
	t.own[name] = &Prop{Name: name, Kind: kind, Perm: perm}
	return nil
}

// Prop returns the prop for name walking the base chain, or false if name is not exposed.
func (t *Table) Prop(name string) (*Prop, bool) {
	for ; t != nil; t = t.base {
		if p, ok := t.own[name]; ok {
			return p, true
		}
	}
	return nil, false
}

// Exposed reports whether the whole entity is remotely visible when called without a name,
// or whether the named property is exposed.
func (t *Table) Exposed(name ...string) bool {
	if len(name) == 0 {
		for ; t != nil; t = t.base {
			if len(t.own) > 0 {
				return true
			}
		}
		return false
	}
	_, ok := t.Prop(name[0])
	return ok
}

// Keys returns all exposed property names in the chain, own entries shadowing base entries.
func (t *Table) Keys() []string {
	seen := make(map[string]bool)
	var res []string
	for ; t != nil; t = t.base {
		for k := range t.own {
			if !seen[k] {
				seen[k] = true
				res = append(res, k)
			}
		}
	}
	return res
}

// Vote checks the permission setting of the named property for op. A bool setting results in an
// allow or deny vote. A missing property or an operation that does not apply to the property
// kind is denied. Any other setting, including a nil setting on an exposed property, delegates
// the decision to the owner and returns the setting alongside.
func (t *Table) Vote(name, op string) (Vote, Setting) {
	p, ok := t.Prop(name)
	if !ok {
		return Deny, nil
	}
	switch op {
	case OpGet, OpSet:
		if p.Kind != KindField {
			return Deny, nil
		}
	case OpCall:
		if p.Kind != KindMethod {
			return Deny, nil
		}
	default:
		return Deny, nil
	}
	s := p.Setting(op)
	if b, ok := s.(bool); ok {
		if b {
			return Allow, s
		}
		return Deny, s
	}
	return Delegate, s
}

func checkSetting(name string, s Setting) error {
	switch v := s.(type) {
	case nil, bool:
	case string:
		if v == "" {
			return cor.Errorf("empty identifier setting on property %s", name)
		}
	case []string:
		if len(v) == 0 {
			return cor.Errorf("empty set setting on property %s", name)
		}
		for _, id := range v {
			if id == "" {
				return cor.Errorf("empty identifier in set setting on property %s", name)
			}
		}
	default:
		return cor.Errorf("invalid setting %T on property %s", s, name)
	}
	return nil
}
