/*
Package qry provides the reference query invoker for layered registries.

The invoker interprets a deep-path query value against a receiver tree. A query is a keyed map
where each key selects a member of the current receiver and each value describes what to do
with it:

	{"Clock=>": {"getTime=>result": {"()": []}}}

A key has the form "name", "name=>alias" or "name=>". The plain form selects the member into a
result key of the same name, the aliased form renames it and the empty alias collapses the
member result into the parent, replacing it entirely. A value of true fetches a field, a map
with the reserved "()" key calls a method with the given argument list and a plain map recurses
into the member for nested selection. Remaining keys beside "()" select into the call result.

Every member access consults the authorizer first. A denied access fails exactly like a
missing member, so callers cannot probe for members they are not allowed to see.
*/
package qry

import (
	"sort"
	"strings"

	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/expo"
)

// ArgKey is the reserved query key holding method call arguments.
const ArgKey = "()"

// Backend is the deep-path query invoker. It implements liaison.Invoker.
type Backend struct{}

func (Backend) Invoke(root liaison.Receiver, q interface{}, auth liaison.AuthFunc) (interface{}, error) {
	return eval(root, q, auth)
}

func eval(target, q interface{}, auth liaison.AuthFunc) (interface{}, error) {
	sel, ok := q.(map[string]interface{})
	if !ok {
		return nil, cor.Errorf("invalid query value %T", q)
	}
	res := make(map[string]interface{})
	var collapsed interface{}
	collapse := false
	for _, key := range keys(sel) {
		if key == ArgKey {
			continue
		}
		name, alias, arrow := splitKey(key)
		val, err := member(target, name, sel[key], auth)
		if err != nil {
			return nil, err
		}
		if arrow && alias == "" {
			if collapse || len(res) > 0 {
				return nil, cor.Error("cannot combine a collapsing selection with others")
			}
			collapsed, collapse = val, true
			continue
		}
		if collapse {
			return nil, cor.Error("cannot combine a collapsing selection with others")
		}
		if alias == "" {
			alias = name
		}
		res[alias] = val
	}
	if collapse {
		return collapsed, nil
	}
	return res, nil
}

// member authorizes and evaluates one selection on the target.
func member(target interface{}, name string, sub interface{}, auth liaison.AuthFunc) (interface{}, error) {
	if data, ok := target.(map[string]interface{}); ok {
		val, ok := data[name]
		if !ok {
			return nil, notFound(name)
		}
		return pick(val, sub, auth)
	}
	rcv, ok := target.(liaison.Receiver)
	if !ok {
		return nil, notFound(name)
	}
	sel, isMap := sub.(map[string]interface{})
	call := false
	if isMap {
		_, call = sel[ArgKey]
	}
	op := expo.OpGet
	if call {
		op = expo.OpCall
	}
	if auth != nil {
		ok, err := auth(target, name, op)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notFound(name)
		}
	}
	mem, ok := rcv.QueryMember(name)
	if !ok {
		return nil, notFound(name)
	}
	if !call {
		return pick(mem.Val, sub, auth)
	}
	if mem.Call == nil {
		return nil, notFound(name)
	}
	args, err := argList(sel[ArgKey])
	if err != nil {
		return nil, cor.Errorf("call %s: %w", name, err)
	}
	val, err := mem.Call(args)
	if err != nil {
		return nil, err
	}
	if rest := without(sel, ArgKey); len(rest) > 0 {
		return eval(val, rest, auth)
	}
	return val, nil
}

// pick applies the selection shape to an already resolved value.
func pick(val, sub interface{}, auth liaison.AuthFunc) (interface{}, error) {
	switch s := sub.(type) {
	case bool:
		if s {
			return val, nil
		}
	case map[string]interface{}:
		return eval(val, s, auth)
	}
	return nil, cor.Errorf("invalid selection value %T", sub)
}

func argList(v interface{}) ([]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	args, ok := v.([]interface{})
	if !ok {
		return nil, cor.Errorf("arguments must be a list, got %T", v)
	}
	return args, nil
}

func splitKey(key string) (name, alias string, arrow bool) {
	idx := strings.Index(key, "=>")
	if idx < 0 {
		return key, "", false
	}
	return key[:idx], key[idx+2:], true
}

func without(sel map[string]interface{}, key string) map[string]interface{} {
	res := make(map[string]interface{}, len(sel)-1)
	for k, v := range sel {
		if k != key {
			res[k] = v
		}
	}
	return res
}

func keys(sel map[string]interface{}) []string {
	res := make([]string, 0, len(sel))
	for k := range sel {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// notFound fails member access. Denied and missing members fail with the same error so the
// registry shape does not leak.
func notFound(name string) error {
	return cor.Errorf("member %s: %w", name, liaison.ErrNotFound)
}
