package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/expo"
	"github.com/cnx2016/liaison/log"
	"github.com/cnx2016/liaison/qry"
	"github.com/cnx2016/liaison/wire"
)

// DefaultTimeout bounds how long a remote waits for a result message.
const DefaultTimeout = 8 * time.Second

// Remote is a parent registry reached over a hub. Queries sent by child layers become query
// messages with a fresh token, results are matched back by token. Registration and exposure
// checks are answered from a cached introspection of the far side.
type Remote struct {
	id   int64
	name string
	hub  *Hub
	ch   chan *Msg
	reqs RequestMap
	// Timeout overrides DefaultTimeout when set.
	Timeout time.Duration
	Log     log.Logger

	mu    sync.Mutex
	intro map[string]map[string]string
}

// NewRemote returns a new remote with the given far side name, signed on to h and running its
// receive loop. Run the hub before creating remotes.
func NewRemote(name string, h *Hub, l log.Logger) *Remote {
	if l == nil {
		l = &log.Default{}
	}
	r := &Remote{id: NextID(), name: name, hub: h, ch: make(chan *Msg, 32), Log: l}
	Signon(h, r)
	go r.run()
	return r
}

func (r *Remote) ID() int64         { return r.id }
func (r *Remote) Chan() chan<- *Msg { return r.ch }

func (r *Remote) Name() string { return r.name }

// Has reports whether the far side registers an item under name.
func (r *Remote) Has(name string) bool {
	items := r.items()
	_, ok := items[name]
	return ok
}

// ExposesMethod reports whether the far side item exposes prop as a method.
func (r *Remote) ExposesMethod(item, prop string) bool {
	items := r.items()
	props, ok := items[item]
	if !ok {
		return false
	}
	return props[prop] == string(expo.KindMethod)
}

// ReceiveQuery sends the request envelope as a query message and waits for the matching result.
func (r *Remote) ReceiveQuery(req *wire.Request) (*wire.Response, error) {
	tok, ch := r.reqs.Note()
	r.hub.Chan() <- &Msg{From: r, Subj: SubjQuery, Tok: tok, Data: req}
	select {
	case m := <-ch:
		if m.Subj == SubjErr {
			return nil, cor.Error(errData(m))
		}
		return resData(m)
	case <-time.After(r.timeout()):
	}
	r.reqs.Drop(tok)
	return nil, cor.Errorf("query timeout for %s", r.name)
}

func (r *Remote) run() {
	for m := range r.ch {
		if m == nil {
			return
		}
		switch m.Subj {
		case SubjResult, SubjErr:
			if err := r.reqs.Respond(m); err != nil {
				r.Log.Error("unmatched result", "remote", r.name, "err", err)
			}
		default:
			r.Log.Debug("unhandled message", "remote", r.name, "subj", m.Subj)
		}
	}
}

// items returns the cached far side introspection, fetching it on first use. A failed fetch is
// logged and reported as an empty registry, the next call retries.
func (r *Remote) items() map[string]map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intro != nil {
		return r.intro
	}
	q := map[string]interface{}{
		liaison.IntroName + "=>": map[string]interface{}{qry.ArgKey: []interface{}{}},
	}
	res, err := r.ReceiveQuery(&wire.Request{Query: q})
	if err != nil {
		r.Log.Error("introspection failed", "remote", r.name, "err", err)
		return nil
	}
	r.intro = parseIntro(res.Result)
	return r.intro
}

// parseIntro reduces a registry introspection to item names mapped to prop kinds.
func parseIntro(v interface{}) map[string]map[string]string {
	res := make(map[string]map[string]string)
	top, ok := v.(map[string]interface{})
	if !ok {
		return res
	}
	items, ok := top["items"].(map[string]interface{})
	if !ok {
		return res
	}
	for name, raw := range items {
		props := make(map[string]string)
		itm, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		for k, pv := range itm {
			if k == wire.TypeKey || k == "class" {
				continue
			}
			pm, ok := pv.(map[string]interface{})
			if !ok {
				continue
			}
			if kind, ok := pm[wire.TypeKey].(string); ok {
				props[k] = kind
			}
		}
		res[name] = props
	}
	return res
}

func (r *Remote) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

// errData returns the error text of an err message.
func errData(m *Msg) string {
	if s, ok := m.Data.(string); ok && s != "" {
		return s
	}
	if len(m.Raw) > 0 {
		var s string
		if json.Unmarshal(m.Raw, &s) == nil {
			return s
		}
		return string(m.Raw)
	}
	return "remote error"
}
