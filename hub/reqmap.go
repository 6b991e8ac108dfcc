package hub

import (
	"strconv"
	"sync"

	"github.com/mb0/xelf/cor"
)

// RequestMap matches result messages to the outstanding queries that caused them. Note returns
// a new hex token for each query, transports must echo the token on the result message.
type RequestMap struct {
	sync.Mutex
	last int64
	m    map[string]chan *Msg
}

// Note registers a new outstanding query and returns its token together with a buffered
// channel that receives the matching result.
func (r *RequestMap) Note() ([]byte, chan *Msg) {
	r.Lock()
	defer r.Unlock()
	r.last++
	if r.m == nil {
		r.m = make(map[string]chan *Msg)
	}
	tok := strconv.FormatInt(r.last, 16)
	ch := make(chan *Msg, 1)
	r.m[tok] = ch
	return []byte(tok), ch
}

// Respond routes a result message to the channel noted for its token and forgets the query.
func (r *RequestMap) Respond(m *Msg) error {
	if len(m.Tok) == 0 {
		return cor.Errorf("empty token for response %s", m.Subj)
	}
	tok := string(m.Tok)
	r.Lock()
	ch, ok := r.m[tok]
	if ok {
		delete(r.m, tok)
	}
	r.Unlock()
	if !ok {
		return cor.Errorf("no request with token %s", tok)
	}
	ch <- m
	return nil
}

// Drop forgets an outstanding query, usually after its caller gave up waiting.
func (r *RequestMap) Drop(tok []byte) {
	r.Lock()
	delete(r.m, string(tok))
	r.Unlock()
}
