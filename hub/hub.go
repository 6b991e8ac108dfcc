// Package hub provides a transport agnostic connection hub for layer query traffic.
//
// A hub routes envelope messages between signed-on participants. Backends host a layer behind
// a service, frontends attach a remote parent that speaks the same envelopes. The hub itself
// does not interpret query payloads, it only routes by subject and matches tokens.
package hub

import "sync"

const (
	SubjSignon  = "+"
	SubjSignoff = "-"
	// SubjQuery carries a query request envelope to a hosted layer.
	SubjQuery = "query"
	// SubjResult carries a successful response envelope back to the caller.
	SubjResult = "result"
	// SubjErr carries an error message back to the caller.
	SubjErr = "err"
)

// Msg is the central data structure passed between connections.
//
// The from and subj fields must be populated. Tok is used by the origin connection to match
// results to queries, is otherwise unprocessed and completely optional. Message body is either
// represented by raw bytes or a typed data, or both. For query subjects the data is a request
// envelope and for result subjects a response envelope. If raw is not populated and data is, a
// transport may choose a serialization format, usually JSON. The data field can effectively be
// used to avoid envelope serialization to and from bytes for in-process messages.
type Msg struct {
	// From is the connection this message originates from.
	From Conn
	// Subj is the message header used for routing and determining the data type.
	Subj string
	Tok  []byte
	Raw  []byte
	Data interface{}
}

// Router routes a received message to connection.
type Router interface{ Route(*Msg) }

// Conn is the common interface providing an ID and channel for participants connected to a hub.
//
// Connections can represent one-off calls, connected frontends, the hub itself or hosted
// backend layers. Connections can hold on to received message sender connections.
type Conn interface {
	// ID is an internal connection identifier, the hub has id 0, transient connections have a
	// negative and normal connections positive ids.
	ID() int64
	// Chan returns an unchanging receiver channel. The hub sends a nil message to this
	// channel after a sign-off message from this conn was routed.
	Chan() chan<- *Msg
}

// Hub is the central server participant that manages connection sign-on and sign-offs and keeps a
// list of all signed on participants. Hub itself implements a Conn with ID 0.
//
// One-off connections used for a simple query-result round trip can be used without sign-on
// and must use the special ID -1. These connections can only be responded to directly and must
// not be held on to. The acceptors that send messages to hub for routing are also responsible
// for sender sign-on and validation.
type Hub struct {
	sync.Mutex
	cmap map[int64]Conn
	mque chan *Msg
}

// NewHub creates and returns a new hub.
func NewHub() *Hub {
	return &Hub{
		cmap: make(map[int64]Conn, 64),
		mque: make(chan *Msg, 128),
	}
}

func (h *Hub) ID() int64         { return 0 }
func (h *Hub) Chan() chan<- *Msg { return h.mque }

// Signon sends a sign-on message for c to the hub.
func Signon(h *Hub, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignon} }

// Signoff sends a sign-off message for c to the hub.
func Signoff(h *Hub, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignoff} }

// Run starts routing received messages with the given router. It is usually run in a go routine.
func (h *Hub) Run(r Router) {
	for m := range h.mque {
		if m == nil {
			break
		}
		if m.Subj == SubjSignon {
			h.Lock()
			h.cmap[m.From.ID()] = m.From
			h.Unlock()
		}
		r.Route(m)
		if m.Subj == SubjSignoff {
			h.Lock()
			delete(h.cmap, m.From.ID())
			m.From.Chan() <- nil
			h.Unlock()
		}
	}
}
