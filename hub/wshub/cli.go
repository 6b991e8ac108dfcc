package wshub

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cnx2016/liaison/hub"
	"github.com/cnx2016/liaison/log"
)

// TokenProvider supplies auth headers for outgoing connections.
type TokenProvider interface {
	Token(url string) (http.Header, error)
	ClearToken(url string) error
}

// Client is a hub connection that dials a remote websocket hub.
type Client struct {
	url  string
	id   int64
	send chan *hub.Msg
	*websocket.Dialer
	TokenProvider
	Log log.Logger
}

func NewClient(url string) *Client {
	return &Client{url: url, id: hub.NextID(), send: make(chan *hub.Msg, 32)}
}

func (c *Client) ID() int64             { return c.id }
func (c *Client) Chan() chan<- *hub.Msg { return c.send }

// Connect dials the remote hub and pumps messages between the websocket and the route channel
// until the connection closes. The client signs on to r before reading and off after.
func (c *Client) Connect(r chan<- *hub.Msg) error {
	c.init()
	hdr, err := c.Token(c.url)
	if err != nil {
		return err
	}
	wc, _, err := c.Dial(c.url, hdr)
	if err != nil {
		c.ClearToken(c.url)
		return err
	}
	cc := newConn(c.id, wc, c.send)
	r <- &hub.Msg{From: c, Subj: hub.SubjSignon}
	go cc.writeAll(c.Log)
	err = cc.readAll(r)
	r <- &hub.Msg{From: c, Subj: hub.SubjSignoff}
	return err
}

func (c *Client) init() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Log == nil {
		c.Log = &log.Default{}
	}
	if c.TokenProvider == nil {
		c.TokenProvider = (*nilProvider)(nil)
	}
}

type nilProvider struct{}

func (*nilProvider) Token(string) (http.Header, error) { return nil, nil }
func (*nilProvider) ClearToken(string) error           { return nil }
