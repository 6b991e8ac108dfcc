// Package wshub connects hubs over websockets. Messages are framed as a text line holding the
// subject and optional token, followed by the JSON envelope body.
package wshub

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mb0/xelf/bfr"
	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison/hub"
	"github.com/cnx2016/liaison/log"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 60 * time.Second
)

type conn struct {
	id   int64
	wc   *websocket.Conn
	send chan *hub.Msg
}

func newConn(id int64, wc *websocket.Conn, send chan *hub.Msg) *conn {
	return &conn{id: id, wc: wc, send: send}
}

func (c *conn) ID() int64             { return c.id }
func (c *conn) Chan() chan<- *hub.Msg { return c.send }

// readAll reads messages from the websocket and forwards them to route until the connection
// closes. Normal client disconnects are not reported as errors.
func (c *conn) readAll(route chan<- *hub.Msg) error {
	for {
		op, r, err := c.wc.NextReader()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			if cerr, ok := err.(*websocket.CloseError); ok && cerr.Code == websocket.CloseGoingAway {
				return nil
			}
			return cor.Errorf("wshub next reader: %w", err)
		}
		if op == websocket.BinaryMessage {
			return cor.Error("wshub unexpected binary message")
		}
		if op != websocket.TextMessage {
			continue
		}
		m, err := readMsg(r)
		if err != nil {
			return cor.Errorf("wshub msg read failed: %w", err)
		}
		m.From = c
		route <- m
	}
}

// writeAll writes queued messages to the websocket and keeps the connection alive with pings.
// It returns when the send channel closes or a write fails.
func (c *conn) writeAll(l log.Logger) {
	defer c.wc.Close()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
Outer:
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				break Outer
			}
			if msg == nil {
				break Outer
			}
			err := c.writeMsg(msg)
			if err != nil {
				l.Error("wshub write failed", "subj", msg.Subj, "err", err)
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.wc.WriteMessage(websocket.PingMessage, []byte{})
			if err != nil {
				return
			}
		}
	}
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.wc.WriteMessage(websocket.CloseMessage, []byte{})
}

func readMsg(r io.Reader) (*hub.Msg, error) {
	b := bfr.Get()
	defer bfr.Put(b)

	_, err := b.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	var tok, body []byte
	head := b.Bytes()
	idx := bytes.IndexByte(head, '\n')
	if idx >= 0 {
		head, body = head[:idx], head[idx+1:]
	}
	idx = bytes.IndexByte(head, '#')
	if idx >= 0 {
		head, tok = head[:idx], head[idx+1:]
	}
	if len(head) == 0 {
		return nil, cor.Error("message without subject")
	}
	return &hub.Msg{
		Subj: string(head),
		Tok:  copyBytes(tok),
		Raw:  copyBytes(body),
	}, nil
}

func (c *conn) writeMsg(msg *hub.Msg) error {
	b := bfr.Get()
	defer bfr.Put(b)
	err := writeMsgTo(b, msg)
	if err != nil {
		return err
	}
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wc.WriteMessage(websocket.TextMessage, b.Bytes())
}

func writeMsgTo(b bfr.B, m *hub.Msg) error {
	_, err := b.WriteString(m.Subj)
	if err != nil {
		return err
	}
	if len(m.Tok) != 0 {
		b.WriteByte('#')
		_, err = b.Write(m.Tok)
		if err != nil {
			return err
		}
	}
	if len(m.Raw) != 0 {
		b.WriteByte('\n')
		_, err = b.Write(m.Raw)
		return err
	}
	if m.Data != nil {
		b.WriteByte('\n')
		if w, ok := m.Data.(bfr.Writer); ok {
			return w.WriteBfr(&bfr.Ctx{B: b, JSON: true})
		}
		return json.NewEncoder(b).Encode(m.Data)
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
