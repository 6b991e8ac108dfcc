package wshub

import (
	"strings"
	"testing"

	"github.com/mb0/xelf/bfr"

	"github.com/cnx2016/liaison/hub"
	"github.com/cnx2016/liaison/wire"
)

func TestReadMsg(t *testing.T) {
	tests := []struct {
		raw  string
		want hub.Msg
	}{
		{"query#1f\n{\"q\":true}", hub.Msg{Subj: "query", Tok: []byte("1f"), Raw: []byte(`{"q":true}`)}},
		{"query\n{}", hub.Msg{Subj: "query", Raw: []byte("{}")}},
		{"+", hub.Msg{Subj: "+"}},
		{"err#2", hub.Msg{Subj: "err", Tok: []byte("2")}},
	}
	for _, test := range tests {
		m, err := readMsg(strings.NewReader(test.raw))
		if err != nil {
			t.Errorf("read %q failed: %v", test.raw, err)
			continue
		}
		if m.Subj != test.want.Subj {
			t.Errorf("read %q: want subj %s got %s", test.raw, test.want.Subj, m.Subj)
		}
		if string(m.Tok) != string(test.want.Tok) {
			t.Errorf("read %q: want tok %s got %s", test.raw, test.want.Tok, m.Tok)
		}
		if string(m.Raw) != string(test.want.Raw) {
			t.Errorf("read %q: want body %s got %s", test.raw, test.want.Raw, m.Raw)
		}
	}
	if _, err := readMsg(strings.NewReader("#1\nbody")); err == nil {
		t.Errorf("want error for message without subject")
	}
}

func TestWriteMsgTo(t *testing.T) {
	tests := []struct {
		msg  hub.Msg
		want string
	}{
		{hub.Msg{Subj: "query", Tok: []byte("1f"), Raw: []byte(`{"q":true}`)}, "query#1f\n{\"q\":true}"},
		{hub.Msg{Subj: "+"}, "+"},
		{hub.Msg{Subj: "err", Tok: []byte("2"), Data: "denied"}, "err#2\n\"denied\"\n"},
	}
	for _, test := range tests {
		b := bfr.Get()
		err := writeMsgTo(b, &test.msg)
		if err != nil {
			t.Errorf("write %s failed: %v", test.msg.Subj, err)
			bfr.Put(b)
			continue
		}
		if got := b.String(); got != test.want {
			t.Errorf("write %s: want %q got %q", test.msg.Subj, test.want, got)
		}
		bfr.Put(b)
	}
}

func TestWriteMsgEnvelope(t *testing.T) {
	req := &wire.Request{Query: map[string]interface{}{"x": true}, Source: "front"}
	b := bfr.Get()
	defer bfr.Put(b)
	err := writeMsgTo(b, &hub.Msg{Subj: hub.SubjQuery, Tok: []byte("1"), Data: req})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := b.String()
	if !strings.HasPrefix(out, "query#1\n") {
		t.Fatalf("want framed envelope got %q", out)
	}
	got, err := wire.ParseRequest([]byte(out[len("query#1\n"):]))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got.Source != "front" {
		t.Errorf("want source front got %s", got.Source)
	}
	q, _ := got.Query.(map[string]interface{})
	if q == nil || q["x"] != true {
		t.Errorf("want query round trip got %v", got.Query)
	}
}
