package hub

import (
	"github.com/mb0/xelf/cor"

	"github.com/cnx2016/liaison"
	"github.com/cnx2016/liaison/wire"
)

// A service is a common interface for the last message processor in line.
// It usually is used by wrappers, that handle message parsing and delegate.
type Service interface {
	// Serve handles the message and returns the response data or an error.
	Serve(*Msg) (interface{}, error)
}

// Services is a map of message subjects to service processors.
type Services map[string]Service

// Handle calls the service with m's subject or returns an error. The sender receives a result
// message with the query token echoed, or an err message when the service failed.
func (s Services) Handle(m *Msg, c Conn) error {
	f := s[m.Subj]
	if f == nil {
		return cor.Errorf("service not supported %s", m.Subj)
	}
	res, err := f.Serve(m)
	if err != nil {
		m.From.Chan() <- &Msg{From: c, Subj: SubjErr, Tok: m.Tok, Data: err.Error()}
		return err
	}
	if res != nil {
		m.From.Chan() <- &Msg{From: c, Subj: SubjResult, Tok: m.Tok, Data: res}
	}
	return nil
}

// LayerService hosts a layer as the query service of a hub. Incoming query messages are parsed
// into request envelopes and answered by the hosted layer.
type LayerService struct {
	Layer *liaison.Layer
}

func (s *LayerService) Serve(m *Msg) (interface{}, error) {
	req, err := reqData(m)
	if err != nil {
		return nil, err
	}
	return s.Layer.ReceiveQuery(req)
}

// reqData returns the request envelope of a query message, parsing raw bytes if needed.
func reqData(m *Msg) (*wire.Request, error) {
	if r, ok := m.Data.(*wire.Request); ok {
		return r, nil
	}
	if len(m.Raw) == 0 {
		return nil, cor.Errorf("empty query message")
	}
	return wire.ParseRequest(m.Raw)
}

// resData returns the response envelope of a result message, parsing raw bytes if needed.
func resData(m *Msg) (*wire.Response, error) {
	if r, ok := m.Data.(*wire.Response); ok {
		return r, nil
	}
	if len(m.Raw) == 0 {
		return nil, cor.Errorf("empty result message")
	}
	return wire.ParseResponse(m.Raw)
}
