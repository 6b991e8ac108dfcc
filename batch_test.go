package liaison

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cnx2016/liaison/wire"
)

// fakeParent answers query envelopes from a plain function and counts round trips.
type fakeParent struct {
	sync.Mutex
	calls   int
	exposes bool
	serve   func(req *wire.Request) (*wire.Response, error)
}

func (p *fakeParent) Name() string    { return "up" }
func (p *fakeParent) Has(string) bool { return false }

func (p *fakeParent) ExposesMethod(item, prop string) bool {
	return p.exposes && prop == "ping"
}
func (p *fakeParent) ReceiveQuery(req *wire.Request) (*wire.Response, error) {
	p.Lock()
	p.calls++
	p.Unlock()
	return p.serve(req)
}

func (p *fakeParent) count() int {
	p.Lock()
	defer p.Unlock()
	return p.calls
}

// echoParent answers each query string "qN" with "aN" and combined calls positionally.
func echoParent() *fakeParent {
	return &fakeParent{serve: func(req *wire.Request) (*wire.Response, error) {
		if qs, ok := req.Query.([]interface{}); ok {
			res := make([]interface{}, len(qs))
			for i, q := range qs {
				res[i] = strings.Replace(q.(string), "q", "a", 1)
			}
			return &wire.Response{Result: res}, nil
		}
		return &wire.Response{Result: strings.Replace(req.Query.(string), "q", "a", 1)}, nil
	}}
}

// waitPend blocks until n queries are pending on the layer batch.
func waitPend(t *testing.T, l *Layer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		l.batch.Lock()
		got := len(l.batch.pend)
		l.batch.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("want %d pending queries got %d", n, got)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendQueryDirect(t *testing.T) {
	p := echoParent()
	l := New("kid", p)
	res, err := l.SendQuery("q1")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res != "a1" {
		t.Errorf("want a1 got %v", res)
	}
	if p.count() != 1 {
		t.Errorf("want one round trip got %d", p.count())
	}
}

func TestSendQueryWithoutParent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("want panic on send without parent")
		}
	}()
	New("kid", nil).SendQuery("q")
}

func TestBatchCombines(t *testing.T) {
	p := echoParent()
	l := New("kid", p)
	var res [3]interface{}
	var errs [3]error
	var wg sync.WaitGroup
	err := l.Batch(func() error {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res[i], errs[i] = l.SendQuery(fmt.Sprintf("q%d", i))
			}(i)
		}
		waitPend(t, l, 3)
		return nil
	})
	wg.Wait()
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if p.count() != 1 {
		t.Errorf("want one combined round trip got %d", p.count())
	}
	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Fatalf("query %d failed: %v", i, errs[i])
		}
		if want := fmt.Sprintf("a%d", i); res[i] != want {
			t.Errorf("query %d: want %s got %v", i, want, res[i])
		}
	}
}

func TestBatchNested(t *testing.T) {
	p := echoParent()
	l := New("kid", p)
	var wg sync.WaitGroup
	err := l.Batch(func() error {
		return l.Batch(func() error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.SendQuery("q1")
			}()
			waitPend(t, l, 1)
			return nil
		})
	})
	wg.Wait()
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if p.count() != 1 {
		t.Errorf("want one round trip after the outer batch got %d", p.count())
	}
}

func TestBatchInnerDoesNotFlush(t *testing.T) {
	p := echoParent()
	l := New("kid", p)
	var wg sync.WaitGroup
	err := l.Batch(func() error {
		err := l.Batch(func() error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.SendQuery("q1")
			}()
			waitPend(t, l, 1)
			return nil
		})
		if err != nil {
			return err
		}
		if got := p.count(); got != 0 {
			t.Errorf("inner batch flushed %d round trips", got)
		}
		return nil
	})
	wg.Wait()
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
}

func TestBatchFailureRejectsAll(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeParent{serve: func(*wire.Request) (*wire.Response, error) { return nil, boom }}
	l := New("kid", p)
	var errs [2]error
	var wg sync.WaitGroup
	err := l.Batch(func() error {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = l.SendQuery(fmt.Sprintf("q%d", i))
			}(i)
		}
		waitPend(t, l, 2)
		return nil
	})
	wg.Wait()
	if !errors.Is(err, boom) {
		t.Fatalf("want flush error got %v", err)
	}
	for i, qerr := range errs {
		if !errors.Is(qerr, boom) {
			t.Errorf("query %d: want the combined error got %v", i, qerr)
		}
	}
}

func TestBatchBadShape(t *testing.T) {
	p := &fakeParent{serve: func(*wire.Request) (*wire.Response, error) {
		return &wire.Response{Result: "scalar"}, nil
	}}
	l := New("kid", p)
	var qerr error
	var wg sync.WaitGroup
	err := l.Batch(func() error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, qerr = l.SendQuery("q1")
		}()
		waitPend(t, l, 1)
		return nil
	})
	wg.Wait()
	if err == nil || qerr == nil {
		t.Fatalf("want shape error got %v and %v", err, qerr)
	}
	if !strings.Contains(err.Error(), "combined call") {
		t.Errorf("want combined call error got %v", err)
	}
}

func TestBatchFnError(t *testing.T) {
	p := echoParent()
	l := New("kid", p)
	boom := errors.New("boom")
	err := l.Batch(func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want fn error got %v", err)
	}
	if p.count() != 0 {
		t.Errorf("empty batch must not dispatch, got %d calls", p.count())
	}
}
