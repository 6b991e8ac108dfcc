package liaison

import (
	"runtime"
	"sync"

	"github.com/mb0/xelf/cor"
)

// batch coalesces queries sent while a batched operation is active into combined round trips.
type batch struct {
	sync.Mutex
	depth    int
	flushing bool
	pend     []*pending
}

type pending struct {
	query interface{}
	ch    chan answer
}

type answer struct {
	val interface{}
	err error
}

// Batch runs fn as one batched operation. Queries sent against the layer while the batch is
// active are not dispatched immediately, they are enqueued and coalesced into combined calls
// to the parent once the batch depth reaches zero. Batches nest, only the outermost Batch
// flushes.
//
// Queries inside fn must run in their own goroutines since their results only arrive once the
// driver flushes. The flush driver yields once per pass to let racing callers enqueue, swaps
// the pending queue out atomically and issues one combined call per pass. Results resolve the
// waiting callers in positional order, a failed combined call rejects every waiter of that
// pass with the same error.
func (l *Layer) Batch(fn func() error) error {
	b := l.enterBatch()
	err := fn()
	ferr := l.leaveBatch(b)
	if err != nil {
		return err
	}
	return ferr
}

func (l *Layer) enterBatch() *batch {
	if l.batch == nil {
		l.batch = &batch{}
	}
	b := l.batch
	b.Lock()
	b.depth++
	b.Unlock()
	return b
}

func (l *Layer) leaveBatch(b *batch) error {
	b.Lock()
	b.depth--
	done := b.depth == 0
	if done {
		b.flushing = true
	}
	b.Unlock()
	if !done {
		return nil
	}
	return l.flush(b)
}

// enqueue appends the query to the pending batch or returns nil when no batch accepts it.
func (l *Layer) enqueue(q interface{}) *pending {
	b := l.batch
	if b == nil {
		return nil
	}
	b.Lock()
	defer b.Unlock()
	if b.depth == 0 && !b.flushing {
		return nil
	}
	p := &pending{query: q, ch: make(chan answer, 1)}
	b.pend = append(b.pend, p)
	return p
}

// flush drives the collect-then-flush-then-resolve loop until no queries are pending.
func (l *Layer) flush(b *batch) error {
	var first error
	for {
		l.yield()
		b.Lock()
		pend := b.pend
		b.pend = nil
		if len(pend) == 0 {
			b.flushing = false
			b.Unlock()
			return first
		}
		b.Unlock()
		queries := make([]interface{}, len(pend))
		for i, p := range pend {
			queries[i] = p.query
		}
		res, err := l.dispatch(queries)
		if err == nil {
			var list []interface{}
			var ok bool
			if list, ok = res.([]interface{}); !ok || len(list) != len(pend) {
				err = cor.Errorf("combined call returned %T for %d queries", res, len(pend))
			} else {
				for i, p := range pend {
					p.ch <- answer{val: list[i]}
				}
				continue
			}
		}
		if first == nil {
			first = err
		}
		for _, p := range pend {
			p.ch <- answer{err: err}
		}
	}
}

// yield is the scheduling point between collecting and flushing a batch pass. It exists to let
// other pending work enqueue into the same batch before it flushes.
func (l *Layer) yield() {
	if l.Yield != nil {
		l.Yield()
		return
	}
	runtime.Gosched()
}
