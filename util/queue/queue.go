package queue

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// Queue is an unbounded FIFO between producers and a single consumer callback.
// Unlike a channel it never blocks the producer: elements are buffered in a
// variable-size deque between the input and output channels
type (
	Queue[T any] struct {
		d       *deque.Deque[T]
		inCh    chan inElem[T]
		outCh   chan T
		consume func(e T)
		inMutex sync.RWMutex
		closing bool
		len     atomic.Int32
	}

	inElem[T any] struct {
		elem     T
		priority bool
	}
)

func New[T any](consume func(e T)) *Queue[T] {
	ret := &Queue[T]{
		d:       new(deque.Deque[T]),
		inCh:    make(chan inElem[T]),
		outCh:   make(chan T),
		consume: consume,
	}
	go ret.inputLoop()
	go ret.consumeLoop()
	return ret
}

// Close must be called to stop the two loop goroutines. Elements still
// buffered are dropped
func (q *Queue[T]) Close() {
	q.inMutex.Lock()
	defer q.inMutex.Unlock()

	if !q.closing {
		q.closing = true
		close(q.inCh)
	}
}

// Push places element into the queue, optionally to the front
func (q *Queue[T]) Push(e T, priority ...bool) {
	q.inMutex.RLock()
	defer q.inMutex.RUnlock()

	if q.closing {
		// ignore when closing
		return
	}
	q.inCh <- inElem[T]{
		elem:     e,
		priority: len(priority) > 0 && priority[0],
	}
}

func (q *Queue[T]) Len() int {
	return int(q.len.Load())
}

func (q *Queue[T]) pushToBuffer(e inElem[T]) {
	if e.priority {
		q.d.PushFront(e.elem)
	} else {
		q.d.PushBack(e.elem)
	}
}

func (q *Queue[T]) inputLoop() {
	defer close(q.outCh)

	for {
		if q.d.Len() == 0 {
			// buffer is empty, wait for the next incoming element
			e, ok := <-q.inCh
			if !ok {
				return
			}
			q.pushToBuffer(e)
		} else {
			// buffer is not empty: block until either a new element arrives
			// or the consumer takes the front one
			select {
			case e, ok := <-q.inCh:
				if !ok {
					return
				}
				q.pushToBuffer(e)
			case q.outCh <- q.d.Front():
				q.d.PopFront()
			}
		}
		q.len.Store(int32(q.d.Len()))
	}
}

func (q *Queue[T]) consumeLoop() {
	for e := range q.outCh {
		q.consume(e)
	}
}
