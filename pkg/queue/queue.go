// Package queue implements the hand-off between a target's producers and its
// single consumer.
//
// Events are admitted in a total order: every successful Enqueue assigns the
// next value of a per-queue sequence counter while holding the queue mutex, and
// Dequeue hands events out in exactly that order. Two producers racing to log
// may therefore be admitted in an order that differs from the wall-clock order
// of their timestamps. That is intended; the file reflects admission order.
package queue

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// Overflow decides what Enqueue does when a bounded queue is full.
type Overflow uint8

const (
	// OverflowGrow ignores the capacity bound and keeps growing. This is the
	// default: losing log events is worse than using memory.
	OverflowGrow Overflow = iota
	// OverflowBlock makes producers wait until the consumer frees space.
	OverflowBlock
	// OverflowDrop rejects the event with ErrFull and counts it as dropped.
	OverflowDrop
)

var (
	// ErrClosed is returned by Enqueue after SignalShutdown.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned when a bounded queue rejects an event.
	ErrFull = errors.New("queue full")
)

const minRing = 64

// Queue is a FIFO of events with a single consumer and any number of producers.
// Control events are never subject to the capacity bound, so a paused consumer
// can always be resumed even when producers are blocked on a full queue.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	ring  []types.Event
	head  int
	count int

	capacity int
	overflow Overflow

	seq      uint64
	dropped  uint64
	closed   bool
	draining bool
}

// New creates a queue. A capacity of zero means unbounded.
func New(capacity int, overflow Overflow) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	size := minRing
	if capacity > 0 && capacity < size {
		size = capacity
	}
	q := &Queue{
		ring:     make([]types.Event, size),
		capacity: capacity,
		overflow: overflow,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue admits ev and returns its sequence number. With OverflowBlock it
// waits for space; it returns ErrClosed if the queue is shut down meanwhile.
func (q *Queue) Enqueue(ev types.Event) (uint64, error) {
	return q.enqueue(ev, true)
}

// TryEnqueue is Enqueue without waiting: a full OverflowBlock queue returns ErrFull.
func (q *Queue) TryEnqueue(ev types.Event) (uint64, error) {
	return q.enqueue(ev, false)
}

func (q *Queue) enqueue(ev types.Event, wait bool) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return 0, ErrClosed
		}
		if q.capacity == 0 || q.count < q.capacity || ev.IsControl() {
			break
		}
		switch q.overflow {
		case OverflowDrop:
			q.dropped++
			return 0, ErrFull
		case OverflowBlock:
			if !wait {
				return 0, ErrFull
			}
			q.notFull.Wait()
			continue
		}
		break
	}

	q.seq++
	ev.Seq = q.seq
	q.push(ev)
	q.notEmpty.Broadcast()
	return ev.Seq, nil
}

// Dequeue blocks until an event is available. It returns false once the queue
// has been shut down and nothing is left to hand out.
func (q *Queue) Dequeue() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 {
		if q.closed {
			return types.Event{}, false
		}
		q.notEmpty.Wait()
	}
	ev := q.removeAt(0)
	q.notFull.Broadcast()
	return ev, true
}

// TryDequeue returns the next event without waiting.
func (q *Queue) TryDequeue() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return types.Event{}, false
	}
	ev := q.removeAt(0)
	q.notFull.Broadcast()
	return ev, true
}

// WaitTake blocks until an event matching match is queued, removes the first
// such event and returns it. Events in front of it keep their positions. It
// returns false if the queue is shut down and holds no matching event.
func (q *Queue) WaitTake(match func(*types.Event) bool) (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if i := q.index(match); i >= 0 {
			ev := q.removeAt(i)
			q.notFull.Broadcast()
			return ev, true
		}
		if q.closed {
			return types.Event{}, false
		}
		q.notEmpty.Wait()
	}
}

// TakeFirst is WaitTake without waiting.
func (q *Queue) TakeFirst(match func(*types.Event) bool) (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.index(match); i >= 0 {
		ev := q.removeAt(i)
		q.notFull.Broadcast()
		return ev, true
	}
	return types.Event{}, false
}

// SignalShutdown closes the queue to producers. With drain the consumer gets
// every event already admitted followed by a KindShutdown event. Without drain
// the pending events are discarded and the consumer gets a KindCancel event
// next. A cancel may follow an earlier drain request; the reverse is ignored.
// It returns the number of data events discarded.
func (q *Queue) SignalShutdown(drain bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed && (drain || !q.draining) {
		return 0
	}

	discarded := 0
	if drain {
		q.draining = true
		q.seq++
		q.push(types.Event{Seq: q.seq, Kind: types.KindShutdown})
	} else {
		q.draining = false
		for q.count > 0 {
			ev := q.removeAt(0)
			switch {
			case ev.Kind == types.KindFlush && ev.Done != nil:
				close(ev.Done)
			case ev.IsData():
				discarded++
			}
		}
		q.seq++
		q.push(types.Event{Seq: q.seq, Kind: types.KindCancel})
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return discarded
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the configured capacity, zero when unbounded.
func (q *Queue) Cap() int {
	return q.capacity
}

// Closed reports whether SignalShutdown has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Draining reports whether the queue was closed with drain semantics.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.draining
}

// Dropped returns the number of events rejected by OverflowDrop.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Seq returns the last assigned sequence number.
func (q *Queue) Seq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// ring helpers; callers hold q.mu

func (q *Queue) push(ev types.Event) {
	if q.count == len(q.ring) {
		q.grow()
	}
	q.ring[(q.head+q.count)%len(q.ring)] = ev
	q.count++
}

func (q *Queue) grow() {
	next := make([]types.Event, len(q.ring)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = next
	q.head = 0
}

func (q *Queue) index(match func(*types.Event) bool) int {
	for i := 0; i < q.count; i++ {
		if match(&q.ring[(q.head+i)%len(q.ring)]) {
			return i
		}
	}
	return -1
}

func (q *Queue) removeAt(i int) types.Event {
	n := len(q.ring)
	pos := (q.head + i) % n
	ev := q.ring[pos]
	if i == 0 {
		q.ring[pos] = types.Event{}
		q.head = (q.head + 1) % n
		q.count--
		return ev
	}
	for j := i; j < q.count-1; j++ {
		q.ring[(q.head+j)%n] = q.ring[(q.head+j+1)%n]
	}
	q.ring[(q.head+q.count-1)%n] = types.Event{}
	q.count--
	return ev
}
