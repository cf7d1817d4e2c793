package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func text(s string) types.Event {
	return types.Event{Kind: types.KindPlainText, Payload: []byte(s)}
}

func TestQueueFIFO(t *testing.T) {
	q := New(0, OverflowGrow)
	for i := 0; i < 200; i++ {
		seq, err := q.Enqueue(text(string(rune('a' + i%26))))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", seq, i+1)
		}
	}
	if q.Len() != 200 {
		t.Fatalf("Len = %d, want 200", q.Len())
	}
	for i := 0; i < 200; i++ {
		ev, ok := q.Dequeue()
		if !ok {
			t.Fatal("Dequeue returned false")
		}
		if ev.Seq != uint64(i+1) {
			t.Fatalf("got seq %d at position %d", ev.Seq, i)
		}
		if want := string(rune('a' + i%26)); string(ev.Payload) != want {
			t.Fatalf("payload %q, want %q", ev.Payload, want)
		}
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 1000
	q := New(0, OverflowGrow)

	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				ev := text("x")
				ev.Payload = []byte{byte(p), byte(i >> 8), byte(i)}
				if _, err := q.Enqueue(ev); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("producer: %v", err)
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	var prevSeq uint64
	for n := 0; n < producers*perProducer; n++ {
		ev, ok := q.TryDequeue()
		if !ok {
			t.Fatalf("queue ran dry after %d events", n)
		}
		if ev.Seq != prevSeq+1 {
			t.Fatalf("seq gap: %d after %d", ev.Seq, prevSeq)
		}
		prevSeq = ev.Seq
		p := int(ev.Payload[0])
		i := int(ev.Payload[1])<<8 | int(ev.Payload[2])
		if i != last[p]+1 {
			t.Fatalf("producer %d: event %d after %d", p, i, last[p])
		}
		last[p] = i
	}
}

func TestQueueBlockOverflow(t *testing.T) {
	q := New(2, OverflowBlock)
	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(text("fill")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if _, err := q.TryEnqueue(text("try")); !errors.Is(err, ErrFull) {
		t.Fatalf("TryEnqueue on full queue: %v, want ErrFull", err)
	}

	admitted := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(text("blocked"))
		close(admitted)
	}()

	select {
	case <-admitted:
		t.Fatal("producer was not blocked by a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue failed")
	}
	select {
	case <-admitted:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after space was freed")
	}
}

func TestQueueBlockedProducerReleasedOnShutdown(t *testing.T) {
	q := New(1, OverflowBlock)
	if _, err := q.Enqueue(text("fill")); err != nil {
		t.Fatal(err)
	}
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(text("late"))
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	q.SignalShutdown(true)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked producer got %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked producer not released")
	}
}

func TestQueueDropOverflow(t *testing.T) {
	q := New(1, OverflowDrop)
	if _, err := q.Enqueue(text("a")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(text("b")); !errors.Is(err, ErrFull) {
			t.Fatalf("Enqueue: %v, want ErrFull", err)
		}
	}
	if q.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", q.Dropped())
	}
}

func TestQueueControlBypassesCapacity(t *testing.T) {
	q := New(1, OverflowDrop)
	if _, err := q.Enqueue(text("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(types.Event{Kind: types.KindResume}); err != nil {
		t.Fatalf("control event rejected: %v", err)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestQueueDrainShutdown(t *testing.T) {
	q := New(0, OverflowGrow)
	for _, s := range []string{"1", "2", "3"} {
		if _, err := q.Enqueue(text(s)); err != nil {
			t.Fatal(err)
		}
	}
	if n := q.SignalShutdown(true); n != 0 {
		t.Errorf("drain discarded %d events", n)
	}
	if _, err := q.Enqueue(text("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Enqueue after shutdown: %v, want ErrClosed", err)
	}
	if !q.Draining() {
		t.Error("Draining = false after drain shutdown")
	}

	var got []string
	for {
		ev, ok := q.Dequeue()
		if !ok {
			break
		}
		if ev.Kind == types.KindShutdown {
			got = append(got, "<shutdown>")
			continue
		}
		got = append(got, string(ev.Payload))
	}
	want := []string{"1", "2", "3", "<shutdown>"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestQueueCancelShutdown(t *testing.T) {
	q := New(0, OverflowGrow)
	done := make(chan struct{})
	_, _ = q.Enqueue(text("1"))
	_, _ = q.Enqueue(types.Event{Kind: types.KindFlush, Done: done})
	_, _ = q.Enqueue(text("2"))

	if n := q.SignalShutdown(false); n != 2 {
		t.Errorf("discarded = %d, want 2", n)
	}
	select {
	case <-done:
	default:
		t.Error("pending flush waiter was not released by cancel")
	}

	ev, ok := q.Dequeue()
	if !ok || ev.Kind != types.KindCancel {
		t.Fatalf("got %v/%v, want cancel event", ev.Kind, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue returned an event after cancel")
	}
}

func TestQueueCancelAfterDrain(t *testing.T) {
	q := New(0, OverflowGrow)
	_, _ = q.Enqueue(text("1"))
	q.SignalShutdown(true)
	if n := q.SignalShutdown(false); n != 1 {
		t.Fatalf("escalated cancel discarded %d, want 1", n)
	}
	ev, ok := q.Dequeue()
	if !ok || ev.Kind != types.KindCancel {
		t.Fatalf("got %v, want cancel", ev.Kind)
	}
	// a drain request after cancel changes nothing
	q.SignalShutdown(true)
	if q.Len() != 0 {
		t.Fatalf("Len = %d after cancel", q.Len())
	}
}

func TestQueueWaitTakeKeepsOrder(t *testing.T) {
	q := New(0, OverflowGrow)
	_, _ = q.Enqueue(text("a"))
	_, _ = q.Enqueue(types.Event{Kind: types.KindPriority, Priority: types.PriorityHighest})
	_, _ = q.Enqueue(text("b"))

	isResume := func(ev *types.Event) bool { return ev.Kind == types.KindResume }

	if _, ok := q.TakeFirst(isResume); ok {
		t.Fatal("TakeFirst found a resume that was never queued")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var taken types.Event
	go func() {
		defer wg.Done()
		taken, _ = q.WaitTake(isResume)
	}()
	time.Sleep(20 * time.Millisecond)
	_, _ = q.Enqueue(types.Event{Kind: types.KindResume})
	_, _ = q.Enqueue(text("c"))
	wg.Wait()

	if taken.Kind != types.KindResume {
		t.Fatalf("WaitTake returned %v", taken.Kind)
	}
	var kinds []types.EventKind
	var payloads []string
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind)
		payloads = append(payloads, string(ev.Payload))
	}
	if len(kinds) != 4 || kinds[1] != types.KindPriority {
		t.Fatalf("remaining kinds %v", kinds)
	}
	if payloads[0] != "a" || payloads[2] != "b" || payloads[3] != "c" {
		t.Fatalf("remaining payloads %v", payloads)
	}
}

func TestQueueWaitTakeReturnsOnShutdown(t *testing.T) {
	q := New(0, OverflowGrow)
	res := make(chan bool, 1)
	go func() {
		ev, ok := q.WaitTake(func(ev *types.Event) bool { return ev.IsTerminal() })
		res <- ok && ev.Kind == types.KindCancel
	}()
	time.Sleep(20 * time.Millisecond)
	q.SignalShutdown(false)
	select {
	case ok := <-res:
		if !ok {
			t.Fatal("WaitTake did not return the cancel event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitTake still blocked after shutdown")
	}
}

func TestQueueRingWrapRemoval(t *testing.T) {
	q := New(0, OverflowGrow)
	// move the head forward so the ring wraps
	for i := 0; i < minRing-2; i++ {
		_, _ = q.Enqueue(text("skip"))
		_, _ = q.Dequeue()
	}
	for i := 0; i < 5; i++ {
		_, _ = q.Enqueue(text(string(rune('a' + i))))
	}
	ev, ok := q.TakeFirst(func(ev *types.Event) bool { return string(ev.Payload) == "c" })
	if !ok || string(ev.Payload) != "c" {
		t.Fatalf("TakeFirst got %q", ev.Payload)
	}
	var got string
	for {
		ev, ok := q.TryDequeue()
		if !ok {
			break
		}
		got += string(ev.Payload)
	}
	if got != "abde" {
		t.Fatalf("got %q, want %q", got, "abde")
	}
}
