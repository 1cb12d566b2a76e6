package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/ros"
)

func imageWithSeq(seq uint32) *ros.Image {
	return &ros.Image{Header: ros.Header{Seq: seq}}
}

func TestQueue(t *testing.T) {
	q := NewQueue[int](2)
	_, evicted := q.Push(1)
	test.That(t, evicted, test.ShouldBeFalse)
	q.Push(2)
	old, evicted := q.Push(3)
	test.That(t, evicted, test.ShouldBeTrue)
	test.That(t, old, test.ShouldEqual, 1)
	test.That(t, q.Len(), test.ShouldEqual, 2)
	test.That(t, q.Dropped(), test.ShouldEqual, 1)

	v, ok := q.Pop(context.Background())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 2)
	v, ok = q.Pop(context.Background())
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = q.Pop(ctx)
	test.That(t, ok, test.ShouldBeFalse)

	done := make(chan int)
	go func() {
		v, _ := q.Pop(context.Background())
		done <- v
	}()
	q.Push(4)
	test.That(t, <-done, test.ShouldEqual, 4)
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(logging.NewTestLogger(t))

	var mu sync.Mutex
	var got []uint32
	sub := bus.Subscribe("camera/image", 100, func(_ context.Context, msg *ros.Image) {
		mu.Lock()
		got = append(got, msg.Header.Seq)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	for i := uint32(0); i < 20; i++ {
		test.That(t, bus.Publish("camera/image", imageWithSeq(i)), test.ShouldEqual, 1)
	}
	test.That(t, bus.Publish("other", imageWithSeq(0)), test.ShouldEqual, 0)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, len(got), test.ShouldEqual, 20)
	})
	for i, seq := range got {
		test.That(t, seq, test.ShouldEqual, i)
	}
}

func TestBusDropsOldestWhenBehind(t *testing.T) {
	bus := NewBus(logging.NewTestLogger(t))
	release := make(chan struct{})
	received := make(chan uint32, 10)
	sub := bus.Subscribe("in", 1, func(_ context.Context, msg *ros.Image) {
		received <- msg.Header.Seq
		<-release
	})

	bus.Publish("in", imageWithSeq(1))
	test.That(t, <-received, test.ShouldEqual, 1)
	// handler is blocked: 2 is queued then replaced by 3.
	bus.Publish("in", imageWithSeq(2))
	bus.Publish("in", imageWithSeq(3))
	test.That(t, sub.Dropped(), test.ShouldEqual, 1)
	close(release)
	test.That(t, <-received, test.ShouldEqual, 3)
	sub.Unsubscribe()
}

func TestBusSubscriberWatch(t *testing.T) {
	bus := NewBus(logging.NewTestLogger(t))

	var counts []int
	stop := bus.WatchSubscribers("out", func(topic string, count int) {
		test.That(t, topic, test.ShouldEqual, "out")
		counts = append(counts, count)
	})

	noop := func(context.Context, *ros.Image) {}
	a := bus.Subscribe("out", 1, noop)
	b := bus.Subscribe("out", 1, noop)
	c := bus.Subscribe("elsewhere", 1, noop)
	test.That(t, bus.NumSubscribers("out"), test.ShouldEqual, 2)
	test.That(t, bus.Topics(), test.ShouldResemble, []string{"elsewhere", "out"})
	test.That(t, a.ID(), test.ShouldNotEqual, b.ID())

	a.Unsubscribe()
	a.Unsubscribe()
	b.Unsubscribe()
	test.That(t, bus.NumSubscribers("out"), test.ShouldEqual, 0)
	test.That(t, counts, test.ShouldResemble, []int{1, 2, 1, 0})

	stop()
	d := bus.Subscribe("out", 1, noop)
	test.That(t, counts, test.ShouldResemble, []int{1, 2, 1, 0})
	d.Unsubscribe()
	c.Unsubscribe()
	test.That(t, bus.Topics(), test.ShouldBeEmpty)
}
