// Package transport is an in-process publish/subscribe bus for image messages. Publishers can
// watch how many subscribers a topic has, which lets a node only consume its inputs while
// somebody consumes its outputs.
package transport

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/ros"
	"github.com/fcnseg/fcnseg/utils"
)

// Handler receives the messages of a subscription, one at a time and in publish order.
type Handler func(ctx context.Context, msg *ros.Image)

// ListenerFunc is called with the new subscriber count of a topic whenever it changes.
type ListenerFunc func(topic string, count int)

// Bus routes published messages to the subscribers of their topic.
type Bus struct {
	mu        sync.Mutex
	topics    map[string]*topicState
	listeners map[string]map[uuid.UUID]ListenerFunc
	logger    logging.Logger
}

type topicState struct {
	subs map[uuid.UUID]*Subscription
}

// NewBus returns an empty bus.
func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		topics:    map[string]*topicState{},
		listeners: map[string]map[uuid.UUID]ListenerFunc{},
		logger:    logger,
	}
}

// Subscription is a handle on a subscribed handler.
type Subscription struct {
	id      uuid.UUID
	topic   string
	bus     *Bus
	queue   *Queue[*ros.Image]
	workers utils.StoppableWorkers
	once    sync.Once
}

// ID returns the unique id of the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Dropped returns how many messages were discarded because the handler fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.queue.Dropped()
}

// Unsubscribe detaches the handler and waits for any in-progress call to return. It is safe to
// call more than once, but must not be called from within the subscription's own handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		s.workers.Stop()
	})
}

// Subscribe attaches handler to topic. At most queueSize undelivered messages are buffered;
// older ones are dropped first.
func (b *Bus) Subscribe(topic string, queueSize int, handler Handler) *Subscription {
	sub := &Subscription{
		id:    uuid.New(),
		topic: topic,
		bus:   b,
		queue: NewQueue[*ros.Image](queueSize),
	}
	sub.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		for {
			msg, ok := sub.queue.Pop(ctx)
			if !ok {
				return
			}
			handler(ctx, msg)
		}
	})

	b.mu.Lock()
	ts, ok := b.topics[topic]
	if !ok {
		ts = &topicState{subs: map[uuid.UUID]*Subscription{}}
		b.topics[topic] = ts
	}
	ts.subs[sub.id] = sub
	count := len(ts.subs)
	notify := b.listenersLocked(topic)
	b.mu.Unlock()

	b.logger.Debugw("subscribed", "topic", topic, "id", sub.id, "subscribers", count)
	for _, fn := range notify {
		fn(topic, count)
	}
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	ts, ok := b.topics[sub.topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(ts.subs, sub.id)
	count := len(ts.subs)
	if count == 0 {
		delete(b.topics, sub.topic)
	}
	notify := b.listenersLocked(sub.topic)
	b.mu.Unlock()

	b.logger.Debugw("unsubscribed", "topic", sub.topic, "id", sub.id, "subscribers", count)
	for _, fn := range notify {
		fn(sub.topic, count)
	}
}

// Publish hands msg to every subscriber of topic without blocking. It returns the number of
// subscribers reached.
func (b *Bus) Publish(topic string, msg *ros.Image) int {
	b.mu.Lock()
	ts, ok := b.topics[topic]
	var subs []*Subscription
	if ok {
		subs = make([]*Subscription, 0, len(ts.subs))
		for _, sub := range ts.subs {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if _, evicted := sub.queue.Push(msg); evicted {
			b.logger.Debugw("subscriber queue full, dropped oldest message", "topic", topic, "id", sub.id)
		}
	}
	return len(subs)
}

// NumSubscribers returns how many subscribers topic has.
func (b *Bus) NumSubscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts, ok := b.topics[topic]; ok {
		return len(ts.subs)
	}
	return 0
}

// Topics returns the topics that currently have subscribers, sorted.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.topics))
	for topic := range b.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// WatchSubscribers calls fn every time the subscriber count of topic changes. fn runs on the
// goroutine that subscribed or unsubscribed and must not block. The returned function stops
// the notifications.
func (b *Bus) WatchSubscribers(topic string, fn ListenerFunc) func() {
	id := uuid.New()
	b.mu.Lock()
	if b.listeners[topic] == nil {
		b.listeners[topic] = map[uuid.UUID]ListenerFunc{}
	}
	b.listeners[topic][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[topic], id)
		if len(b.listeners[topic]) == 0 {
			delete(b.listeners, topic)
		}
	}
}

func (b *Bus) listenersLocked(topic string) []ListenerFunc {
	fns := make([]ListenerFunc, 0, len(b.listeners[topic]))
	for _, fn := range b.listeners[topic] {
		fns = append(fns, fn)
	}
	return fns
}
