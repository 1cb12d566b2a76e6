// Package msgsync pairs messages arriving on several streams by their header stamps.
package msgsync

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/ros"
)

// Callback receives one message per stream, in stream order. It is called while the
// synchronizer is locked and must not block.
type Callback func(msgs []*ros.Image)

// Synchronizer collects messages per stream and calls its callback with every matched set.
type Synchronizer interface {
	// Add offers msg from stream, an index in [0, streams).
	Add(stream int, msg *ros.Image) error
	// Dropped returns how many messages were evicted without ever being matched.
	Dropped() uint64
}

// NewExactTime returns a synchronizer that only matches messages whose stamps are identical.
func NewExactTime(streams, queueSize int, cb Callback, logger logging.Logger) Synchronizer {
	return newSynchronizer(streams, queueSize, 0, true, cb, logger)
}

// NewApproximateTime returns a synchronizer that matches messages whose stamps all lie within
// slop of each other, preferring the closest candidates.
func NewApproximateTime(streams, queueSize int, slop time.Duration, cb Callback, logger logging.Logger) Synchronizer {
	return newSynchronizer(streams, queueSize, slop, false, cb, logger)
}

type synchronizer struct {
	mu        sync.Mutex
	queues    []map[int64]*ros.Image
	queueSize int
	slop      time.Duration
	exact     bool
	cb        Callback
	dropped   uint64
	logger    logging.Logger
}

func newSynchronizer(streams, queueSize int, slop time.Duration, exact bool, cb Callback, logger logging.Logger) *synchronizer {
	if queueSize < 1 {
		queueSize = 1
	}
	queues := make([]map[int64]*ros.Image, streams)
	for i := range queues {
		queues[i] = map[int64]*ros.Image{}
	}
	return &synchronizer{queues: queues, queueSize: queueSize, slop: slop, exact: exact, cb: cb, logger: logger}
}

func (s *synchronizer) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *synchronizer) Add(stream int, msg *ros.Image) error {
	if stream < 0 || stream >= len(s.queues) {
		return errors.Errorf("stream %d out of range, have %d streams", stream, len(s.queues))
	}
	if msg == nil {
		return errors.New("cannot synchronize a nil message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := msg.Header.Stamp.UnixNano()
	queue := s.queues[stream]
	queue[stamp] = msg
	for len(queue) > s.queueSize {
		oldest := oldestStamp(queue)
		delete(queue, oldest)
		s.dropped++
		s.logger.Debugw("synchronization miss, dropped unmatched message", "stream", stream, "stamp", time.Unix(0, oldest))
	}

	if s.exact {
		s.matchExact()
		return nil
	}
	s.matchApproximate(stream, stamp)
	return nil
}

// matchExact emits every stamp present in all queues, oldest first.
func (s *synchronizer) matchExact() {
	var common []int64
	for stamp := range s.queues[0] {
		inAll := true
		for _, q := range s.queues[1:] {
			if _, ok := q[stamp]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, stamp)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })
	for _, stamp := range common {
		msgs := make([]*ros.Image, len(s.queues))
		for i, q := range s.queues {
			msgs[i] = q[stamp]
			delete(q, stamp)
		}
		s.cb(msgs)
	}
}

type candidate struct {
	stamp int64
	delta time.Duration
}

// matchApproximate looks for a set containing the new message in which every stamp is within
// slop of every other, trying the candidates closest to the new stamp first.
func (s *synchronizer) matchApproximate(stream int, stamp int64) {
	candidates := make([][]candidate, len(s.queues))
	for i, q := range s.queues {
		if i == stream {
			candidates[i] = []candidate{{stamp: stamp}}
			continue
		}
		for other := range q {
			if delta := absDuration(time.Duration(other - stamp)); delta <= s.slop {
				candidates[i] = append(candidates[i], candidate{stamp: other, delta: delta})
			}
		}
		if len(candidates[i]) == 0 {
			return
		}
		sort.Slice(candidates[i], func(a, b int) bool {
			if candidates[i][a].delta == candidates[i][b].delta {
				return candidates[i][a].stamp < candidates[i][b].stamp
			}
			return candidates[i][a].delta < candidates[i][b].delta
		})
	}

	chosen := make([]int64, len(s.queues))
	if !s.search(candidates, chosen, 0) {
		return
	}
	msgs := make([]*ros.Image, len(s.queues))
	for i, q := range s.queues {
		msgs[i] = q[chosen[i]]
		delete(q, chosen[i])
	}
	s.cb(msgs)
}

// search fills chosen depth first, in candidate order, until the spread of the chosen stamps is
// within slop.
func (s *synchronizer) search(candidates [][]candidate, chosen []int64, depth int) bool {
	if depth == len(candidates) {
		minStamp, maxStamp := chosen[0], chosen[0]
		for _, c := range chosen[1:] {
			if c < minStamp {
				minStamp = c
			}
			if c > maxStamp {
				maxStamp = c
			}
		}
		return time.Duration(maxStamp-minStamp) <= s.slop
	}
	for _, c := range candidates[depth] {
		chosen[depth] = c.stamp
		if s.search(candidates, chosen, depth+1) {
			return true
		}
	}
	return false
}

func oldestStamp(q map[int64]*ros.Image) int64 {
	var oldest int64
	first := true
	for stamp := range q {
		if first || stamp < oldest {
			oldest, first = stamp, false
		}
	}
	return oldest
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
