// Package node runs a segmentation pipeline as a long-lived node on the transport bus. The model
// is loaded when the node is created; the inputs are only subscribed while somebody listens to
// the outputs.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/fcnseg/fcnseg/config"
	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/msgsync"
	"github.com/fcnseg/fcnseg/rimage"
	"github.com/fcnseg/fcnseg/ros"
	"github.com/fcnseg/fcnseg/services/segmentation"
	"github.com/fcnseg/fcnseg/transport"
	"github.com/fcnseg/fcnseg/utils"
)

// State is the subscription state of a node.
type State int32

const (
	// Inactive nodes hold no input subscriptions.
	Inactive State = iota
	// Active nodes are subscribed to their inputs.
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Topics are the topic names of a node.
type Topics struct {
	Input       string `json:"input"`
	InputMask   string `json:"input_mask"`
	Output      string `json:"output"`
	OutputProba string `json:"output_proba"`
}

// TopicsFor returns the topics of the node called name.
func TopicsFor(name string) Topics {
	return Topics{
		Input:       name + "/input",
		InputMask:   name + "/input/mask",
		Output:      name + "/output",
		OutputProba: name + "/output/proba_image",
	}
}

const (
	imageStream = 0
	maskStream  = 1
	// inputQueueSize is the per topic buffer of the input subscriptions. Only the newest message
	// is kept, like a subscriber with a queue size of one.
	inputQueueSize = 1
)

type frame struct {
	image *ros.Image
	mask  *ros.Image
}

// Node connects a segmentation pipeline to the bus.
type Node struct {
	cfg      *config.Config
	bus      *transport.Bus
	pipeline *segmentation.Pipeline
	topics   Topics
	logger   logging.Logger

	mu           sync.Mutex
	state        State
	subs         []*transport.Subscription
	synchronizer msgsync.Synchronizer
	watchers     []func()
	started      bool
	closed       bool
	failed       bool

	frames  *transport.Queue[frame]
	workers utils.StoppableWorkers
	fatal   chan error

	processed   atomic.Uint64
	skipped     atomic.Uint64
	unmatched   atomic.Uint64
	lastLatency atomic.Duration
	lastStamp   atomic.Time
	activations atomic.Uint64
}

// New loads the configured backend and returns an inactive node. Configuration problems and
// unavailable runtimes are reported here, before any frame arrives.
func New(ctx context.Context, cfg *config.Config, bus *transport.Bus, logger logging.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pipeline, err := segmentation.OpenPipeline(ctx, cfg.BackendConfig(), cfg.PipelineConfig(), logger.Sublogger("pipeline"))
	if err != nil {
		return nil, err
	}
	return NewWithPipeline(cfg, bus, pipeline, logger), nil
}

// NewWithPipeline returns an inactive node around an already built pipeline.
func NewWithPipeline(cfg *config.Config, bus *transport.Bus, pipeline *segmentation.Pipeline, logger logging.Logger) *Node {
	return &Node{
		cfg:      cfg,
		bus:      bus,
		pipeline: pipeline,
		topics:   TopicsFor(cfg.Name),
		logger:   logger,
		frames:   transport.NewQueue[frame](cfg.QueueSize),
		fatal:    make(chan error, 1),
	}
}

// Topics returns the node's topic names.
func (n *Node) Topics() Topics {
	return n.topics
}

// Config returns the node configuration.
func (n *Node) Config() *config.Config {
	return n.cfg
}

// Pipeline returns the node's pipeline, for one-shot segmentation outside the bus.
func (n *Node) Pipeline() *segmentation.Pipeline {
	return n.pipeline
}

// Start launches the worker and begins following the listener count of the outputs.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return errors.New("node is closed")
	}
	if n.started {
		n.mu.Unlock()
		return errors.New("node already started")
	}
	n.started = true
	n.workers = utils.NewStoppableWorkersWithContext(ctx, n.processFrames)
	for _, topic := range []string{n.topics.Output, n.topics.OutputProba} {
		n.watchers = append(n.watchers, n.bus.WatchSubscribers(topic, func(string, int) {
			n.updateActivation()
		}))
	}
	n.mu.Unlock()

	n.logger.Infow("node started", "name", n.cfg.Name, "backend", n.cfg.Backend,
		"use_mask", n.cfg.UseMask, "always_subscribe", n.cfg.AlwaysSubscribe)
	n.updateActivation()
	return nil
}

// Listeners returns the number of subscribers to the outputs.
func (n *Node) Listeners() int {
	return n.bus.NumSubscribers(n.topics.Output) + n.bus.NumSubscribers(n.topics.OutputProba)
}

func (n *Node) updateActivation() {
	if n.cfg.AlwaysSubscribe || n.Listeners() > 0 {
		n.Subscribe()
		return
	}
	n.Unsubscribe()
}

// Subscribe attaches the node to its input topics. It does nothing if the node is already
// active, closed or stopped by a fatal error.
func (n *Node) Subscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Active || n.closed || n.failed {
		return
	}

	if !n.cfg.UseMask {
		n.subs = []*transport.Subscription{
			n.bus.Subscribe(n.topics.Input, inputQueueSize, func(_ context.Context, msg *ros.Image) {
				n.enqueue(frame{image: msg})
			}),
		}
	} else {
		onPair := func(msgs []*ros.Image) {
			n.enqueue(frame{image: msgs[imageStream], mask: msgs[maskStream]})
		}
		if n.cfg.ApproximateSync {
			n.synchronizer = msgsync.NewApproximateTime(2, n.cfg.QueueSize, n.cfg.SlopDuration(), onPair, n.logger.Sublogger("sync"))
		} else {
			n.synchronizer = msgsync.NewExactTime(2, n.cfg.QueueSize, onPair, n.logger.Sublogger("sync"))
		}
		synchronizer := n.synchronizer
		add := func(stream int) transport.Handler {
			return func(_ context.Context, msg *ros.Image) {
				if err := synchronizer.Add(stream, msg); err != nil {
					n.logger.Warnw("cannot synchronize message", "error", err)
				}
			}
		}
		n.subs = []*transport.Subscription{
			n.bus.Subscribe(n.topics.Input, inputQueueSize, add(imageStream)),
			n.bus.Subscribe(n.topics.InputMask, inputQueueSize, add(maskStream)),
		}
	}
	n.state = Active
	n.activations.Inc()
	n.logger.Infow("subscribed to inputs", "topics", len(n.subs))
}

// Unsubscribe detaches the node from its inputs and releases the synchronizer. Frames already
// queued are still processed. It does nothing if the node is inactive.
func (n *Node) Unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsubscribeLocked()
}

func (n *Node) unsubscribeLocked() {
	if n.state == Inactive {
		return
	}
	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.subs = nil
	if n.synchronizer != nil {
		n.unmatched.Add(n.synchronizer.Dropped())
		n.synchronizer = nil
	}
	n.state = Inactive
	n.logger.Info("unsubscribed from inputs")
}

// State returns whether the node is subscribed to its inputs.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Fatal delivers the error that stopped the node, if any.
func (n *Node) Fatal() <-chan error {
	return n.fatal
}

func (n *Node) enqueue(f frame) {
	if old, evicted := n.frames.Push(f); evicted {
		n.recordSkipped(context.Background())
		n.logger.Warnw("frame queue full, dropped oldest frame", "seq", old.image.Header.Seq)
	}
}

func (n *Node) processFrames(ctx context.Context) {
	for {
		f, ok := n.frames.Pop(ctx)
		if !ok {
			return
		}
		if err := n.process(ctx, f); err != nil {
			n.logger.Errorw("fatal error while segmenting, stopping node", "error", err)
			n.mu.Lock()
			n.failed = true
			n.unsubscribeLocked()
			n.mu.Unlock()
			select {
			case n.fatal <- err:
			default:
			}
			return
		}
	}
}

// process segments one frame and publishes the result. Only fatal errors are returned.
func (n *Node) process(ctx context.Context, f frame) error {
	start := time.Now()
	img, err := rimage.FromImageMessage(f.image)
	if err != nil {
		n.skip(ctx, f, err)
		return nil
	}
	var mask *rimage.PixelBuffer
	if f.mask != nil {
		if mask, err = rimage.MaskFromImageMessage(f.mask); err != nil {
			n.skip(ctx, f, err)
			return nil
		}
	}

	seg, err := n.pipeline.Segment(ctx, img, mask)
	if err != nil {
		if segmentation.IsFrameSkipped(err) {
			n.skip(ctx, f, err)
			return nil
		}
		return err
	}

	labelMsg, err := rimage.LabelsToMessage(seg.Labels.Labels, seg.Labels.Height, seg.Labels.Width, f.image.Header)
	if err != nil {
		return err
	}
	probaMsg, err := rimage.ProbaToMessage(seg.Proba.Data, seg.Proba.Height, seg.Proba.Width, seg.Proba.Classes, f.image.Header)
	if err != nil {
		return err
	}
	n.bus.Publish(n.topics.Output, labelMsg)
	n.bus.Publish(n.topics.OutputProba, probaMsg)

	n.lastStamp.Store(f.image.Header.Stamp)
	n.recordProcessed(ctx, time.Since(start))
	return nil
}

func (n *Node) skip(ctx context.Context, f frame, err error) {
	n.recordSkipped(ctx)
	n.logger.Warnw("skipping frame", "seq", f.image.Header.Seq, "stamp", f.image.Header.Stamp, "error", err)
}

// Status is a snapshot of the node.
type Status struct {
	Name            string        `json:"name"`
	Backend         string        `json:"backend"`
	State           string        `json:"state"`
	Topics          Topics        `json:"topics"`
	Listeners       int           `json:"listeners"`
	Classes         []string      `json:"classes"`
	UseMask         bool          `json:"use_mask"`
	FramesProcessed uint64        `json:"frames_processed"`
	FramesSkipped   uint64        `json:"frames_skipped"`
	FramesUnmatched uint64        `json:"frames_unmatched"`
	QueuedFrames    int           `json:"queued_frames"`
	Activations     uint64        `json:"activations"`
	LastLatency     time.Duration `json:"last_latency_ns"`
	LastStamp       *time.Time    `json:"last_stamp,omitempty"`
}

// Status returns a snapshot of the node.
func (n *Node) Status() Status {
	n.mu.Lock()
	state := n.state
	unmatched := n.unmatched.Load()
	if n.synchronizer != nil {
		unmatched += n.synchronizer.Dropped()
	}
	n.mu.Unlock()

	status := Status{
		Name:            n.cfg.Name,
		Backend:         n.cfg.Backend,
		State:           state.String(),
		Topics:          n.topics,
		Listeners:       n.Listeners(),
		Classes:         n.cfg.TargetNames,
		UseMask:         n.cfg.UseMask,
		FramesProcessed: n.processed.Load(),
		FramesSkipped:   n.skipped.Load(),
		FramesUnmatched: unmatched,
		QueuedFrames:    n.frames.Len(),
		Activations:     n.activations.Load(),
		LastLatency:     n.lastLatency.Load(),
	}
	if stamp := n.lastStamp.Load(); !stamp.IsZero() {
		status.LastStamp = &stamp
	}
	return status
}

// Close unsubscribes, waits for the frame being processed to finish, and releases the model.
func (n *Node) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	for _, stop := range n.watchers {
		stop()
	}
	n.watchers = nil
	n.unsubscribeLocked()
	workers := n.workers
	n.mu.Unlock()

	if workers != nil {
		workers.Stop()
	}
	return n.pipeline.Close(ctx)
}
