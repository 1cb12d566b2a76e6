package node

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	framesProcessed = stats.Int64("fcnseg/frames_processed", "frames segmented and published", stats.UnitDimensionless)
	framesSkipped   = stats.Int64("fcnseg/frames_skipped", "frames dropped because they could not be segmented", stats.UnitDimensionless)
	segmentLatency  = stats.Float64("fcnseg/segment_latency", "time spent segmenting one frame", stats.UnitMilliseconds)

	keyNode = tag.MustNewKey("node")

	// Views aggregates the node measures. Register them with view.Register to export them.
	Views = []*view.View{
		{
			Name:        "fcnseg/frames_processed",
			Measure:     framesProcessed,
			Description: framesProcessed.Description(),
			TagKeys:     []tag.Key{keyNode},
			Aggregation: view.Count(),
		},
		{
			Name:        "fcnseg/frames_skipped",
			Measure:     framesSkipped,
			Description: framesSkipped.Description(),
			TagKeys:     []tag.Key{keyNode},
			Aggregation: view.Count(),
		},
		{
			Name:        "fcnseg/segment_latency",
			Measure:     segmentLatency,
			Description: segmentLatency.Description(),
			TagKeys:     []tag.Key{keyNode},
			Aggregation: view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500),
		},
	}
)

func (n *Node) recordProcessed(ctx context.Context, took time.Duration) {
	n.processed.Inc()
	n.lastLatency.Store(took)
	//nolint:errcheck
	stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(keyNode, n.cfg.Name)},
		framesProcessed.M(1), segmentLatency.M(float64(took)/float64(time.Millisecond)))
}

func (n *Node) recordSkipped(ctx context.Context) {
	n.skipped.Inc()
	//nolint:errcheck
	stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(keyNode, n.cfg.Name)}, framesSkipped.M(1))
}
