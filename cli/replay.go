package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fcnseg/fcnseg/config"
	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/msgsync"
	"github.com/fcnseg/fcnseg/rimage"
	"github.com/fcnseg/fcnseg/ros"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// ReplayAction segments the images of a recorded bag, pairing them with recorded masks the same
// way the node does when use_mask is set.
func ReplayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one bag file")
	}
	return withPipeline(c, func(cfg *config.Config, pipeline *segmentation.Pipeline) error {
		bag, err := ros.ReadBag(c.Args().First())
		if err != nil {
			return err
		}
		images, err := ros.ImagesForTopic(bag, c.String(imageTopicFlag))
		if err != nil {
			return err
		}
		var masks []*ros.Image
		if cfg.UseMask {
			topic := c.String(maskTopicFlag)
			if topic == "" {
				return errors.Errorf("use_mask is set, --%s is required", maskTopicFlag)
			}
			if masks, err = ros.ImagesForTopic(bag, topic); err != nil {
				return err
			}
		}

		frames, unmatched, err := pairFrames(cfg, images, masks, newLogger(c).Sublogger("sync"))
		if err != nil {
			return err
		}
		outDir := c.String(outDirFlag)
		stats, err := replayFrames(c.Context, pipeline, frames, func(f replayFrame, seg *segmentation.Segmentation) error {
			line := fmt.Sprintf("%d\t%s\t%s", f.image.Header.Seq, f.image.Header.Stamp.UTC().Format("15:04:05.000"),
				classSummary(seg, cfg))
			if outDir != "" {
				out := filepath.Join(outDir, fmt.Sprintf("%06d_label.png", f.image.Header.Seq))
				if err := writeLabelImage(out, seg, cfg, c.Uint(maxSideFlag)); err != nil {
					return err
				}
				line += "\t" + out
			}
			printf(c.App.Writer, "%s", line)
			return nil
		}, func(f replayFrame, err error) {
			warningf(c.App.ErrWriter, "skipping frame %d: %v", f.image.Header.Seq, err)
		})
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%d frames segmented, %d skipped, %d unmatched", stats.segmented, stats.skipped, unmatched)
		return nil
	})
}

type replayFrame struct {
	image *ros.Image
	mask  *ros.Image
}

type replayStats struct {
	segmented int
	skipped   int
}

// pairFrames feeds the recorded messages in stamp order through the synchronizer configured for
// the node and returns the pairs it emits, along with the number of unmatched messages.
func pairFrames(cfg *config.Config, images, masks []*ros.Image, logger logging.Logger) ([]replayFrame, uint64, error) {
	if !cfg.UseMask {
		frames := make([]replayFrame, 0, len(images))
		for _, img := range images {
			frames = append(frames, replayFrame{image: img})
		}
		return frames, 0, nil
	}

	var frames []replayFrame
	onPair := func(msgs []*ros.Image) {
		frames = append(frames, replayFrame{image: msgs[0], mask: msgs[1]})
	}
	var synchronizer msgsync.Synchronizer
	if cfg.ApproximateSync {
		synchronizer = msgsync.NewApproximateTime(2, cfg.QueueSize, cfg.SlopDuration(), onPair, logger)
	} else {
		synchronizer = msgsync.NewExactTime(2, cfg.QueueSize, onPair, logger)
	}
	merged, sources := ros.MergeByStamp(images, masks)
	for i, msg := range merged {
		if err := synchronizer.Add(sources[i], msg); err != nil {
			return nil, 0, err
		}
	}
	return frames, synchronizer.Dropped(), nil
}

// replayFrames segments frames in order. Frames that cannot be segmented are reported to skip;
// any other error stops the replay.
func replayFrames(
	ctx context.Context,
	pipeline *segmentation.Pipeline,
	frames []replayFrame,
	emit func(replayFrame, *segmentation.Segmentation) error,
	skip func(replayFrame, error),
) (replayStats, error) {
	var stats replayStats
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		seg, err := segmentFrame(ctx, pipeline, f)
		if segmentation.IsFrameSkipped(err) {
			stats.skipped++
			skip(f, err)
			continue
		}
		if err != nil {
			return stats, err
		}
		if err := emit(f, seg); err != nil {
			return stats, err
		}
		stats.segmented++
	}
	return stats, nil
}

func segmentFrame(ctx context.Context, pipeline *segmentation.Pipeline, f replayFrame) (*segmentation.Segmentation, error) {
	img, err := rimage.FromImageMessage(f.image)
	if err != nil {
		return nil, segmentation.NewFrameSkippedError("%v", err)
	}
	var mask *rimage.PixelBuffer
	if f.mask != nil {
		if mask, err = rimage.MaskFromImageMessage(f.mask); err != nil {
			return nil, segmentation.NewFrameSkippedError("%v", err)
		}
	}
	return pipeline.Segment(ctx, img, mask)
}
