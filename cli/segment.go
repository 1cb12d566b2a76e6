package cli

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fcnseg/fcnseg/config"
	"github.com/fcnseg/fcnseg/rimage"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// SegmentAction segments every image given as argument and writes "<name>_label.png" next to
// the others in the output directory.
func SegmentAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("no image given")
	}
	return withPipeline(c, func(cfg *config.Config, pipeline *segmentation.Pipeline) error {
		var mask *rimage.PixelBuffer
		if path := c.String(maskFlag); path != "" {
			maskImg, err := decodeImageFile(path)
			if err != nil {
				return err
			}
			mask = rimage.NewMaskFromImage(maskImg)
		}

		var skipped int
		for _, path := range c.Args().Slice() {
			img, err := decodeImageFile(path)
			if err != nil {
				return err
			}
			seg, err := pipeline.Segment(c.Context, rimage.NewBGRFromImage(img), mask)
			if segmentation.IsFrameSkipped(err) {
				warningf(c.App.ErrWriter, "skipping %s: %v", path, err)
				skipped++
				continue
			}
			if err != nil {
				return err
			}
			base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			out := filepath.Join(c.String(outDirFlag), base+"_label.png")
			if err := writeLabelImage(out, seg, cfg, c.Uint(maxSideFlag)); err != nil {
				return err
			}
			printf(c.App.Writer, "%s -> %s: %s", path, out, classSummary(seg, cfg))
		}
		if skipped == c.NArg() {
			return errors.New("no image could be segmented")
		}
		return nil
	})
}
