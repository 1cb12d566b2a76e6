package cli

import (
	"context"
	"fmt"
	"image"
	// registers the decoders accepted for input files.
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/fcnseg/fcnseg/config"
	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/rimage"
	"github.com/fcnseg/fcnseg/services/segmentation"
)

// printf prints a line to w.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a warning line to w.
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("fcnseg")
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.WARN)
	}
	return logger
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(configFlag)
	if path == "" {
		return nil, errors.Errorf("no config file given, set one with --%s", configFlag)
	}
	return config.Read(c.Context, path, logger)
}

// withPipeline loads the configured model, runs fn with it and releases the model afterwards.
func withPipeline(c *cli.Context, fn func(*config.Config, *segmentation.Pipeline) error) (err error) {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	pipeline, err := segmentation.OpenPipeline(c.Context, cfg.BackendConfig(), cfg.PipelineConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, pipeline.Close(context.Background()))
	}()
	return fn(cfg, pipeline)
}

func decodeImageFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", path)
	}
	return img, nil
}

// writeLabelImage writes the colorized labels of seg as a PNG file.
func writeLabelImage(path string, seg *segmentation.Segmentation, cfg *config.Config, maxSide uint) (err error) {
	var out image.Image = rimage.ColorizeLabels(
		seg.Labels.Labels, seg.Labels.Height, seg.Labels.Width, len(cfg.TargetNames), cfg.BgLabel)
	if maxSide > 0 {
		out = rimage.ResizeToFit(out, maxSide, true)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, out)
}

// classSummary lists the pixel count of every label present in seg, e.g. "background=12 person=4".
func classSummary(seg *segmentation.Segmentation, cfg *config.Config) string {
	counts := map[int32]int{}
	for _, label := range seg.Labels.Labels {
		counts[label]++
	}
	labels := make([]int32, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", cfg.ClassName(int(label)), counts[label]))
	}
	return strings.Join(parts, " ")
}
