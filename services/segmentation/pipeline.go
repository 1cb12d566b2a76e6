package segmentation

import (
	"context"
	"sync"

	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/rimage"
)

// PipelineConfig holds the policy applied on top of the backend output.
type PipelineConfig struct {
	// ProbaThreshold demotes pixels whose largest probability is below it. Zero disables it.
	ProbaThreshold float32
	BgLabel        int32
}

// Pipeline runs backend, threshold and mask for one frame at a time.
type Pipeline struct {
	mu      sync.Mutex
	backend Backend
	conf    PipelineConfig
	logger  logging.Logger
}

// NewPipeline returns a pipeline that owns backend.
func NewPipeline(backend Backend, conf PipelineConfig, logger logging.Logger) (*Pipeline, error) {
	if backend == nil {
		return nil, NewConfigurationError("pipeline needs a backend")
	}
	if conf.BgLabel < 0 || int(conf.BgLabel) >= backend.NumClasses() {
		return nil, NewConfigurationError("bg_label %d out of range for %d classes", conf.BgLabel, backend.NumClasses())
	}
	if conf.ProbaThreshold < 0 || conf.ProbaThreshold > 1 {
		return nil, NewConfigurationError("proba_threshold %v must be within [0, 1]", conf.ProbaThreshold)
	}
	return &Pipeline{backend: backend, conf: conf, logger: logger}, nil
}

// OpenPipeline builds the registered backend named in bconf and wraps it in a pipeline. The
// backend is closed again if the pipeline cannot be built.
func OpenPipeline(ctx context.Context, bconf BackendConfig, conf PipelineConfig, logger logging.Logger) (*Pipeline, error) {
	backend, err := NewBackend(ctx, bconf, logger.Sublogger("backend"))
	if err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(backend, conf, logger)
	if err != nil {
		return nil, multierr.Combine(err, backend.Close(ctx))
	}
	return pipeline, nil
}

// NumClasses is the number of classes of the underlying model.
func (p *Pipeline) NumClasses() int {
	return p.backend.NumClasses()
}

// Segment labels image, restricted to mask when mask is not nil. A FrameSkippedError means the
// frame should be dropped; any other error is fatal. Concurrent calls are serialized.
func (p *Pipeline) Segment(ctx context.Context, image, mask *rimage.PixelBuffer) (*Segmentation, error) {
	ctx, span := trace.StartSpan(ctx, "segmentation::Pipeline::Segment")
	defer span.End()

	raw, err := p.infer(ctx, image)
	if err != nil {
		return nil, err
	}
	labels, err := ApplyThreshold(raw.Labels, raw.Proba, p.conf.ProbaThreshold, p.conf.BgLabel)
	if err != nil {
		return nil, err
	}
	proba := raw.Proba
	if mask != nil {
		if labels, proba, err = ApplyMask(labels, proba, mask); err != nil {
			return nil, err
		}
	}
	return &Segmentation{Labels: labels, Proba: proba}, nil
}

func (p *Pipeline) infer(ctx context.Context, image *rimage.PixelBuffer) (*RawSegmentation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend.Infer(ctx, image)
}

// Close releases the backend.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend.Close(ctx)
}
