package segmentation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/fcnseg/fcnseg/rimage"
)

func TestRunnerBackendSingleScenario(t *testing.T) {
	for _, layout := range []Layout{ChannelFirst, ChannelLast} {
		t.Run(layout.String(), func(t *testing.T) {
			backend, runner := newFakeBackend(layout, 2, constantScorer(2.0, 1.0))
			raw, err := infer(backend, uniformImage(1, 1, 0, 0, 0))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, runner.calls, test.ShouldEqual, 1)
			test.That(t, raw.Labels.Labels, test.ShouldResemble, []int32{0})
			test.That(t, raw.Proba.Classes, test.ShouldEqual, 2)
			test.That(t, raw.Proba.Data[0], test.ShouldAlmostEqual, 0.731, 1e-3)
			test.That(t, raw.Proba.Data[1], test.ShouldAlmostEqual, 0.269, 1e-3)
			test.That(t, raw.MaxProba[0], test.ShouldAlmostEqual, 0.731, 1e-3)
		})
	}
}

func TestRunnerBackendMeanSubtraction(t *testing.T) {
	for _, layout := range []Layout{ChannelFirst, ChannelLast} {
		t.Run(layout.String(), func(t *testing.T) {
			var seen [3]float32
			backend, _ := newFakeBackend(layout, 1, func(bgr [3]float32) []float32 {
				seen = bgr
				return []float32{0}
			})
			_, err := infer(backend, uniformImage(1, 1, 104, 117, 123))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, seen[0], test.ShouldAlmostEqual, 104-MeanBGR[0], 1e-5)
			test.That(t, seen[1], test.ShouldAlmostEqual, 117-MeanBGR[1], 1e-5)
			test.That(t, seen[2], test.ShouldAlmostEqual, 123-MeanBGR[2], 1e-5)
		})
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	img := rimage.NewPixelBuffer(6, 5, 3)
	rng.Read(img.Data)
	for _, layout := range []Layout{ChannelFirst, ChannelLast} {
		backend, _ := newFakeBackend(layout, 3, colorScorer)
		raw, err := infer(backend, img)
		test.That(t, err, test.ShouldBeNil)
		for i := 0; i < img.Height*img.Width; i++ {
			sum := float32(0)
			best := 0
			pixel := raw.Proba.Pixel(i)
			for c, p := range pixel {
				test.That(t, p, test.ShouldBeGreaterThanOrEqualTo, 0)
				sum += p
				if p > pixel[best] {
					best = c
				}
			}
			test.That(t, sum, test.ShouldAlmostEqual, 1, 1e-4)
			test.That(t, raw.Labels.Labels[i], test.ShouldEqual, best)
		}
	}
}

func TestBackendSubstitutionInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := rimage.NewPixelBuffer(8, 9, 3)
	rng.Read(img.Data)

	first, _ := newFakeBackend(ChannelFirst, 3, colorScorer)
	last, _ := newFakeBackend(ChannelLast, 3, colorScorer)
	rawFirst, err := infer(first, img)
	test.That(t, err, test.ShouldBeNil)
	rawLast, err := infer(last, img)
	test.That(t, err, test.ShouldBeNil)

	confident := 0
	for i := range rawFirst.Labels.Labels {
		if rawFirst.MaxProba[i] < 0.9 && rawLast.MaxProba[i] < 0.9 {
			continue
		}
		confident++
		test.That(t, rawFirst.Labels.Labels[i], test.ShouldEqual, rawLast.Labels.Labels[i])
	}
	test.That(t, confident, test.ShouldBeGreaterThan, 0)
	for i := range rawFirst.Proba.Data {
		test.That(t, math.Abs(float64(rawFirst.Proba.Data[i]-rawLast.Proba.Data[i])), test.ShouldBeLessThan, 1e-5)
	}
}

func TestRunnerBackendSkipsMalformedFrames(t *testing.T) {
	backend, runner := newFakeBackend(ChannelFirst, 2, constantScorer(1, 0))

	_, err := infer(backend, nil)
	test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)

	_, err = infer(backend, &rimage.PixelBuffer{Height: 0, Width: 3, Channels: 3})
	test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)

	_, err = infer(backend, rimage.NewPixelBuffer(2, 2, 1))
	test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "3 channel")

	_, err = infer(backend, &rimage.PixelBuffer{Height: 2, Width: 2, Channels: 3, Data: make([]uint8, 5)})
	test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
	test.That(t, runner.calls, test.ShouldEqual, 0)

	runner.outShape = []int{1, 2, 3, 3}
	_, err = infer(backend, uniformImage(2, 2, 0, 0, 0))
	test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "shape")
}

func TestRunnerBackendRuntimeFailureIsFatal(t *testing.T) {
	backend, runner := newFakeBackend(ChannelLast, 2, constantScorer(1, 0))
	runner.err = errors.New("invoke failed")
	_, err := infer(backend, uniformImage(1, 1, 0, 0, 0))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, IsFrameSkipped(err), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invoke failed")
}
