package segmentation

import (
	"testing"

	"go.viam.com/test"

	"github.com/fcnseg/fcnseg/rimage"
)

// sampleMaps returns a 2x2 three class segmentation with distinct confidences per pixel.
func sampleMaps() (*LabelMap, *ProbabilityMap) {
	proba := &ProbabilityMap{Height: 2, Width: 2, Classes: 3, Data: []float32{
		0.1, 0.8, 0.1, // confident class 1
		0.3, 0.3, 0.4, // unsure class 2
		0.05, 0.05, 0.9, // confident class 2
		0.5, 0.25, 0.25, // background
	}}
	labels := &LabelMap{Height: 2, Width: 2, Labels: []int32{1, 2, 2, 0}}
	return labels, proba
}

func TestApplyThreshold(t *testing.T) {
	t.Run("zero threshold is identity", func(t *testing.T) {
		labels, proba := sampleMaps()
		out, err := ApplyThreshold(labels.Clone(), proba, 0, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Labels, test.ShouldResemble, labels.Labels)
	})

	t.Run("demotes below threshold and leaves proba alone", func(t *testing.T) {
		labels, proba := sampleMaps()
		before := proba.Clone()
		out, err := ApplyThreshold(labels, proba, 0.75, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Labels, test.ShouldResemble, []int32{1, 0, 2, 0})
		test.That(t, proba.Data, test.ShouldResemble, before.Data)
	})

	t.Run("custom background", func(t *testing.T) {
		labels, proba := sampleMaps()
		out, err := ApplyThreshold(labels, proba, 0.75, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Labels, test.ShouldResemble, []int32{1, 2, 2, 2})
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, threshold := range []float32{0, 0.3, 0.45, 0.75, 0.85, 1} {
			labels, proba := sampleMaps()
			once, err := ApplyThreshold(labels.Clone(), proba, threshold, 0)
			test.That(t, err, test.ShouldBeNil)
			twice, err := ApplyThreshold(once.Clone(), proba, threshold, 0)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, twice.Labels, test.ShouldResemble, once.Labels)
		}
	})

	t.Run("monotonic", func(t *testing.T) {
		thresholds := []float32{0, 0.2, 0.4, 0.5, 0.8, 0.85, 0.95, 1}
		labels, proba := sampleMaps()
		prev := labels.Clone()
		for _, threshold := range thresholds {
			cur, err := ApplyThreshold(labels.Clone(), proba, threshold, 0)
			test.That(t, err, test.ShouldBeNil)
			for i := range cur.Labels {
				if prev.Labels[i] == 0 {
					test.That(t, cur.Labels[i], test.ShouldEqual, 0)
				}
				if cur.Labels[i] != 0 {
					test.That(t, cur.Labels[i], test.ShouldEqual, labels.Labels[i])
				}
			}
			prev = cur
		}
		test.That(t, prev.Labels, test.ShouldResemble, []int32{0, 0, 0, 0})
	})

	t.Run("size mismatch", func(t *testing.T) {
		labels, proba := sampleMaps()
		labels.Width = 3
		_, err := ApplyThreshold(labels, proba, 0.5, 0)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestApplyMask(t *testing.T) {
	ones := &rimage.PixelBuffer{Height: 2, Width: 2, Channels: 1, Data: []uint8{1, 255, 7, 1}}
	zeros := rimage.NewPixelBuffer(2, 2, 1)

	t.Run("all nonzero is identity", func(t *testing.T) {
		labels, proba := sampleMaps()
		wantLabels, wantProba := labels.Clone(), proba.Clone()
		outLabels, outProba, err := ApplyMask(labels, proba, ones)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outLabels.Labels, test.ShouldResemble, wantLabels.Labels)
		test.That(t, outProba.Data, test.ShouldResemble, wantProba.Data)
	})

	t.Run("all zero forces background", func(t *testing.T) {
		labels, proba := sampleMaps()
		outLabels, outProba, err := ApplyMask(labels, proba, zeros)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outLabels.Labels, test.ShouldResemble, []int32{0, 0, 0, 0})
		for i := 0; i < 4; i++ {
			test.That(t, outProba.Pixel(i), test.ShouldResemble, []float32{1, 0, 0})
		}
	})

	t.Run("top row kept bottom row masked", func(t *testing.T) {
		labels, proba := sampleMaps()
		thresholded, err := ApplyThreshold(labels, proba, 0.75, 0)
		test.That(t, err, test.ShouldBeNil)
		mask := &rimage.PixelBuffer{Height: 2, Width: 2, Channels: 1, Data: []uint8{1, 1, 0, 0}}
		outLabels, outProba, err := ApplyMask(thresholded, proba, mask)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outLabels.Labels, test.ShouldResemble, []int32{1, 0, 0, 0})
		test.That(t, outProba.Pixel(0), test.ShouldResemble, []float32{0.1, 0.8, 0.1})
		test.That(t, outProba.Pixel(1), test.ShouldResemble, []float32{0.3, 0.3, 0.4})
		test.That(t, outProba.Pixel(2), test.ShouldResemble, []float32{1, 0, 0})
		test.That(t, outProba.Pixel(3), test.ShouldResemble, []float32{1, 0, 0})
	})

	t.Run("mask wins over custom background", func(t *testing.T) {
		labels, proba := sampleMaps()
		thresholded, err := ApplyThreshold(labels, proba, 1, 2)
		test.That(t, err, test.ShouldBeNil)
		outLabels, _, err := ApplyMask(thresholded, proba, zeros)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, outLabels.Labels, test.ShouldResemble, []int32{0, 0, 0, 0})
	})

	t.Run("wrong size skips the frame", func(t *testing.T) {
		labels, proba := sampleMaps()
		_, _, err := ApplyMask(labels, proba, rimage.NewPixelBuffer(3, 2, 1))
		test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
		_, _, err = ApplyMask(labels, proba, rimage.NewPixelBuffer(2, 2, 3))
		test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
		_, _, err = ApplyMask(labels, proba, nil)
		test.That(t, IsFrameSkipped(err), test.ShouldBeTrue)
	})
}
