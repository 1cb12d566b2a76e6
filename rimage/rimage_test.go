package rimage

import (
	"image"
	"image/color"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/fcnseg/fcnseg/ros"
)

func TestFromImageMessage(t *testing.T) {
	t.Run("bgr8", func(t *testing.T) {
		msg := &ros.Image{Height: 1, Width: 2, Encoding: ros.EncodingBGR8, Step: 6, Data: []byte{1, 2, 3, 4, 5, 6}}
		pb, err := FromImageMessage(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pb.Data, test.ShouldResemble, []uint8{1, 2, 3, 4, 5, 6})
	})

	t.Run("rgb8 is swapped to bgr", func(t *testing.T) {
		msg := &ros.Image{Height: 1, Width: 1, Encoding: ros.EncodingRGB8, Data: []byte{10, 20, 30}}
		pb, err := FromImageMessage(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pb.Data, test.ShouldResemble, []uint8{30, 20, 10})
	})

	t.Run("rgba8 drops alpha", func(t *testing.T) {
		msg := &ros.Image{Height: 1, Width: 1, Encoding: ros.EncodingRGBA8, Data: []byte{10, 20, 30, 40}}
		pb, err := FromImageMessage(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pb.Data, test.ShouldResemble, []uint8{30, 20, 10})
	})

	t.Run("mono8 is replicated", func(t *testing.T) {
		msg := &ros.Image{Height: 1, Width: 1, Encoding: ros.EncodingMono8, Data: []byte{7}}
		pb, err := FromImageMessage(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pb.Data, test.ShouldResemble, []uint8{7, 7, 7})
	})

	t.Run("step padding", func(t *testing.T) {
		msg := &ros.Image{Height: 2, Width: 1, Encoding: ros.EncodingBGR8, Step: 4, Data: []byte{1, 2, 3, 0, 4, 5, 6}}
		pb, err := FromImageMessage(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pb.Data, test.ShouldResemble, []uint8{1, 2, 3, 4, 5, 6})
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := FromImageMessage(&ros.Image{Height: 1, Width: 1, Encoding: "yuv422", Data: []byte{0, 0}})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "unsupported image encoding")

		_, err = FromImageMessage(&ros.Image{Height: 2, Width: 2, Encoding: ros.EncodingBGR8, Data: []byte{0, 0, 0}})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "too short")

		_, err = FromImageMessage(nil)
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestMaskFromImageMessage(t *testing.T) {
	pb, err := MaskFromImageMessage(&ros.Image{Height: 2, Width: 2, Encoding: ros.EncodingMono8, Data: []byte{0, 255, 1, 0}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pb.Channels, test.ShouldEqual, 1)
	test.That(t, pb.At(0, 1, 0), test.ShouldEqual, 255)
	test.That(t, pb.At(1, 0, 0), test.ShouldEqual, 1)

	_, err = MaskFromImageMessage(&ros.Image{Height: 1, Width: 1, Encoding: ros.EncodingBGR8, Data: []byte{0, 0, 0}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLabelAndProbaMessages(t *testing.T) {
	header := ros.Header{Seq: 4, Stamp: time.Unix(12, 500), FrameID: "camera"}

	labels := []int32{0, 1, -1, 20}
	msg, err := LabelsToMessage(labels, 2, 2, header)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Header, test.ShouldResemble, header)
	test.That(t, msg.Encoding, test.ShouldEqual, ros.Encoding32SC1)
	test.That(t, msg.Step, test.ShouldEqual, 8)
	test.That(t, msg.Data[:4], test.ShouldResemble, []byte{0, 0, 0, 0})
	test.That(t, msg.Data[4:8], test.ShouldResemble, []byte{1, 0, 0, 0})
	decoded, err := LabelsFromMessage(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, labels)

	_, err = LabelsToMessage(labels, 3, 2, header)
	test.That(t, err, test.ShouldNotBeNil)

	proba := []float32{0.25, 0.75, 1, 0}
	msg, err = ProbaToMessage(proba, 1, 2, 2, header)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Encoding, test.ShouldEqual, "32FC2")
	test.That(t, msg.Step, test.ShouldEqual, 16)
	decodedProba, channels, err := ProbaFromMessage(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, channels, test.ShouldEqual, 2)
	test.That(t, decodedProba, test.ShouldResemble, proba)
}

func TestImageRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	msg := ImageToMessage(img, ros.Header{FrameID: "f"})
	test.That(t, msg.Encoding, test.ShouldEqual, ros.EncodingBGR8)
	test.That(t, msg.Data, test.ShouldResemble, []byte{50, 100, 200, 3, 2, 1})

	pb, err := FromImageMessage(msg)
	test.That(t, err, test.ShouldBeNil)
	back, err := pb.ToImage()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.At(0, 0), test.ShouldResemble, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	gray := image.NewGray(image.Rect(0, 0, 1, 2))
	gray.SetGray(0, 1, color.Gray{Y: 255})
	maskMsg := MaskToMessage(gray, ros.Header{})
	test.That(t, maskMsg.Encoding, test.ShouldEqual, ros.EncodingMono8)
	test.That(t, maskMsg.Data, test.ShouldResemble, []byte{0, 255})
}

func TestColorizeLabels(t *testing.T) {
	palette := LabelPalette(21, 0)
	test.That(t, len(palette), test.ShouldEqual, 21)
	test.That(t, palette[0], test.ShouldResemble, color.NRGBA{A: 255})
	seen := map[color.NRGBA]bool{}
	for _, c := range palette {
		test.That(t, seen[c], test.ShouldBeFalse)
		seen[c] = true
	}

	img := ColorizeLabels([]int32{0, 1, 99, -1}, 2, 2, 21, 0)
	test.That(t, img.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{A: 255})
	test.That(t, img.NRGBAAt(1, 0), test.ShouldResemble, palette[1])
	test.That(t, img.NRGBAAt(0, 1), test.ShouldResemble, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	test.That(t, img.NRGBAAt(1, 1), test.ShouldResemble, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
}

func TestResizeToFit(t *testing.T) {
	small := image.NewGray(image.Rect(0, 0, 10, 5))
	test.That(t, ResizeToFit(small, 20, true) == image.Image(small), test.ShouldBeTrue)
	test.That(t, ResizeToFit(small, 0, true) == image.Image(small), test.ShouldBeTrue)

	big := image.NewNRGBA(image.Rect(0, 0, 400, 200))
	out := ResizeToFit(big, 100, false)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 100)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 50)
}
