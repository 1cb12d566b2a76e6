// Package rimage converts between wire images, Go images and the dense pixel buffers fed to the
// segmentation backends.
package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/ros"
)

// PixelBuffer is a dense row-major Height x Width x Channels array of 8-bit samples. Color
// buffers are BGR ordered with 3 channels; masks have 1 channel.
type PixelBuffer struct {
	Height   int
	Width    int
	Channels int
	Data     []uint8
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(height, width, channels int) *PixelBuffer {
	return &PixelBuffer{
		Height:   height,
		Width:    width,
		Channels: channels,
		Data:     make([]uint8, height*width*channels),
	}
}

// Validate checks that the buffer is non-empty and that its data fits its dimensions.
func (pb *PixelBuffer) Validate() error {
	if pb == nil {
		return errors.New("pixel buffer is nil")
	}
	if pb.Height <= 0 || pb.Width <= 0 || pb.Channels <= 0 {
		return errors.Errorf("pixel buffer has invalid dimensions %dx%dx%d", pb.Height, pb.Width, pb.Channels)
	}
	if len(pb.Data) != pb.Height*pb.Width*pb.Channels {
		return errors.Errorf("pixel buffer of %dx%dx%d holds %d bytes", pb.Height, pb.Width, pb.Channels, len(pb.Data))
	}
	return nil
}

// At returns the sample of channel c at row y, column x.
func (pb *PixelBuffer) At(y, x, c int) uint8 {
	return pb.Data[(y*pb.Width+x)*pb.Channels+c]
}

// Set writes the sample of channel c at row y, column x.
func (pb *PixelBuffer) Set(y, x, c int, v uint8) {
	pb.Data[(y*pb.Width+x)*pb.Channels+c] = v
}

// Bounds returns the image rectangle covered by the buffer.
func (pb *PixelBuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, pb.Width, pb.Height)
}

// NewBGRFromImage converts any Go image to a 3 channel BGR buffer.
func NewBGRFromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	pb := NewPixelBuffer(bounds.Dy(), bounds.Dx(), 3)
	for y := 0; y < pb.Height; y++ {
		for x := 0; x < pb.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := (y*pb.Width + x) * 3
			pb.Data[i] = c.B
			pb.Data[i+1] = c.G
			pb.Data[i+2] = c.R
		}
	}
	return pb
}

// NewMaskFromImage converts any Go image to a 1 channel buffer using its luminance.
func NewMaskFromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	pb := NewPixelBuffer(bounds.Dy(), bounds.Dx(), 1)
	for y := 0; y < pb.Height; y++ {
		for x := 0; x < pb.Width; x++ {
			pb.Data[y*pb.Width+x] = color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray).Y
		}
	}
	return pb
}

// ToImage converts the buffer back to a Go image: BGR buffers become NRGBA, masks become Gray.
func (pb *PixelBuffer) ToImage() (image.Image, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	switch pb.Channels {
	case 1:
		gray := image.NewGray(pb.Bounds())
		copy(gray.Pix, pb.Data)
		return gray, nil
	case 3:
		out := image.NewNRGBA(pb.Bounds())
		for i := 0; i < pb.Height*pb.Width; i++ {
			out.Pix[i*4] = pb.Data[i*3+2]
			out.Pix[i*4+1] = pb.Data[i*3+1]
			out.Pix[i*4+2] = pb.Data[i*3]
			out.Pix[i*4+3] = 255
		}
		return out, nil
	default:
		return nil, errors.Errorf("cannot convert %d channel buffer to an image", pb.Channels)
	}
}

// ImageToMessage wraps a Go image in a bgr8 wire image with the given header.
func ImageToMessage(img image.Image, header ros.Header) *ros.Image {
	pb := NewBGRFromImage(img)
	return &ros.Image{
		Header:   header,
		Height:   pb.Height,
		Width:    pb.Width,
		Encoding: ros.EncodingBGR8,
		Step:     pb.Width * 3,
		Data:     pb.Data,
	}
}

// MaskToMessage wraps a Go image in a mono8 wire image with the given header.
func MaskToMessage(img image.Image, header ros.Header) *ros.Image {
	pb := NewMaskFromImage(img)
	return &ros.Image{
		Header:   header,
		Height:   pb.Height,
		Width:    pb.Width,
		Encoding: ros.EncodingMono8,
		Step:     pb.Width,
		Data:     pb.Data,
	}
}
