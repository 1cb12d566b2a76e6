package rimage

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/fcnseg/fcnseg/ros"
)

// channelsForEncoding returns the sample count per pixel of an 8-bit encoding.
func channelsForEncoding(encoding string) (int, error) {
	switch encoding {
	case ros.EncodingBGR8, ros.EncodingRGB8:
		return 3, nil
	case ros.EncodingBGRA8, ros.EncodingRGBA8:
		return 4, nil
	case ros.EncodingMono8, ros.Encoding8UC1:
		return 1, nil
	default:
		return 0, errors.Errorf("unsupported image encoding %q", encoding)
	}
}

// FromImageMessage decodes an 8-bit wire image into a BGR buffer (3 channels).
func FromImageMessage(msg *ros.Image) (*PixelBuffer, error) {
	if msg == nil {
		return nil, errors.New("image message is nil")
	}
	inChannels, err := channelsForEncoding(msg.Encoding)
	if err != nil {
		return nil, err
	}
	rows, err := packedRows(msg, inChannels)
	if err != nil {
		return nil, err
	}
	pb := NewPixelBuffer(msg.Height, msg.Width, 3)
	for y := 0; y < msg.Height; y++ {
		row := rows[y]
		for x := 0; x < msg.Width; x++ {
			src := row[x*inChannels : (x+1)*inChannels]
			dst := pb.Data[(y*msg.Width+x)*3 : (y*msg.Width+x+1)*3]
			switch msg.Encoding {
			case ros.EncodingBGR8, ros.EncodingBGRA8:
				dst[0], dst[1], dst[2] = src[0], src[1], src[2]
			case ros.EncodingRGB8, ros.EncodingRGBA8:
				dst[0], dst[1], dst[2] = src[2], src[1], src[0]
			default:
				dst[0], dst[1], dst[2] = src[0], src[0], src[0]
			}
		}
	}
	return pb, nil
}

// MaskFromImageMessage decodes a mono8 wire image into a 1 channel buffer.
func MaskFromImageMessage(msg *ros.Image) (*PixelBuffer, error) {
	if msg == nil {
		return nil, errors.New("mask message is nil")
	}
	if msg.Encoding != ros.EncodingMono8 && msg.Encoding != ros.Encoding8UC1 {
		return nil, errors.Errorf("mask must be %s, got %q", ros.EncodingMono8, msg.Encoding)
	}
	rows, err := packedRows(msg, 1)
	if err != nil {
		return nil, err
	}
	pb := NewPixelBuffer(msg.Height, msg.Width, 1)
	for y, row := range rows {
		copy(pb.Data[y*msg.Width:(y+1)*msg.Width], row[:msg.Width])
	}
	return pb, nil
}

// packedRows slices the message data into rows, honoring Step padding.
func packedRows(msg *ros.Image, bytesPerPixel int) ([][]byte, error) {
	if msg.Height <= 0 || msg.Width <= 0 {
		return nil, errors.Errorf("image has invalid size %dx%d", msg.Width, msg.Height)
	}
	step := msg.Step
	if step == 0 {
		step = msg.Width * bytesPerPixel
	}
	if step < msg.Width*bytesPerPixel {
		return nil, errors.Errorf("image step %d is smaller than row size %d", step, msg.Width*bytesPerPixel)
	}
	if len(msg.Data) < step*(msg.Height-1)+msg.Width*bytesPerPixel {
		return nil, errors.Errorf("image data of %d bytes is too short for %dx%d with step %d",
			len(msg.Data), msg.Width, msg.Height, step)
	}
	rows := make([][]byte, msg.Height)
	for y := range rows {
		rows[y] = msg.Data[y*step : y*step+msg.Width*bytesPerPixel]
	}
	return rows, nil
}

// LabelsToMessage encodes a row-major label array as a 32SC1 little endian image.
func LabelsToMessage(labels []int32, height, width int, header ros.Header) (*ros.Image, error) {
	if len(labels) != height*width {
		return nil, errors.Errorf("label array of %d does not match %dx%d", len(labels), width, height)
	}
	data := make([]byte, 4*len(labels))
	for i, l := range labels {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(l))
	}
	return &ros.Image{
		Header:   header,
		Height:   height,
		Width:    width,
		Encoding: ros.Encoding32SC1,
		Step:     4 * width,
		Data:     data,
	}, nil
}

// LabelsFromMessage decodes a 32SC1 image.
func LabelsFromMessage(msg *ros.Image) ([]int32, error) {
	if msg.Encoding != ros.Encoding32SC1 {
		return nil, errors.Errorf("label image must be %s, got %q", ros.Encoding32SC1, msg.Encoding)
	}
	rows, err := packedRows(msg, 4)
	if err != nil {
		return nil, err
	}
	order := byteOrder(msg)
	labels := make([]int32, 0, msg.Height*msg.Width)
	for _, row := range rows {
		for x := 0; x < msg.Width; x++ {
			labels = append(labels, int32(order.Uint32(row[4*x:])))
		}
	}
	return labels, nil
}

// ProbaToMessage encodes a row-major H x W x C probability array as a 32FC<C> little endian image.
func ProbaToMessage(proba []float32, height, width, channels int, header ros.Header) (*ros.Image, error) {
	if len(proba) != height*width*channels {
		return nil, errors.Errorf("probability array of %d does not match %dx%dx%d", len(proba), width, height, channels)
	}
	data := make([]byte, 4*len(proba))
	for i, p := range proba {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(p))
	}
	return &ros.Image{
		Header:   header,
		Height:   height,
		Width:    width,
		Encoding: ros.Encoding32FC(channels),
		Step:     4 * width * channels,
		Data:     data,
	}, nil
}

// ProbaFromMessage decodes a 32FC<C> image, returning the data and the channel count.
func ProbaFromMessage(msg *ros.Image) ([]float32, int, error) {
	channels, ok := ros.ParseEncoding32FC(msg.Encoding)
	if !ok {
		return nil, 0, errors.Errorf("probability image must be 32FC<n>, got %q", msg.Encoding)
	}
	rows, err := packedRows(msg, 4*channels)
	if err != nil {
		return nil, 0, err
	}
	order := byteOrder(msg)
	proba := make([]float32, 0, msg.Height*msg.Width*channels)
	for _, row := range rows {
		for i := 0; i < msg.Width*channels; i++ {
			proba = append(proba, math.Float32frombits(order.Uint32(row[4*i:])))
		}
	}
	return proba, channels, nil
}

func byteOrder(msg *ros.Image) binary.ByteOrder {
	if msg.IsBigEndian != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
