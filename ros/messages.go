// Package ros holds the wire messages exchanged on the node's topics and bridges recorded
// rosbag files into them.
package ros

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Image encodings understood by the node.
const (
	EncodingBGR8  = "bgr8"
	EncodingRGB8  = "rgb8"
	EncodingBGRA8 = "bgra8"
	EncodingRGBA8 = "rgba8"
	EncodingMono8 = "mono8"
	Encoding8UC1  = "8UC1"
	// Encoding32SC1 is a single channel of little endian int32, used for label images.
	Encoding32SC1 = "32SC1"
)

// Encoding32FC returns the encoding of a little endian float32 image with the given number of
// channels, e.g. "32FC21" for a 21 class probability image.
func Encoding32FC(channels int) string {
	return fmt.Sprintf("32FC%d", channels)
}

// ParseEncoding32FC returns the channel count of a "32FC<n>" encoding.
func ParseEncoding32FC(encoding string) (int, bool) {
	if !strings.HasPrefix(encoding, "32FC") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(encoding, "32FC"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Header carries the timing and identity of a message. Outputs reuse the header of the input
// they were computed from.
type Header struct {
	Seq     uint32    `json:"seq"`
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id"`
}

// Image is a dense 2D image message. Data is row-major with Step bytes per row.
type Image struct {
	Header      Header `json:"header"`
	Height      int    `json:"height"`
	Width       int    `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigEndian uint8  `json:"is_bigendian"`
	Step        int    `json:"step"`
	Data        []byte `json:"data"`
}

// String summarizes the image without its pixels.
func (img *Image) String() string {
	return fmt.Sprintf("Image{seq=%d stamp=%s frame=%q %dx%d %s}",
		img.Header.Seq, img.Header.Stamp.Format(time.RFC3339Nano), img.Header.FrameID,
		img.Width, img.Height, img.Encoding)
}

// bagTime is a rosbag timestamp as exported to JSON.
type bagTime struct {
	Secs  int64
	Nsecs int64
}

func (t bagTime) toTime() time.Time {
	return time.Unix(t.Secs, t.Nsecs)
}

// bagImageMessage is a sensor_msgs/Image message as exported to JSON from a rosbag.
type bagImageMessage struct {
	Meta bagTime
	Data struct {
		Header struct {
			Seq     uint32
			Stamp   bagTime
			FrameID string `json:"frame_id"`
		}
		Height      int
		Width       int
		Encoding    string
		IsBigEndian uint8 `json:"is_bigendian"`
		Step        int
		Data        []byte
	}
}

func (msg *bagImageMessage) toImage() *Image {
	stamp := msg.Data.Header.Stamp.toTime()
	if msg.Data.Header.Stamp == (bagTime{}) {
		// messages recorded without a header stamp fall back to the record time.
		stamp = msg.Meta.toTime()
	}
	return &Image{
		Header: Header{
			Seq:     msg.Data.Header.Seq,
			Stamp:   stamp,
			FrameID: msg.Data.Header.FrameID,
		},
		Height:      msg.Data.Height,
		Width:       msg.Data.Width,
		Encoding:    msg.Data.Encoding,
		IsBigEndian: msg.Data.IsBigEndian,
		Step:        msg.Data.Step,
		Data:        msg.Data.Data,
	}
}
