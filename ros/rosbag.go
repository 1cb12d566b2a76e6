package ros

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag")
	}

	return rb, nil
}

// ImagesForTopic returns every sensor_msgs/Image recorded on topic, ordered by header stamp.
func ImagesForTopic(rb *rosbag.RosBag, topic string) ([]*Image, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[topic]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	var images []*Image
	for {
		data, err := msgs.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		var message bagImageMessage
		if err := json.Unmarshal(data, &message); err != nil {
			return nil, errors.Wrapf(err, "message %d on %s is not an image", len(images), topic)
		}
		images = append(images, message.toImage())
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Header.Stamp.Before(images[j].Header.Stamp)
	})
	return images, nil
}

// MergeByStamp interleaves several stamp-ordered image sequences into one, keeping the relative
// order of equal stamps. The returned index slice names the source sequence of each image.
func MergeByStamp(streams ...[]*Image) ([]*Image, []int) {
	var (
		merged  []*Image
		sources []int
		next    = make([]int, len(streams))
	)
	for {
		best := -1
		for s, images := range streams {
			if next[s] >= len(images) {
				continue
			}
			if best == -1 || images[next[s]].Header.Stamp.Before(streams[best][next[best]].Header.Stamp) {
				best = s
			}
		}
		if best == -1 {
			return merged, sources
		}
		merged = append(merged, streams[best][next[best]])
		sources = append(sources, best)
		next[best]++
	}
}
