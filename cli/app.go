// Package cli contains the fcnseg command line tool for segmenting images and recordings offline.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	configFlag     = "config"
	debugFlag      = "debug"
	maskFlag       = "mask"
	outDirFlag     = "out-dir"
	maxSideFlag    = "max-side"
	imageTopicFlag = "image-topic"
	maskTopicFlag  = "mask-topic"
)

var app = &cli.App{
	Name:            "fcnseg",
	Usage:           "segment images with a fully convolutional network",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load node configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "segment",
			Usage:     "segment image files and write colorized label images",
			ArgsUsage: "<image> [image...]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  maskFlag,
					Usage: "mask image applied to every input; black pixels are forced to label 0",
				},
				&cli.StringFlag{
					Name:  outDirFlag,
					Usage: "directory the label images are written to",
					Value: ".",
				},
				&cli.UintFlag{
					Name:  maxSideFlag,
					Usage: "scale label images down so their longest side is at most this many pixels",
				},
			},
			Action: SegmentAction,
		},
		{
			Name:      "replay",
			Usage:     "segment the images recorded in a rosbag",
			ArgsUsage: "<bag>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     imageTopicFlag,
					Usage:    "topic of the recorded images",
					Required: true,
				},
				&cli.StringFlag{
					Name:  maskTopicFlag,
					Usage: "topic of the recorded masks, required when the config sets use_mask",
				},
				&cli.StringFlag{
					Name:  outDirFlag,
					Usage: "directory the label images are written to; nothing is written when empty",
				},
				&cli.UintFlag{
					Name:  maxSideFlag,
					Usage: "scale label images down so their longest side is at most this many pixels",
				},
			},
			Action: ReplayAction,
		},
		{
			Name:   "classes",
			Usage:  "list the labels and class names of the configured model",
			Action: ClassesAction,
		},
		{
			Name:   "backends",
			Usage:  "list the available inference backends and their models",
			Action: BackendsAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
