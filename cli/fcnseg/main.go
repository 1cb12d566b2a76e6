// Package main is the CLI command itself.
package main

import (
	"fmt"
	"os"

	fcnsegcli "github.com/fcnseg/fcnseg/cli"
	// registers all backends.
	_ "github.com/fcnseg/fcnseg/services/segmentation/register"
)

func main() {
	app := fcnsegcli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
