// Package main runs a segmentation node and serves its HTTP API.
package main

import (
	"go.viam.com/utils"

	"github.com/fcnseg/fcnseg/logging"
	// registers all backends.
	_ "github.com/fcnseg/fcnseg/services/segmentation/register"
	"github.com/fcnseg/fcnseg/web/server"
)

var logger = logging.NewDebugLogger("entrypoint")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
