// Package server implements the entry point for running a segmentation node behind an HTTP API.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"go.viam.com/utils/perf"
	"golang.org/x/sync/errgroup"

	"github.com/fcnseg/fcnseg/config"
	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/node"
	"github.com/fcnseg/fcnseg/transport"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=node config file"`
	Addr       string `flag:"addr,default=localhost:8080,usage=address to serve the http api on"`
	Debug      bool   `flag:"debug"`
	Trace      bool   `flag:"trace,usage=log a span for every segmented frame"`
}

const shutdownTimeout = 5 * time.Second

// RunServer is an entry point to starting the node and its web server that can be called by main
// or otherwise be used to run a node in process.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}

	if argsParsed.Trace {
		exp := perf.NewDevelopmentExporter()
		if err := exp.Start(); err != nil {
			return err
		}
		defer exp.Stop()
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}
	if err := view.Register(node.Views...); err != nil {
		return err
	}
	defer view.Unregister(node.Views...)

	initialReadCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	cancel()
	if err != nil {
		return err
	}
	if cfg.LogLevel != nil && !argsParsed.Debug {
		logger.SetLevel(*cfg.LogLevel)
	}

	listener, err := net.Listen("tcp", argsParsed.Addr)
	if err != nil {
		return err
	}
	err = serveWeb(ctx, cfg, listener, logger)
	if err != nil {
		logger.Errorw("error serving web", "error", err)
	}
	return err
}

// serveWeb runs the node described by cfg and serves its API on listener until ctx is done or
// the node stops on a fatal error.
func serveWeb(ctx context.Context, cfg *config.Config, listener net.Listener, logger logging.Logger) (err error) {
	bus := transport.NewBus(logger.Sublogger("bus"))
	segNode, err := node.New(ctx, cfg, bus, logger.Sublogger(cfg.Name))
	if err != nil {
		return multierr.Combine(err, listener.Close())
	}
	defer func() {
		err = multierr.Combine(err, segNode.Close(context.Background()))
	}()
	if err := segNode.Start(ctx); err != nil {
		return multierr.Combine(err, listener.Close())
	}

	// streams are request scoped but must end when the server shuts down.
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	httpServer := &http.Server{
		Handler:           NewHandler(segNode, bus, logger.Sublogger("http")),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	httpServer.RegisterOnShutdown(cancelStreams)

	logger.Infow("serving", "url", "http://"+listener.Addr().String(), "node", cfg.Name)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "error serving http")
		}
		return nil
	})
	group.Go(func() error {
		var fatal error
		select {
		case <-groupCtx.Done():
		case fatal = <-segNode.Fatal():
			fatal = errors.Wrap(fatal, "node stopped")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(fatal, httpServer.Shutdown(shutdownCtx))
	})
	return group.Wait()
}
