package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/mosajjal/logrelay/pkg/config"
	"github.com/mosajjal/logrelay/pkg/source"
	"github.com/mosajjal/logrelay/pkg/trace"
	"github.com/mosajjal/logrelay/pkg/transform"
	"github.com/mosajjal/logrelay/pkg/transport"
)

// logrelay reads pino style NDJSON from stdin and forwards it
func main() {
	cfg := config.MustParse()
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tc, err := cfg.TransportConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid transport configuration")
	}
	snk, err := cfg.NewSink(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to create sink")
	}

	var opts []transform.Option
	if cfg.TraceProject != "" {
		opts = append(opts, transform.WithTraceProvider(trace.NewXRay(cfg.TraceProject)))
	}
	tr := transport.New(tc, opts...)
	if err := tr.Init(snk); err != nil {
		log.WithError(err).Fatal("Failed to initialize transport")
	}

	// unblock a pending read on shutdown
	go func() {
		<-ctx.Done()
		os.Stdin.Close()
	}()

	runErr := tr.Run(ctx, source.NewReader(os.Stdin))
	if runErr != nil && ctx.Err() == nil {
		log.WithError(runErr).Error("Reading records failed")
	}
	if err := tr.Close(); err != nil {
		log.WithError(err).Error("Failed to close sink")
	}

	stats := tr.Stats()
	log.WithFields(log.Fields{
		"submitted": stats.Submitted,
		"completed": stats.Completed,
		"failed":    stats.Failed,
	}).Info("Shutting down")
	if runErr != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
