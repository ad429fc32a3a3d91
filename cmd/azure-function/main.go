package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mosajjal/logrelay/pkg/config"
	"github.com/mosajjal/logrelay/pkg/provider"
	"github.com/mosajjal/logrelay/pkg/provider/azure"
	"github.com/mosajjal/logrelay/pkg/transport"
)

// Runs as an Azure Functions custom handler receiving Azure Monitor records
func main() {
	cfg := config.MustParse()
	cfg.SetupLogging()
	if port := os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.Listen = ":" + port
	}

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
	tr := transport.New(tc)
	if err := tr.Init(snk); err != nil {
		log.WithError(err).Fatal("Failed to initialize transport")
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: provider.NewRouter(azure.NewProvider(cfg.MessageKey, cfg.MetadataKey), tr),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server shutdown failed")
		}
	}()

	log.WithField("addr", cfg.Listen).Info("Azure custom handler ready")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Server failed")
	}
	if err := tr.Close(); err != nil {
		log.WithError(err).Error("Failed to close sink")
	}
}
