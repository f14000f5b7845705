// Cepa directory service.
// Serves the append-only {host, pub_key} registry that nodes poll to
// discover one another.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cepa-network/cepa-relay/internal/logging"
	"github.com/cepa-network/cepa-relay/internal/metrics"
	"github.com/cepa-network/cepa-relay/pkg/directory"
)

var version = "0.1.0"

func main() {
	addr := flag.String("addr", ":8888", "Address to listen on")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("Cepa Directory Service")
		println("Version:", version)
		os.Exit(0)
	}

	log := logging.NewLogger(logging.LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	})

	log.Info().Str("version", version).Str("addr", *addr).Msg("starting cepa directory service")

	promMetrics := metrics.NewPrometheusMetrics()
	srv := directory.NewServer(*addr, log, promMetrics)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("directory service failed")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info().Msg("shutting down directory service")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("directory service shutdown error")
	}
	log.Info().Msg("directory service stopped")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
