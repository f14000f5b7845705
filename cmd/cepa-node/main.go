// Cepa onion node.
// Runs the relay engine, directory client, and operator shell for a
// single node in the Cepa overlay network.
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
	"github.com/cepa-network/cepa-relay/pkg/node"
	"github.com/cepa-network/cepa-relay/pkg/relay"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("Cepa Node")
		println("Version:", version)
		os.Exit(0)
	}

	log := logging.NewLogger(logging.LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	})

	log.Info().Str("version", version).Msg("starting cepa node")

	cfg := relay.DefaultConfig()
	if *configPath != "" {
		loadedCfg, err := relay.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
		cfg = loadedCfg
	}
	cfg.ApplyEnvironment()

	log.Info().
		Int("router_port", cfg.Node.RouterPort).
		Str("directory_url", cfg.Directory.URL).
		Int("path_length", cfg.Directory.PathLength).
		Msg("configuration loaded")

	promMetrics := metrics.NewPrometheusMetrics()

	runtime, err := node.New(*cfg, log, promMetrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build node runtime")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runtime.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start node runtime")
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		log.Info().Msg("shutting down node")
		cancel()
		time.Sleep(30 * time.Second)
		log.Fatal().Msg("shutdown timed out")
	}()

	shell := node.NewShell(runtime, os.Stdin, os.Stdout)
	shell.Run(ctx)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
