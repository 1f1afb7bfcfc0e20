package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/wesleygoyette/facetime-v4/internal/server"
)

// Version is injected at build time with -ldflags.
var Version = "4.0.0-dev"

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Error().Err(err).Msg("bad configuration")
		os.Exit(1)
	}

	flag.StringVar(&cfg.TCPAddr, "tcp-addr", cfg.TCPAddr, "control listen address")
	flag.StringVar(&cfg.UDPAddr, "udp-addr", cfg.UDPAddr, "media relay listen address")
	flag.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "ops HTTP API listen address (empty disables)")
	flag.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "stats logging interval")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	log.Info().Str("version", Version).Msg("starting wesfu server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Info().Msg("received interrupt, shutting down")
		cancel()
	}()

	if err := server.New(cfg, log).Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
