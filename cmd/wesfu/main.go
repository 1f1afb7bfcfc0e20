package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/wesleygoyette/facetime-v4/internal/client"
)

func main() {
	username := flag.StringP("username", "u", "", "username to connect with (random when empty)")
	serverAddr := flag.StringP("server", "s", "127.0.0.1", "server host or host:port")
	pattern := flag.StringP("pattern", "p", "scroll",
		fmt.Sprintf("test pattern to send (%s)", strings.Join(client.PatternNames(), ", ")))
	fps := flag.Int("fps", 30, "frames per second during a call")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	name := *username
	if name == "" {
		name = client.RandomUsername()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	c, err := client.Connect(ctx, client.Options{
		Addr:     *serverAddr,
		Username: name,
		Pattern:  *pattern,
		FPS:      *fps,
		Log:      log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.Run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
