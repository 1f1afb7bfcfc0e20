// Package server implements the SFU: a TCP listener for the control
// protocol, a UDP relay for media datagrams, and an optional HTTP ops
// API.
package server

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// Server owns the two listeners and the shared registry.
type Server struct {
	cfg   Config
	log   zerolog.Logger
	reg   *registry.Registry
	relay *Relay

	tcpLn net.Listener
	udp   *net.UDPConn
	ready chan struct{}
}

// New builds an unbound Server; Run binds and serves.
func New(cfg Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		log:   log,
		reg:   registry.New(log),
		ready: make(chan struct{}),
	}
}

// Registry exposes the membership state, for the ops API and tests.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Run binds both listeners and serves until ctx is cancelled or a
// listener fails. All state is in-memory and lost on return.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("binding control listener: %w", err)
	}
	s.tcpLn = ln

	udpAddr, err := net.ResolveUDPAddr("udp", s.cfg.UDPAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("resolving relay address: %w", err)
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("binding relay socket: %w", err)
	}
	s.udp = udp
	s.relay = NewRelay(udp, s.reg, s.log)
	close(s.ready)

	s.log.Info().
		Str("tcp", ln.Addr().String()).
		Str("udp", udp.LocalAddr().String()).
		Msg("listening")

	g, ctx := errgroup.WithContext(ctx)

	// Unblock the accept and receive loops when the context ends.
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		udp.Close()
		return nil
	})

	g.Go(func() error { return s.acceptLoop(ctx, ln) })
	g.Go(func() error { return s.relay.Run(ctx) })
	g.Go(func() error {
		runMetrics(ctx, s.log, s.reg, s.relay, s.cfg.MetricsInterval)
		return nil
	})

	if s.cfg.APIAddr != "" {
		api := newAPIServer(s.reg, s.relay, s.log)
		g.Go(func() error {
			api.run(ctx, s.cfg.APIAddr)
			return nil
		})
	}

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Ready is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// TCPAddr returns the bound control address, for tests using ":0".
func (s *Server) TCPAddr() net.Addr { return s.tcpLn.Addr() }

// UDPAddr returns the bound relay address, for tests using ":0".
func (s *Server) UDPAddr() net.Addr { return s.udp.LocalAddr() }

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting control connection: %w", err)
		}
		go func() {
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection opened")
			sess := newSession(conn, s.reg, s.log)
			sess.run(ctx)
			s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
		}()
	}
}
