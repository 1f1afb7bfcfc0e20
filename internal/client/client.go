// Package client implements the terminal client: the control
// connection and REPL, and the in-call media loop that sends the local
// feed and renders the composited view of the room.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

// ErrServerClosed is returned when the server drops the control
// connection mid-exchange.
var ErrServerClosed = errors.New("server closed the connection")

const defaultFPS = 30

// Options configures Connect. Zero values pick sensible defaults; only
// Addr and Username are required.
type Options struct {
	Addr     string // host or host:port; the control port is appended when absent
	Username string
	Pattern  string // test pattern name; see PatternNames
	FPS      int    // send rate during a call, default 30
	Out      io.Writer
	Renderer Renderer
	Source   FrameSource // overrides Pattern when non-nil
	Log      zerolog.Logger
}

// Client is one connected user: the control stream plus everything
// needed to enter a call.
type Client struct {
	conn     net.Conn
	username string
	host     string
	out      io.Writer
	rend     Renderer
	src      FrameSource
	fps      int
	log      zerolog.Logger

	// joined is set by the first successful room join; a client
	// process joins at most once.
	joined bool
}

// Connect dials the server and performs the greeting. A rejection
// comes back as an error carrying the server's reason verbatim.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	addr := withDefaultPort(opts.Addr, protocol.TCPPort)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("bad server address %q: %w", opts.Addr, err)
	}

	src := opts.Source
	if src == nil {
		name := opts.Pattern
		if name == "" {
			name = "scroll"
		}
		if src, err = NewPattern(name); err != nil {
			return nil, err
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	if err := protocol.WriteCommand(conn, protocol.HelloFromClient{Username: opts.Username}); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := protocol.ReadCommand(conn)
	if err != nil {
		conn.Close()
		if errors.Is(err, protocol.ErrPeerClosed) {
			return nil, ErrServerClosed
		}
		return nil, err
	}

	switch r := reply.(type) {
	case protocol.HelloFromServer:
	case protocol.InvalidUsername:
		conn.Close()
		return nil, errors.New(r.Reason)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting reply %s", reply.Opcode())
	}

	c := &Client{
		conn:     conn,
		username: opts.Username,
		host:     host,
		out:      opts.Out,
		rend:     opts.Renderer,
		src:      src,
		fps:      opts.FPS,
		log:      opts.Log.With().Str("component", "client").Logger(),
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.rend == nil {
		c.rend = NewTerminalRenderer()
	}
	if c.fps <= 0 {
		c.fps = defaultFPS
	}
	return c, nil
}

// Username returns the name the server accepted.
func (c *Client) Username() string { return c.username }

// Close drops the control connection.
func (c *Client) Close() error { return c.conn.Close() }

// request writes one command and reads one reply.
func (c *Client) request(cmd protocol.Command) (protocol.Command, error) {
	if err := protocol.WriteCommand(c.conn, cmd); err != nil {
		return nil, err
	}
	reply, err := protocol.ReadCommand(c.conn)
	if errors.Is(err, protocol.ErrPeerClosed) {
		return nil, ErrServerClosed
	}
	return reply, err
}

// joinCall runs the media plane for a freshly joined room until the
// call ends. The control stream carries only membership notifications
// for the duration.
func (c *Client) joinCall(ctx context.Context, sid byte) error {
	udp, err := net.Dial("udp", net.JoinHostPort(c.host, strconv.Itoa(protocol.UDPPort)))
	if err != nil {
		return fmt.Errorf("opening media socket: %w", err)
	}
	defer udp.Close()
	c.joined = true

	cl := &call{
		sid:   sid,
		udp:   udp,
		src:   c.src,
		rend:  c.rend,
		peers: newPeerSet(),
		log:   c.log,
		fps:   c.fps,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cl.run(ctx) })
	g.Go(func() error {
		for {
			cmd, err := protocol.ReadCommand(c.conn)
			if err != nil {
				if errors.Is(err, protocol.ErrPeerClosed) {
					return ErrServerClosed
				}
				return err
			}
			cl.handleNotification(cmd)
		}
	})

	// Closing the control conn unblocks the notification reader.
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// withDefaultPort appends port when addr does not already carry one.
func withDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
