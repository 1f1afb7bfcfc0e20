package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// Validation messages sent to clients. The exact texts are part of the
// user-visible behaviour.
const (
	msgBadUsername = "Username must contain only alphanumeric characters (A-Z, a-z, 0-9, _, -) and be 1-20 characters long."
	msgBadRoomName = "Room name must contain only alphanumeric characters (A-Z, a-z, 0-9, _, -) and be 1-20 characters long."
)

// session is one control connection's state machine: Connecting →
// Greeting → Idle → InCall, with any fatal error or EOF leading to
// teardown.
type session struct {
	conn     net.Conn
	reg      *registry.Registry
	log      zerolog.Logger
	username string
}

func newSession(conn net.Conn, reg *registry.Registry, log zerolog.Logger) *session {
	return &session{
		conn: conn,
		reg:  reg,
		log:  log.With().Str("component", "session").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// run drives the session to completion. The deferred teardown runs
// unconditionally so peers always see a consistent membership view.
func (s *session) run(ctx context.Context) {
	defer func() {
		s.conn.Close()
		if s.username != "" {
			s.reg.DeregisterUser(s.username)
		}
	}()

	if err := s.greet(); err != nil {
		if !errors.Is(err, protocol.ErrPeerClosed) {
			s.log.Warn().Err(err).Msg("greeting failed")
		}
		return
	}

	err := s.serve(ctx)
	if err != nil && !errors.Is(err, protocol.ErrPeerClosed) && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("user", s.username).Msg("session ended with error")
	}
}

// greet reads the one command allowed in Connecting: a HelloFromClient
// carrying a valid, unclaimed username.
func (s *session) greet() error {
	cmd, err := protocol.ReadCommand(s.conn)
	if err != nil {
		return err
	}

	hello, ok := cmd.(protocol.HelloFromClient)
	if !ok {
		return fmt.Errorf("expected HelloFromClient, got %s", cmd.Opcode())
	}

	if err := s.reg.RegisterUser(hello.Username); err != nil {
		reason := msgBadUsername
		if errors.Is(err, registry.ErrNameTaken) {
			reason = fmt.Sprintf("Username '%s' is already taken.", hello.Username)
		}
		s.log.Info().Str("user", hello.Username).Msg("rejected username")
		// Best-effort rejection; the session closes either way.
		protocol.WriteCommand(s.conn, protocol.InvalidUsername{Reason: reason})
		return fmt.Errorf("username rejected: %w", err)
	}

	s.username = hello.Username
	return protocol.WriteCommand(s.conn, protocol.HelloFromServer{})
}

// serve loops in Idle handling requests until the peer disconnects or
// a JoinRoom moves the session into a call.
func (s *session) serve(ctx context.Context) error {
	for {
		cmd, err := protocol.ReadCommand(s.conn)
		if err != nil {
			return err
		}

		switch c := cmd.(type) {
		case protocol.GetActiveUsers:
			err = protocol.WriteCommand(s.conn, protocol.ReturnActiveUsers{Users: s.reg.ListUsers()})

		case protocol.GetRooms:
			err = protocol.WriteCommand(s.conn, protocol.ReturnRooms{Rooms: s.reg.ListRooms()})

		case protocol.CreateRoom:
			err = s.handleCreateRoom(c.Name)

		case protocol.DeleteRoom:
			err = s.handleDeleteRoom(c.Name)

		case protocol.JoinRoom:
			var inCall bool
			inCall, err = s.handleJoinRoom(c.Name)
			if err == nil && inCall {
				return s.serveCall(ctx)
			}

		default:
			// Valid opcode, but not a client request; ignore it.
			s.log.Warn().Str("user", s.username).Stringer("opcode", cmd.Opcode()).
				Msg("ignoring unexpected command")
		}
		if err != nil {
			return err
		}
	}
}

func (s *session) handleCreateRoom(name string) error {
	switch err := s.reg.CreateRoom(name); {
	case errors.Is(err, registry.ErrNameInvalid):
		return protocol.WriteCommand(s.conn, protocol.InvalidRoomName{Reason: msgBadRoomName})
	case errors.Is(err, registry.ErrRoomExists):
		return protocol.WriteCommand(s.conn, protocol.InvalidRoomName{
			Reason: fmt.Sprintf("Room '%s' already exists.", name),
		})
	case err != nil:
		return err
	}
	return protocol.WriteCommand(s.conn, protocol.CreateRoomSuccess{})
}

func (s *session) handleDeleteRoom(name string) error {
	switch err := s.reg.DeleteRoom(name); {
	case errors.Is(err, registry.ErrRoomNotFound):
		return protocol.WriteCommand(s.conn, protocol.InvalidRoomName{
			Reason: fmt.Sprintf("Room '%s' does not exist.", name),
		})
	case errors.Is(err, registry.ErrRoomInUse):
		return protocol.WriteCommand(s.conn, protocol.InvalidRoomName{
			Reason: fmt.Sprintf("Room '%s' is in use and cannot be deleted at this time.", name),
		})
	case err != nil:
		return err
	}
	return protocol.WriteCommand(s.conn, protocol.DeleteRoomSuccess{})
}

// handleJoinRoom reports (true, nil) when the session has entered a
// call and should stop parsing requests.
func (s *session) handleJoinRoom(name string) (bool, error) {
	res, err := s.reg.JoinRoom(name, s.username)
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		return false, protocol.WriteCommand(s.conn, protocol.InvalidJoinRoom{
			Reason: fmt.Sprintf("Room '%s' does not exist.", name),
		})
	case errors.Is(err, registry.ErrStreamIDSpace):
		return false, protocol.WriteCommand(s.conn, protocol.InvalidJoinRoom{
			Reason: fmt.Sprintf("Room '%s' has no free stream ids. Please try again.", name),
		})
	case err != nil:
		return false, err
	}

	if err := protocol.WriteCommand(s.conn, protocol.JoinRoomSuccess{SID: res.SID}); err != nil {
		return false, err
	}
	// The joiner learns each pre-existing member's tag immediately
	// after the success reply.
	for _, rsid := range res.OtherRSIDs {
		if err := protocol.WriteCommand(s.conn, protocol.OtherUserJoinedRoom{RSID: rsid}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// serveCall splits the session into a reader that watches for the
// peer closing the stream and a writer that drains the notification
// queue. Whichever side fails first cancels the other.
func (s *session) serveCall(ctx context.Context) error {
	events, ok := s.reg.Subscribe(s.username)
	if !ok {
		return fmt.Errorf("no notification queue for %s", s.username)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The client sends nothing during a call; reading serves only
		// to detect closure.
		buf := make([]byte, 256)
		for {
			if _, err := s.conn.Read(buf); err != nil {
				return protocol.ErrPeerClosed
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cmd := <-events:
				if err := protocol.WriteCommand(s.conn, cmd); err != nil {
					return err
				}
			}
		}
	})

	// Closing the conn unblocks the reader once the writer fails, and
	// vice versa via the shared context.
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	return g.Wait()
}
