package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wesleygoyette/facetime-v4/internal/ascii"
	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

// ErrAlreadyInCall is returned by a second join attempt; a client
// process joins at most one call in its lifetime.
var ErrAlreadyInCall = errors.New("already joined a call in this session")

// peerSet tracks the latest decoded frame per participant: the local
// self view plus one slot per remote room tag. The send ticker, the
// datagram receiver, and the control reader all write it.
type peerSet struct {
	mu    sync.Mutex
	self  []byte
	peers map[byte][]byte
}

func newPeerSet() *peerSet {
	return &peerSet{peers: make(map[byte][]byte)}
}

// add reserves a slot for a room tag; the slot stays nil (a blank
// cell) until that member's first frame arrives.
func (ps *peerSet) add(rsid byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[rsid]; !ok {
		ps.peers[rsid] = nil
	}
}

func (ps *peerSet) remove(rsid byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.peers, rsid)
}

// setFrame stores the latest frame for a tag; frames for tags that
// have not joined are dropped.
func (ps *peerSet) setFrame(rsid byte, nibbles []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.peers[rsid]; ok {
		ps.peers[rsid] = nibbles
	}
}

func (ps *peerSet) setSelf(nibbles []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.self = nibbles
}

// snapshot returns the frames to compose: self first, then remote
// members in ascending tag order so the layout is stable across ticks.
func (ps *peerSet) snapshot() [][]byte {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	frames := make([][]byte, 0, len(ps.peers)+1)
	frames = append(frames, ps.self)
	for rsid := 0; rsid < 256; rsid++ {
		if frame, ok := ps.peers[byte(rsid)]; ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// call is one active room connection: the media socket and the shared
// participant state.
type call struct {
	sid   byte
	udp   net.Conn
	src   FrameSource
	rend  Renderer
	peers *peerSet
	log   zerolog.Logger
	fps   int
}

// run drives the media plane until ctx is cancelled. The control
// notifications for the same call are fed in by the owner through
// handleNotification.
func (c *call) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.sendLoop(ctx) })
	g.Go(func() error { return c.recvLoop(ctx) })

	// Closing the socket unblocks the receiver's blocking read.
	go func() {
		<-ctx.Done()
		c.udp.Close()
	}()

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendLoop captures, packs, and sends one frame per tick, then redraws
// the composite view.
func (c *call) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.fps))
	defer ticker.Stop()

	pkt := make([]byte, 1, 1+ascii.PackedFrameSize)
	pkt[0] = c.sid

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		gray, err := c.src.NextFrame()
		if err != nil {
			c.log.Debug().Err(err).Msg("capture failed, skipping frame")
			continue
		}
		packed, err := ascii.Pack(gray)
		if err != nil {
			c.log.Debug().Err(err).Msg("pack failed, skipping frame")
			continue
		}

		if _, err := c.udp.Write(append(pkt[:1], packed...)); err != nil {
			return err
		}

		// The self view shows the same mirrored samples the peers see.
		nibbles, err := ascii.Unpack(packed)
		if err != nil {
			return err
		}
		c.peers.setSelf(nibbles)

		cols, rows := c.rend.Size()
		if err := c.rend.Update(ascii.Compose(c.peers.snapshot(), cols, rows)); err != nil {
			return err
		}
	}
}

// recvLoop stores the latest frame per room tag. Undersized or
// oddly-sized datagrams are dropped without comment, matching the
// relay's tolerance.
func (c *call) recvLoop(ctx context.Context) error {
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, err := c.udp.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n < 1+ascii.PackedFrameSize {
			continue
		}

		nibbles, err := ascii.Unpack(buf[1 : 1+ascii.PackedFrameSize])
		if err != nil {
			continue
		}
		c.peers.setFrame(buf[0], nibbles)
	}
}

// handleNotification applies a control-plane membership change.
func (c *call) handleNotification(cmd protocol.Command) {
	switch n := cmd.(type) {
	case protocol.OtherUserJoinedRoom:
		c.peers.add(n.RSID)
	case protocol.OtherUserLeftRoom:
		c.peers.remove(n.RSID)
	default:
		c.log.Warn().Stringer("opcode", cmd.Opcode()).Msg("ignoring unexpected command during call")
	}
}
