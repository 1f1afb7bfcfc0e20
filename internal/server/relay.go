package server

import (
	"context"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// Relay is the media plane: a single-task UDP forwarder. For each
// ingress datagram `[sid | payload]` it resolves the sender through
// the registry and fans `[rsid | payload]` out to the other members of
// the sender's room. Unroutable datagrams are dropped silently.
//
// The only state the relay keeps across datagrams is the last source
// address seen per username, so fan-out follows clients through NAT
// rebinds and ephemeral port changes.
type Relay struct {
	conn *net.UDPConn
	reg  *registry.Registry
	log  zerolog.Logger

	// endpoints is owned by the relay task; no lock needed.
	endpoints map[string]endpoint

	// Counters accumulate until the next Stats call.
	datagramsIn atomic.Uint64
	bytesIn     atomic.Uint64
	fanOutSent  atomic.Uint64
}

// endpoint is a learned source address, tagged with the stream id that
// learned it. A freed stream id marks the address as belonging to a
// previous session of the same username.
type endpoint struct {
	addr *net.UDPAddr
	sid  byte
}

func NewRelay(conn *net.UDPConn, reg *registry.Registry, log zerolog.Logger) *Relay {
	return &Relay{
		conn:      conn,
		reg:       reg,
		log:       log.With().Str("component", "relay").Logger(),
		endpoints: make(map[string]endpoint),
	}
}

// Run receives datagrams until ctx is cancelled (the socket is closed
// from outside) or the socket fails.
func (rl *Relay) Run(ctx context.Context) error {
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, addr, err := rl.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		rl.forward(buf[:n], addr)
	}
}

func (rl *Relay) forward(pkt []byte, from *net.UDPAddr) {
	rl.datagramsIn.Add(1)
	rl.bytesIn.Add(uint64(len(pkt)))

	if len(pkt) < 2 {
		return
	}

	sid := pkt[0]
	user, ok := rl.reg.LookupSID(sid)
	if !ok {
		return
	}

	// Learn the sender's endpoint on every datagram.
	rl.endpoints[user] = endpoint{addr: from, sid: sid}

	rsid, peers, ok := rl.reg.Route(sid)
	if !ok {
		return
	}

	// Stamp the sender's room tag over the stream id before fan-out.
	pkt[0] = rsid

	for _, peer := range peers {
		ep, known := rl.endpoints[peer]
		if !known {
			// The member has not sent a datagram yet; skip rather
			// than queue.
			continue
		}
		if owner, live := rl.reg.LookupSID(ep.sid); !live || owner != peer {
			// The address was learned in a previous session of this
			// username; forget it until the new session sends.
			delete(rl.endpoints, peer)
			continue
		}
		if _, err := rl.conn.WriteToUDP(pkt, ep.addr); err != nil {
			rl.log.Debug().Err(err).Str("peer", peer).Msg("fan-out send failed")
			continue
		}
		rl.fanOutSent.Add(1)
	}
}

// Stats returns the counters accumulated since the previous call and
// resets them.
func (rl *Relay) Stats() (datagrams, bytes, sent uint64) {
	return rl.datagramsIn.Swap(0), rl.bytesIn.Swap(0), rl.fanOutSent.Swap(0)
}
