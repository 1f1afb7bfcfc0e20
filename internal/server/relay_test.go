package server

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleygoyette/facetime-v4/internal/registry"
)

// relayFixture is a running relay plus two users joined to one room.
type relayFixture struct {
	reg       *registry.Registry
	relayAddr *net.UDPAddr
	alice     *net.UDPConn
	bob       *net.UDPConn
	aliceJoin registry.JoinResult
	bobJoin   registry.JoinResult
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	reg := registry.New(zerolog.Nop())
	require.NoError(t, reg.RegisterUser("alice"))
	require.NoError(t, reg.RegisterUser("bob"))
	require.NoError(t, reg.CreateRoom("r1"))

	aliceJoin, err := reg.JoinRoom("r1", "alice")
	require.NoError(t, err)
	bobJoin, err := reg.JoinRoom("r1", "bob")
	require.NoError(t, err)

	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	relay := NewRelay(serverConn, reg, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		serverConn.Close()
		<-done
	})

	dial := func() *net.UDPConn {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return &relayFixture{
		reg:       reg,
		relayAddr: serverConn.LocalAddr().(*net.UDPAddr),
		alice:     dial(),
		bob:       dial(),
		aliceJoin: aliceJoin,
		bobJoin:   bobJoin,
	}
}

func (f *relayFixture) sendFrom(t *testing.T, conn *net.UDPConn, pkt []byte) {
	t.Helper()
	_, err := conn.WriteToUDP(pkt, f.relayAddr)
	require.NoError(t, err)
}

func recvPacket(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func assertNoPacket(t *testing.T, conn *net.UDPConn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	if err == nil {
		t.Fatalf("unexpected packet: %x", buf[:n])
	}
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}

func TestRelayForwardsToRoomPeers(t *testing.T) {
	f := newRelayFixture(t)

	// Bob announces himself so the relay learns his endpoint. Alice is
	// still unknown, so his datagram fans out to nobody.
	f.sendFrom(t, f.bob, []byte{f.bobJoin.SID, 0x01})
	assertNoPacket(t, f.alice)

	payload := bytes.Repeat([]byte{0xAB}, 64)
	f.sendFrom(t, f.alice, append([]byte{f.aliceJoin.SID}, payload...))

	got := recvPacket(t, f.bob)
	require.GreaterOrEqual(t, len(got), 1)
	assert.Equal(t, f.aliceJoin.RSID, got[0], "stream id must be rewritten to the sender's room tag")
	assert.Equal(t, payload, got[1:])

	// The sender never receives its own media back.
	assertNoPacket(t, f.alice)
}

func TestRelayFollowsEndpointRebind(t *testing.T) {
	f := newRelayFixture(t)

	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x00})
	f.sendFrom(t, f.bob, []byte{f.bobJoin.SID, 0x01})
	recvPacket(t, f.alice)

	// Bob moves to a new socket; the next datagram he sends must
	// redirect fan-out to it.
	rebound, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rebound.Close()

	_, err = rebound.WriteToUDP([]byte{f.bobJoin.SID, 0x02}, f.relayAddr)
	require.NoError(t, err)
	recvPacket(t, f.alice)

	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x03})
	got := recvPacket(t, rebound)
	assert.Equal(t, []byte{f.aliceJoin.RSID, 0x03}, got)
	assertNoPacket(t, f.bob)
}

func TestRelayDropsUnroutable(t *testing.T) {
	f := newRelayFixture(t)

	// Find a stream id no member holds.
	var unknown byte
	for sid := 0; sid < 256; sid++ {
		if _, ok := f.reg.LookupSID(byte(sid)); !ok {
			unknown = byte(sid)
			break
		}
	}

	// Both peers make themselves known first.
	f.sendFrom(t, f.bob, []byte{f.bobJoin.SID, 0x01})
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x01})
	recvPacket(t, f.bob)

	f.sendFrom(t, f.alice, []byte{unknown, 0xFF})
	assertNoPacket(t, f.bob)

	// A datagram too short to carry a payload is dropped too.
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID})
	assertNoPacket(t, f.bob)

	// The relay keeps serving routable traffic afterwards.
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x42})
	assert.Equal(t, []byte{f.aliceJoin.RSID, 0x42}, recvPacket(t, f.bob))
}

func TestRelayForgetsEndpointAfterReconnect(t *testing.T) {
	f := newRelayFixture(t)

	f.sendFrom(t, f.bob, []byte{f.bobJoin.SID, 0x01})
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x02})
	recvPacket(t, f.bob)

	// Bob disconnects and comes back under the same name with a fresh
	// stream id. Re-roll the join until the id actually differs so the
	// stale entry is detectable.
	bobJoin2 := f.bobJoin
	for attempt := 0; attempt < 10 && bobJoin2.SID == f.bobJoin.SID; attempt++ {
		f.reg.DeregisterUser("bob")
		require.NoError(t, f.reg.RegisterUser("bob"))
		var err error
		bobJoin2, err = f.reg.JoinRoom("r1", "bob")
		require.NoError(t, err)
	}
	require.NotEqual(t, f.bobJoin.SID, bobJoin2.SID)

	// Until the new session sends, fan-out must not hit the address
	// learned from the old one.
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x03})
	assertNoPacket(t, f.bob)

	// Bob's new socket announces itself and takes over.
	rejoined, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rejoined.Close()
	_, err = rejoined.WriteToUDP([]byte{bobJoin2.SID, 0x04}, f.relayAddr)
	require.NoError(t, err)
	recvPacket(t, f.alice)

	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x05})
	got := recvPacket(t, rejoined)
	assert.Equal(t, []byte{f.aliceJoin.RSID, 0x05}, got)
	assertNoPacket(t, f.bob)
}

func TestRelayStatsResetOnRead(t *testing.T) {
	f := newRelayFixture(t)

	f.sendFrom(t, f.bob, []byte{f.bobJoin.SID, 0x01})
	f.sendFrom(t, f.alice, []byte{f.aliceJoin.SID, 0x02, 0x03})
	recvPacket(t, f.bob)

	relay := NewRelay(nil, f.reg, zerolog.Nop())
	relay.datagramsIn.Add(3)
	relay.bytesIn.Add(128)
	relay.fanOutSent.Add(2)

	datagrams, bytes, sent := relay.Stats()
	assert.Equal(t, uint64(3), datagrams)
	assert.Equal(t, uint64(128), bytes)
	assert.Equal(t, uint64(2), sent)

	datagrams, bytes, sent = relay.Stats()
	assert.Zero(t, datagrams)
	assert.Zero(t, bytes)
	assert.Zero(t, sent)
}
