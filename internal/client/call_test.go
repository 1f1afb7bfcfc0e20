package client

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleygoyette/facetime-v4/internal/ascii"
	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

func nibbleGrid(fill byte) []byte {
	grid := make([]byte, ascii.FrameWidth*ascii.FrameHeight)
	for i := range grid {
		grid[i] = fill
	}
	return grid
}

func TestPeerSetSnapshotOrder(t *testing.T) {
	ps := newPeerSet()
	ps.setSelf(nibbleGrid(1))
	ps.add(0x30)
	ps.add(0x10)
	ps.setFrame(0x30, nibbleGrid(3))

	frames := ps.snapshot()
	require.Len(t, frames, 3)
	assert.Equal(t, byte(1), frames[0][0], "self view comes first")
	assert.Nil(t, frames[1], "tag 0x10 has no frame yet")
	assert.Equal(t, byte(3), frames[2][0], "tags in ascending order")
}

func TestPeerSetDropsUnknownTag(t *testing.T) {
	ps := newPeerSet()
	ps.setFrame(0x42, nibbleGrid(9))
	assert.Len(t, ps.snapshot(), 1, "only the self slot")
}

func TestPeerSetRemove(t *testing.T) {
	ps := newPeerSet()
	ps.add(0x10)
	ps.remove(0x10)
	assert.Len(t, ps.snapshot(), 1)

	// Removing twice is harmless.
	ps.remove(0x10)
}

func TestPeerSetAddKeepsFrame(t *testing.T) {
	ps := newPeerSet()
	ps.add(0x10)
	ps.setFrame(0x10, nibbleGrid(7))

	// A duplicate join notification must not blank the slot.
	ps.add(0x10)
	frames := ps.snapshot()
	require.Len(t, frames, 2)
	assert.Equal(t, byte(7), frames[1][0])
}

func TestHandleNotification(t *testing.T) {
	cl := &call{peers: newPeerSet(), log: zerolog.Nop()}

	cl.handleNotification(protocol.OtherUserJoinedRoom{RSID: 0x20})
	assert.Len(t, cl.peers.snapshot(), 2)

	cl.handleNotification(protocol.OtherUserLeftRoom{RSID: 0x20})
	assert.Len(t, cl.peers.snapshot(), 1)

	// Anything else is logged and ignored.
	cl.handleNotification(protocol.HelloFromServer{})
	assert.Len(t, cl.peers.snapshot(), 1)
}
