// Package registry holds the server's in-memory membership state:
// active users, rooms, stream-id tables, and the per-user notification
// queues that carry membership events to live control sessions.
package registry

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

// MaxNameLength bounds usernames and room names.
const MaxNameLength = 20

// maxIDAttempts bounds the rejection-sampling loop for SIDs and RSIDs.
const maxIDAttempts = 10000

// busCapacity is the depth of each user's notification queue.
const busCapacity = 16

var (
	ErrNameInvalid   = errors.New("name is invalid")
	ErrNameTaken     = errors.New("username is already taken")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomNotFound  = errors.New("room does not exist")
	ErrRoomInUse     = errors.New("room is not empty")
	ErrStreamIDSpace = errors.New("could not allocate a free stream id")
)

// ValidName reports whether name is 1..=20 ASCII alphanumerics,
// underscores, or hyphens.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > MaxNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// room is a named membership set. Each member holds a RoomStreamID
// unique within the room for the duration of their call.
type room struct {
	name    string
	members map[string]byte // username → rsid
}

// JoinResult is what a successful JoinRoom hands back to the session.
type JoinResult struct {
	SID        byte   // globally unique id the client stamps on datagrams
	RSID       byte   // this user's sender tag within the room
	OtherRSIDs []byte // tags of members already in the room
}

// RoomInfo is a snapshot row for the ops API.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Registry is the process-wide membership state. Each table sits
// behind its own mutex; multi-table operations acquire in the fixed
// order rooms → sids → notify to stay cycle-free, and never publish
// onto a notification queue while holding any of them.
type Registry struct {
	log zerolog.Logger

	usersMu sync.Mutex
	users   []string // insertion order

	roomsMu sync.Mutex
	rooms   []*room // insertion order

	sidsMu sync.Mutex
	sids   map[byte]string // sid → username

	notifyMu sync.Mutex
	notify   map[string]chan protocol.Command
}

func New(log zerolog.Logger) *Registry {
	return &Registry{
		log:    log.With().Str("component", "registry").Logger(),
		sids:   make(map[byte]string),
		notify: make(map[string]chan protocol.Command),
	}
}

// RegisterUser claims a username and creates its notification queue.
func (r *Registry) RegisterUser(name string) error {
	if !ValidName(name) {
		return ErrNameInvalid
	}

	r.usersMu.Lock()
	for _, u := range r.users {
		if u == name {
			r.usersMu.Unlock()
			return ErrNameTaken
		}
	}
	r.users = append(r.users, name)
	r.usersMu.Unlock()

	r.notifyMu.Lock()
	r.notify[name] = make(chan protocol.Command, busCapacity)
	r.notifyMu.Unlock()

	r.log.Info().Str("user", name).Msg("user connected")
	return nil
}

// DeregisterUser runs the disconnect teardown: leave every room the
// user is in, remove the user from the active set, tell remaining
// co-members, then drop the notification queue. Idempotent.
func (r *Registry) DeregisterUser(name string) {
	type departure struct {
		rsid      byte
		remaining []string
	}
	var departures []departure

	r.roomsMu.Lock()
	for _, rm := range r.rooms {
		rsid, ok := rm.members[name]
		if !ok {
			continue
		}
		delete(rm.members, name)
		d := departure{rsid: rsid}
		for member := range rm.members {
			d.remaining = append(d.remaining, member)
		}
		departures = append(departures, d)
	}
	r.roomsMu.Unlock()

	r.sidsMu.Lock()
	for sid, owner := range r.sids {
		if owner == name {
			delete(r.sids, sid)
		}
	}
	r.sidsMu.Unlock()

	removed := false
	r.usersMu.Lock()
	for i, u := range r.users {
		if u == name {
			r.users = append(r.users[:i], r.users[i+1:]...)
			removed = true
			break
		}
	}
	r.usersMu.Unlock()

	for _, d := range departures {
		for _, member := range d.remaining {
			r.Publish(member, protocol.OtherUserLeftRoom{RSID: d.rsid})
		}
	}

	r.notifyMu.Lock()
	delete(r.notify, name)
	r.notifyMu.Unlock()

	if removed {
		r.log.Info().Str("user", name).Msg("user disconnected")
	}
}

// ListUsers returns the active usernames in connection order.
func (r *Registry) ListUsers() []string {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	out := make([]string, len(r.users))
	copy(out, r.users)
	return out
}

// ListRooms returns the room names in creation order.
func (r *Registry) ListRooms() []string {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	out := make([]string, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.name)
	}
	return out
}

// RoomInfos returns name and member count per room for the ops API.
func (r *Registry) RoomInfos() []RoomInfo {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, RoomInfo{Name: rm.name, Members: len(rm.members)})
	}
	return out
}

// UserCount returns the number of active users.
func (r *Registry) UserCount() int {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()
	return len(r.users)
}

// RoomCount returns the number of rooms.
func (r *Registry) RoomCount() int {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	return len(r.rooms)
}

// CreateRoom creates an empty named room.
func (r *Registry) CreateRoom(name string) error {
	if !ValidName(name) {
		return ErrNameInvalid
	}

	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	for _, rm := range r.rooms {
		if rm.name == name {
			return ErrRoomExists
		}
	}
	r.rooms = append(r.rooms, &room{name: name, members: make(map[string]byte)})
	r.log.Info().Str("room", name).Msg("room created")
	return nil
}

// DeleteRoom removes a room; only empty rooms may be deleted.
func (r *Registry) DeleteRoom(name string) error {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	for i, rm := range r.rooms {
		if rm.name != name {
			continue
		}
		if len(rm.members) > 0 {
			return ErrRoomInUse
		}
		r.rooms = append(r.rooms[:i], r.rooms[i+1:]...)
		r.log.Info().Str("room", name).Msg("room deleted")
		return nil
	}
	return ErrRoomNotFound
}

// JoinRoom adds user to the named room, allocating a fresh SID and
// RSID, and notifies the existing members. The caller is expected to
// relay OtherUserJoinedRoom for each OtherRSIDs entry to its own peer.
func (r *Registry) JoinRoom(name, user string) (JoinResult, error) {
	var (
		res    JoinResult
		others []string
	)

	r.roomsMu.Lock()
	var target *room
	for _, rm := range r.rooms {
		if rm.name == name {
			target = rm
			break
		}
	}
	if target == nil {
		r.roomsMu.Unlock()
		return JoinResult{}, ErrRoomNotFound
	}

	rsid, ok := freeRoomStreamID(target)
	if !ok {
		r.roomsMu.Unlock()
		return JoinResult{}, ErrStreamIDSpace
	}

	r.sidsMu.Lock()
	sid, ok := freeStreamID(r.sids)
	if !ok {
		r.sidsMu.Unlock()
		r.roomsMu.Unlock()
		return JoinResult{}, ErrStreamIDSpace
	}
	r.sids[sid] = user
	r.sidsMu.Unlock()

	for member, memberRSID := range target.members {
		others = append(others, member)
		res.OtherRSIDs = append(res.OtherRSIDs, memberRSID)
	}
	target.members[user] = rsid
	r.roomsMu.Unlock()

	res.SID = sid
	res.RSID = rsid

	for _, member := range others {
		r.Publish(member, protocol.OtherUserJoinedRoom{RSID: rsid})
	}

	r.log.Info().Str("user", user).Str("room", name).
		Uint8("sid", sid).Uint8("rsid", rsid).Msg("user joined room")
	return res, nil
}

// freeStreamID draws random bytes until one is absent from taken.
func freeStreamID(taken map[byte]string) (byte, bool) {
	for i := 0; i < maxIDAttempts; i++ {
		sid := byte(rand.Intn(256))
		if _, used := taken[sid]; !used {
			return sid, true
		}
	}
	return 0, false
}

// freeRoomStreamID draws random bytes until one is unused in the room.
func freeRoomStreamID(rm *room) (byte, bool) {
	for i := 0; i < maxIDAttempts; i++ {
		rsid := byte(rand.Intn(256))
		used := false
		for _, existing := range rm.members {
			if existing == rsid {
				used = true
				break
			}
		}
		if !used {
			return rsid, true
		}
	}
	return 0, false
}

// LookupSID resolves a datagram's stream id to its owner.
func (r *Registry) LookupSID(sid byte) (string, bool) {
	r.sidsMu.Lock()
	defer r.sidsMu.Unlock()
	user, ok := r.sids[sid]
	return user, ok
}

// Route resolves a sender's SID to its room-scoped tag and the other
// members of that room, consulted fresh per datagram by the relay.
func (r *Registry) Route(sid byte) (rsid byte, peers []string, ok bool) {
	user, ok := r.LookupSID(sid)
	if !ok {
		return 0, nil, false
	}

	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	for _, rm := range r.rooms {
		tag, member := rm.members[user]
		if !member {
			continue
		}
		for other := range rm.members {
			if other != user {
				peers = append(peers, other)
			}
		}
		return tag, peers, true
	}
	return 0, nil, false
}

// Subscribe returns the receive side of a user's notification queue.
func (r *Registry) Subscribe(name string) (<-chan protocol.Command, bool) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	ch, ok := r.notify[name]
	return ch, ok
}

// Publish enqueues a membership event for name. Full or missing
// queues drop the event with a log line; there is no retry.
func (r *Registry) Publish(name string, cmd protocol.Command) {
	r.notifyMu.Lock()
	ch, ok := r.notify[name]
	r.notifyMu.Unlock()

	if !ok {
		r.log.Warn().Str("user", name).Stringer("event", cmd.Opcode()).
			Msg("dropping event for missing subscriber")
		return
	}
	select {
	case ch <- cmd:
	default:
		r.log.Warn().Str("user", name).Stringer("event", cmd.Opcode()).
			Msg("dropping event: queue full")
	}
}
