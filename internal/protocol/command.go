// Package protocol defines the framed control protocol spoken over the
// TCP channel between client and server, plus the shared port and
// datagram constants for the media plane.
package protocol

import "fmt"

// Network defaults shared by both binaries.
const (
	TCPPort = 8069 // control channel
	UDPPort = 8070 // media datagrams

	// MaxDatagram bounds a media datagram: 1-byte stream id plus payload.
	MaxDatagram = 1500
)

// Opcode is the single-byte command identifier on the wire. The table
// starts at 0x45 and increments in declaration order; new opcodes are
// appended at the end so both sides stay in agreement.
type Opcode byte

const (
	OpHelloFromClient Opcode = 0x45 + iota
	OpHelloFromServer
	OpInvalidUsername
	OpGetActiveUsers
	OpReturnActiveUsers
	OpCreateRoom
	OpInvalidRoomName
	OpCreateRoomSuccess
	OpGetRooms
	OpReturnRooms
	OpJoinRoom
	OpJoinRoomSuccess
	OpInvalidJoinRoom
	OpOtherUserJoinedRoom
	OpOtherUserLeftRoom
	OpDeleteRoom
	OpDeleteRoomSuccess

	opEnd // one past the last valid opcode
)

// PayloadKind describes the bytes that follow an opcode.
type PayloadKind int

const (
	PayloadNone        PayloadKind = iota // no payload bytes
	PayloadString                         // 1-byte length, then UTF-8 bytes
	PayloadMultiString                    // 1-byte count, then count length-prefixed strings
	PayloadSID                            // exactly 1 byte: a StreamID
	PayloadRSID                           // exactly 1 byte: a RoomStreamID
)

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op >= OpHelloFromClient && op < opEnd
}

// Kind returns the payload kind implied by the opcode. The mapping is
// part of the protocol, not a local detail.
func (op Opcode) Kind() PayloadKind {
	switch op {
	case OpHelloFromServer, OpGetActiveUsers, OpCreateRoomSuccess, OpGetRooms, OpDeleteRoomSuccess:
		return PayloadNone
	case OpHelloFromClient, OpInvalidUsername, OpCreateRoom, OpInvalidRoomName,
		OpJoinRoom, OpInvalidJoinRoom, OpDeleteRoom:
		return PayloadString
	case OpReturnActiveUsers, OpReturnRooms:
		return PayloadMultiString
	case OpJoinRoomSuccess:
		return PayloadSID
	case OpOtherUserJoinedRoom, OpOtherUserLeftRoom:
		return PayloadRSID
	}
	return PayloadNone
}

func (op Opcode) String() string {
	switch op {
	case OpHelloFromClient:
		return "HelloFromClient"
	case OpHelloFromServer:
		return "HelloFromServer"
	case OpInvalidUsername:
		return "InvalidUsername"
	case OpGetActiveUsers:
		return "GetActiveUsers"
	case OpReturnActiveUsers:
		return "ReturnActiveUsers"
	case OpCreateRoom:
		return "CreateRoom"
	case OpInvalidRoomName:
		return "InvalidRoomName"
	case OpCreateRoomSuccess:
		return "CreateRoomSuccess"
	case OpGetRooms:
		return "GetRooms"
	case OpReturnRooms:
		return "ReturnRooms"
	case OpJoinRoom:
		return "JoinRoom"
	case OpJoinRoomSuccess:
		return "JoinRoomSuccess"
	case OpInvalidJoinRoom:
		return "InvalidJoinRoom"
	case OpOtherUserJoinedRoom:
		return "OtherUserJoinedRoom"
	case OpOtherUserLeftRoom:
		return "OtherUserLeftRoom"
	case OpDeleteRoom:
		return "DeleteRoom"
	case OpDeleteRoomSuccess:
		return "DeleteRoomSuccess"
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(op))
}

// Command is one decoded control message. Concrete types carry the
// payload fields; payload-less commands are zero-width structs.
type Command interface {
	Opcode() Opcode
}

// HelloFromClient opens a session and claims a username.
type HelloFromClient struct{ Username string }

// HelloFromServer accepts the client's hello.
type HelloFromServer struct{}

// InvalidUsername rejects the hello with a human-readable reason.
type InvalidUsername struct{ Reason string }

// GetActiveUsers asks for the usernames of all connected clients.
type GetActiveUsers struct{}

// ReturnActiveUsers answers GetActiveUsers.
type ReturnActiveUsers struct{ Users []string }

// CreateRoom asks the server to create a named room.
type CreateRoom struct{ Name string }

// InvalidRoomName rejects a room operation with a reason.
type InvalidRoomName struct{ Reason string }

// CreateRoomSuccess confirms CreateRoom.
type CreateRoomSuccess struct{}

// GetRooms asks for the names of all rooms.
type GetRooms struct{}

// ReturnRooms answers GetRooms.
type ReturnRooms struct{ Rooms []string }

// JoinRoom asks to join a named room and start a call.
type JoinRoom struct{ Name string }

// JoinRoomSuccess confirms the join and assigns the caller's StreamID.
type JoinRoomSuccess struct{ SID byte }

// InvalidJoinRoom rejects JoinRoom with a reason.
type InvalidJoinRoom struct{ Reason string }

// OtherUserJoinedRoom tells a call participant that a member with the
// given RoomStreamID is now in the room.
type OtherUserJoinedRoom struct{ RSID byte }

// OtherUserLeftRoom tells a call participant that the member with the
// given RoomStreamID has left.
type OtherUserLeftRoom struct{ RSID byte }

// DeleteRoom asks the server to delete an empty room.
type DeleteRoom struct{ Name string }

// DeleteRoomSuccess confirms DeleteRoom.
type DeleteRoomSuccess struct{}

func (HelloFromClient) Opcode() Opcode     { return OpHelloFromClient }
func (HelloFromServer) Opcode() Opcode     { return OpHelloFromServer }
func (InvalidUsername) Opcode() Opcode     { return OpInvalidUsername }
func (GetActiveUsers) Opcode() Opcode      { return OpGetActiveUsers }
func (ReturnActiveUsers) Opcode() Opcode   { return OpReturnActiveUsers }
func (CreateRoom) Opcode() Opcode          { return OpCreateRoom }
func (InvalidRoomName) Opcode() Opcode     { return OpInvalidRoomName }
func (CreateRoomSuccess) Opcode() Opcode   { return OpCreateRoomSuccess }
func (GetRooms) Opcode() Opcode            { return OpGetRooms }
func (ReturnRooms) Opcode() Opcode         { return OpReturnRooms }
func (JoinRoom) Opcode() Opcode            { return OpJoinRoom }
func (JoinRoomSuccess) Opcode() Opcode     { return OpJoinRoomSuccess }
func (InvalidJoinRoom) Opcode() Opcode     { return OpInvalidJoinRoom }
func (OtherUserJoinedRoom) Opcode() Opcode { return OpOtherUserJoinedRoom }
func (OtherUserLeftRoom) Opcode() Opcode   { return OpOtherUserLeftRoom }
func (DeleteRoom) Opcode() Opcode          { return OpDeleteRoom }
func (DeleteRoomSuccess) Opcode() Opcode   { return OpDeleteRoomSuccess }
