package protocol

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrPeerClosed signals a clean EOF at an opcode boundary: the peer
// shut the connection down rather than sending a malformed frame.
var ErrPeerClosed = errors.New("peer closed the connection")

// WireError is a fatal protocol failure: unknown opcode, truncated
// frame, or string bytes that are not valid UTF-8.
type WireError struct {
	Op  Opcode // opcode being decoded, when known
	Msg string
	Err error
}

func (e *WireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("protocol: %s %s", e.Op, e.Msg)
}

func (e *WireError) Unwrap() error { return e.Err }

// ErrOversize is returned by Encode when a string payload exceeds 255
// bytes or a multistring carries more than 255 entries.
var ErrOversize = errors.New("protocol: payload exceeds wire limits")

// Encode renders cmd as its wire bytes: opcode, then the payload in
// the encoding implied by the opcode's kind.
func Encode(cmd Command) ([]byte, error) {
	op := cmd.Opcode()
	switch c := cmd.(type) {
	case HelloFromClient:
		return encodeString(op, c.Username)
	case InvalidUsername:
		return encodeString(op, c.Reason)
	case CreateRoom:
		return encodeString(op, c.Name)
	case InvalidRoomName:
		return encodeString(op, c.Reason)
	case JoinRoom:
		return encodeString(op, c.Name)
	case InvalidJoinRoom:
		return encodeString(op, c.Reason)
	case DeleteRoom:
		return encodeString(op, c.Name)
	case ReturnActiveUsers:
		return encodeMultiString(op, c.Users)
	case ReturnRooms:
		return encodeMultiString(op, c.Rooms)
	case JoinRoomSuccess:
		return []byte{byte(op), c.SID}, nil
	case OtherUserJoinedRoom:
		return []byte{byte(op), c.RSID}, nil
	case OtherUserLeftRoom:
		return []byte{byte(op), c.RSID}, nil
	case HelloFromServer, GetActiveUsers, CreateRoomSuccess, GetRooms, DeleteRoomSuccess:
		return []byte{byte(op)}, nil
	}
	return nil, fmt.Errorf("protocol: cannot encode %T", cmd)
}

func encodeString(op Opcode, s string) ([]byte, error) {
	if len(s) > 255 {
		return nil, fmt.Errorf("%w: string is %d bytes", ErrOversize, len(s))
	}
	buf := make([]byte, 0, 2+len(s))
	buf = append(buf, byte(op), byte(len(s)))
	return append(buf, s...), nil
}

func encodeMultiString(op Opcode, ss []string) ([]byte, error) {
	if len(ss) > 255 {
		return nil, fmt.Errorf("%w: %d strings", ErrOversize, len(ss))
	}
	size := 2
	for _, s := range ss {
		if len(s) > 255 {
			return nil, fmt.Errorf("%w: string is %d bytes", ErrOversize, len(s))
		}
		size += 1 + len(s)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, byte(op), byte(len(ss)))
	for _, s := range ss {
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// WriteCommand encodes cmd and writes it to w in a single Write call,
// so concurrent writers interleave at command granularity.
func WriteCommand(w io.Writer, cmd Command) error {
	buf, err := Encode(cmd)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadCommand reads and decodes exactly one command from r. A clean
// EOF before the opcode byte returns ErrPeerClosed; any failure after
// that point is a *WireError and consumes no more than the frame it
// was attempting to parse.
func ReadCommand(r io.Reader) (Command, error) {
	var opBuf [1]byte
	if _, err := io.ReadFull(r, opBuf[:]); err != nil {
		if err == io.EOF {
			return nil, ErrPeerClosed
		}
		return nil, &WireError{Msg: "reading opcode", Err: err}
	}

	op := Opcode(opBuf[0])
	if !op.Valid() {
		return nil, &WireError{Op: op, Msg: "unknown opcode"}
	}

	switch op.Kind() {
	case PayloadNone:
		switch op {
		case OpHelloFromServer:
			return HelloFromServer{}, nil
		case OpGetActiveUsers:
			return GetActiveUsers{}, nil
		case OpCreateRoomSuccess:
			return CreateRoomSuccess{}, nil
		case OpGetRooms:
			return GetRooms{}, nil
		case OpDeleteRoomSuccess:
			return DeleteRoomSuccess{}, nil
		}

	case PayloadString:
		s, err := readString(r)
		if err != nil {
			return nil, &WireError{Op: op, Msg: "reading string payload", Err: err}
		}
		switch op {
		case OpHelloFromClient:
			return HelloFromClient{Username: s}, nil
		case OpInvalidUsername:
			return InvalidUsername{Reason: s}, nil
		case OpCreateRoom:
			return CreateRoom{Name: s}, nil
		case OpInvalidRoomName:
			return InvalidRoomName{Reason: s}, nil
		case OpJoinRoom:
			return JoinRoom{Name: s}, nil
		case OpInvalidJoinRoom:
			return InvalidJoinRoom{Reason: s}, nil
		case OpDeleteRoom:
			return DeleteRoom{Name: s}, nil
		}

	case PayloadMultiString:
		var countBuf [1]byte
		if _, err := io.ReadFull(r, countBuf[:]); err != nil {
			return nil, &WireError{Op: op, Msg: "reading string count", Err: noEOF(err)}
		}
		ss := make([]string, 0, countBuf[0])
		for i := 0; i < int(countBuf[0]); i++ {
			s, err := readString(r)
			if err != nil {
				return nil, &WireError{Op: op, Msg: fmt.Sprintf("reading string %d", i), Err: err}
			}
			ss = append(ss, s)
		}
		switch op {
		case OpReturnActiveUsers:
			return ReturnActiveUsers{Users: ss}, nil
		case OpReturnRooms:
			return ReturnRooms{Rooms: ss}, nil
		}

	case PayloadSID, PayloadRSID:
		var idBuf [1]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, &WireError{Op: op, Msg: "reading stream id", Err: noEOF(err)}
		}
		switch op {
		case OpJoinRoomSuccess:
			return JoinRoomSuccess{SID: idBuf[0]}, nil
		case OpOtherUserJoinedRoom:
			return OtherUserJoinedRoom{RSID: idBuf[0]}, nil
		case OpOtherUserLeftRoom:
			return OtherUserLeftRoom{RSID: idBuf[0]}, nil
		}
	}

	return nil, &WireError{Op: op, Msg: "opcode has no decoder"}
}

func readString(r io.Reader) (string, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", noEOF(err)
	}
	buf := make([]byte, lenBuf[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", noEOF(err)
	}
	if !utf8.Valid(buf) {
		return "", errors.New("invalid UTF-8")
	}
	return string(buf), nil
}

// noEOF converts a bare EOF into ErrUnexpectedEOF: once the opcode has
// been read, running out of bytes means a truncated frame, not a clean
// close.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
