// Package ascii implements the media frame codec: 4-bit grayscale
// nibble packing for the wire, and rendering packed frames to text for
// a terminal.
package ascii

import (
	"errors"
	"fmt"
)

// Fixed dimensions of the wire format. Every packed frame is a
// FrameWidth×FrameHeight grid regardless of camera or terminal size.
const (
	FrameWidth  = 92
	FrameHeight = 28

	// PackedFrameSize is the wire size of one frame: two 4-bit samples
	// per byte.
	PackedFrameSize = FrameWidth * FrameHeight / 2
)

// ErrBadFrameSize is returned when a buffer does not match the fixed
// grid dimensions.
var ErrBadFrameSize = errors.New("ascii: buffer size does not match frame dimensions")

// Quantize maps an 8-bit luma sample to a 4-bit sample:
// min(15, round(v*15/255)).
func Quantize(v byte) byte {
	q := (int(v)*15 + 127) / 255
	if q > 15 {
		q = 15
	}
	return byte(q)
}

// Pack quantises a FrameWidth×FrameHeight grayscale buffer (row-major,
// one byte per pixel) into PackedFrameSize bytes, two samples per byte
// with the high nibble first. Rows are mirrored horizontally so that
// the sender's own rendering reads like a mirror.
func Pack(gray []byte) ([]byte, error) {
	if len(gray) != FrameWidth*FrameHeight {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadFrameSize, len(gray), FrameWidth*FrameHeight)
	}

	packed := make([]byte, 0, PackedFrameSize)
	for y := 0; y < FrameHeight; y++ {
		row := gray[y*FrameWidth : (y+1)*FrameWidth]
		for x := 0; x < FrameWidth; x += 2 {
			hi := Quantize(row[FrameWidth-1-x])
			lo := Quantize(row[FrameWidth-1-(x+1)])
			packed = append(packed, hi<<4|lo)
		}
	}
	return packed, nil
}

// Unpack expands a packed frame into FrameWidth×FrameHeight nibble
// samples (each 0..15), in the mirrored order Pack produced.
func Unpack(packed []byte) ([]byte, error) {
	if len(packed) != PackedFrameSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrBadFrameSize, len(packed), PackedFrameSize)
	}

	nibbles := make([]byte, 0, FrameWidth*FrameHeight)
	for _, b := range packed {
		nibbles = append(nibbles, b>>4, b&0x0F)
	}
	return nibbles, nil
}
