package client

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wesleygoyette/facetime-v4/internal/ascii"
)

// ErrEmptyFrame is returned by a FrameSource whose device produced no
// data this tick. The call loop logs it and skips the send.
var ErrEmptyFrame = errors.New("empty frame")

// FrameSource produces one grayscale frame per call: FrameWidth *
// FrameHeight bytes in row-major order, 0 = black, 255 = white. A
// webcam capture would sit behind this interface; the built-in
// implementations are synthetic test patterns.
type FrameSource interface {
	NextFrame() ([]byte, error)
}

// pattern animates a synthetic frame. The sample function returns a
// glyph index (0..15) for a pixel at animation step t; indexes are
// widened to gray so they survive the 4-bit quantisation unchanged.
type pattern struct {
	sample func(t, x, y int) int
	count  int
	buf    []byte
}

var patterns = map[string]func(t, x, y int) int{
	// Glyph ramp scrolling diagonally across the frame.
	"scroll": func(t, x, y int) int {
		return (x + y + t) % 16
	},
	// Concentric rings pulsing out from the centre.
	"pulse": func(t, x, y int) int {
		dx := float64(x) - float64(ascii.FrameWidth)/2
		dy := float64(y) - float64(ascii.FrameHeight)/2
		dist := int(math.Sqrt(dx*dx+dy*dy) / 2.5)
		return (dist + t) % 16
	},
	// A single horizontal sine trace, like a broken CRT.
	"tv": func(t, x, y int) int {
		wave := int(math.Sin(float64(x)/5+float64(t)/5)*5) + ascii.FrameHeight/2
		if wave == y {
			return 15
		}
		return 0
	},
}

// PatternNames lists the available test patterns, sorted.
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPattern returns the named synthetic FrameSource.
func NewPattern(name string) (FrameSource, error) {
	sample, ok := patterns[name]
	if !ok {
		return nil, fmt.Errorf("unknown test pattern %q (have %v)", name, PatternNames())
	}
	return &pattern{
		sample: sample,
		buf:    make([]byte, ascii.FrameWidth*ascii.FrameHeight),
	}, nil
}

func (p *pattern) NextFrame() ([]byte, error) {
	p.count++
	// The animation advances every fourth frame so it stays readable
	// at full send rate.
	t := p.count / 4

	for y := 0; y < ascii.FrameHeight; y++ {
		for x := 0; x < ascii.FrameWidth; x++ {
			p.buf[y*ascii.FrameWidth+x] = byte(p.sample(t, x, y) * 17)
		}
	}
	return p.buf, nil
}
