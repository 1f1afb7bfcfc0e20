package ascii

import (
	"math"
	"strings"
)

// glyphRamp maps a 4-bit sample to a character, darkest first.
var glyphRamp = []byte{' ', '.', '^', '=', '~', '-', ',', ':', ';', '+', '*', '?', '%', 'S', '#', '@'}

// Glyph returns the ramp character for a 4-bit sample.
func Glyph(v byte) byte {
	if v > 15 {
		v = 15
	}
	return glyphRamp[int(v)*(len(glyphRamp)-1)/15]
}

// Render scales a FrameWidth×FrameHeight nibble grid to cols×rows
// using nearest-neighbour sampling and maps each sample through the
// glyph ramp. Each output row ends with a newline.
func Render(nibbles []byte, cols, rows int) string {
	if cols <= 0 || rows <= 0 || len(nibbles) != FrameWidth*FrameHeight {
		return ""
	}

	var b strings.Builder
	b.Grow((cols + 1) * rows)
	for y := 0; y < rows; y++ {
		srcY := clamp(int(math.Round(float64(y)*float64(FrameHeight-1)/float64(rows))), 0, FrameHeight-1)
		for x := 0; x < cols; x++ {
			srcX := clamp(int(math.Round(float64(x)*float64(FrameWidth)/float64(cols))), 0, FrameWidth-1)
			b.WriteByte(Glyph(nibbles[srcY*FrameWidth+srcX]))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// BlankCell returns cols×rows of spaces, newline-terminated rows, for
// peers whose first frame has not arrived yet.
func BlankCell(cols, rows int) string {
	if cols <= 0 || rows <= 0 {
		return ""
	}
	row := strings.Repeat(" ", cols) + "\n"
	return strings.Repeat(row, rows)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
