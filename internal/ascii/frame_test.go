package ascii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// ---------------------------------------------------------------------------
// Quantize
// ---------------------------------------------------------------------------

func TestQuantizeEndpoints(t *testing.T) {
	assert.Equal(t, byte(0), Quantize(0))
	assert.Equal(t, byte(15), Quantize(255))
}

func TestQuantizeKnownValues(t *testing.T) {
	// round(v*15/255) for a few hand-checked lumas.
	cases := map[byte]byte{
		0:   0,
		8:   0,
		9:   1,
		17:  1,
		128: 8,
		246: 14,
		247: 15,
	}
	for v, want := range cases {
		assert.Equal(t, want, Quantize(v), "luma %d", v)
	}
}

func TestQuantizeMonotonic(t *testing.T) {
	prev := Quantize(0)
	for v := 1; v <= 255; v++ {
		q := Quantize(byte(v))
		if q < prev {
			t.Fatalf("Quantize(%d)=%d < Quantize(%d)=%d", v, q, v-1, prev)
		}
		prev = q
	}
}

// ---------------------------------------------------------------------------
// Pack / Unpack
// ---------------------------------------------------------------------------

func TestPackSize(t *testing.T) {
	packed, err := Pack(make([]byte, FrameWidth*FrameHeight))
	require.NoError(t, err)
	assert.Len(t, packed, PackedFrameSize)
	assert.Equal(t, 1288, PackedFrameSize)
}

func TestPackRejectsWrongSize(t *testing.T) {
	_, err := Pack(make([]byte, 10))
	assert.ErrorIs(t, err, ErrBadFrameSize)

	_, err = Unpack(make([]byte, PackedFrameSize-1))
	assert.ErrorIs(t, err, ErrBadFrameSize)
}

// The top-left pixels (0, 17, 255, 255) land at the mirrored end of
// the first packed row: the byte holding columns 3,2 is 0xFF and the
// byte holding columns 1,0 is 0x10.
func TestPackMirrorGolden(t *testing.T) {
	gray := make([]byte, FrameWidth*FrameHeight)
	gray[0], gray[1], gray[2], gray[3] = 0, 17, 255, 255

	packed, err := Pack(gray)
	require.NoError(t, err)

	rowEnd := FrameWidth/2 - 1
	assert.Equal(t, byte(0xFF), packed[rowEnd-1], "columns 3,2")
	assert.Equal(t, byte(0x10), packed[rowEnd], "columns 1,0")
	assert.Equal(t, byte(0x00), packed[0], "right edge of the source row is dark")
}

func TestUnpackNibbleOrder(t *testing.T) {
	packed := make([]byte, PackedFrameSize)
	packed[0] = 0xF1

	nibbles, err := Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF), nibbles[0], "high nibble first")
	assert.Equal(t, byte(0x1), nibbles[1])
	assert.Len(t, nibbles, FrameWidth*FrameHeight)
}

// Unpack(Pack(g)) must equal the quantised grid with each row
// mirrored, pixel for pixel.
func TestPackUnpackRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gray := rapid.SliceOfN(rapid.Byte(), FrameWidth*FrameHeight, FrameWidth*FrameHeight).Draw(t, "gray")

		packed, err := Pack(gray)
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		nibbles, err := Unpack(packed)
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}

		for y := 0; y < FrameHeight; y++ {
			for x := 0; x < FrameWidth; x++ {
				want := Quantize(gray[y*FrameWidth+(FrameWidth-1-x)])
				got := nibbles[y*FrameWidth+x]
				if got != want {
					t.Fatalf("pixel (%d,%d): got %d want %d", x, y, got, want)
				}
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Glyph / Render
// ---------------------------------------------------------------------------

func TestGlyphRampEndpoints(t *testing.T) {
	assert.Equal(t, byte(' '), Glyph(0))
	assert.Equal(t, byte('@'), Glyph(15))
	assert.Equal(t, byte('@'), Glyph(200), "out-of-range samples clamp")
}

func TestGlyphRampIsIdentityIndexed(t *testing.T) {
	// 16 glyphs over 16 sample values: index v maps straight through.
	want := []byte{' ', '.', '^', '=', '~', '-', ',', ':', ';', '+', '*', '?', '%', 'S', '#', '@'}
	for v := byte(0); v < 16; v++ {
		assert.Equal(t, want[v], Glyph(v), "sample %d", v)
	}
}

func TestRenderDimensions(t *testing.T) {
	nibbles := make([]byte, FrameWidth*FrameHeight)
	out := Render(nibbles, 40, 12)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 12)
	for i, line := range lines {
		assert.Len(t, line, 40, "line %d", i)
	}
}

func TestRenderNativeWidthIsIdentityColumns(t *testing.T) {
	nibbles := make([]byte, FrameWidth*FrameHeight)
	nibbles[5] = 15 // column 5 of row 0

	out := Render(nibbles, FrameWidth, FrameHeight)
	lines := strings.Split(out, "\n")
	assert.Equal(t, byte('@'), lines[0][5])
	assert.Equal(t, byte(' '), lines[0][4])
}

func TestRenderUniformFrame(t *testing.T) {
	nibbles := make([]byte, FrameWidth*FrameHeight)
	for i := range nibbles {
		nibbles[i] = 15
	}
	out := Render(nibbles, 10, 3)
	assert.Equal(t, "@@@@@@@@@@\n@@@@@@@@@@\n@@@@@@@@@@\n", out)
}

func TestRenderBadInput(t *testing.T) {
	assert.Empty(t, Render(nil, 10, 10))
	assert.Empty(t, Render(make([]byte, FrameWidth*FrameHeight), 0, 10))
}

// ---------------------------------------------------------------------------
// Compose
// ---------------------------------------------------------------------------

func brightFrame() []byte {
	f := make([]byte, FrameWidth*FrameHeight)
	for i := range f {
		f[i] = 15
	}
	return f
}

func composeLines(t *testing.T, out string) []string {
	t.Helper()
	require.NotEmpty(t, out)
	return strings.Split(strings.TrimSuffix(out, "\n"), "\n")
}

func TestComposeSingleFillsScreen(t *testing.T) {
	out := Compose([][]byte{brightFrame()}, 20, 6)
	lines := composeLines(t, out)
	require.Len(t, lines, 6)
	for _, line := range lines {
		assert.Equal(t, strings.Repeat("@", 20), line)
	}
}

func TestComposeTwoWideGoesSideBySide(t *testing.T) {
	// 80·0.38 = 30.4 >= 10: wide terminal.
	out := Compose([][]byte{brightFrame(), nil}, 80, 10)
	lines := composeLines(t, out)
	require.Len(t, lines, 10)
	for _, line := range lines {
		require.Len(t, line, 80)
		assert.Equal(t, strings.Repeat("@", 40), line[:40], "left cell is the bright frame")
		assert.Equal(t, strings.Repeat(" ", 40), line[40:], "right cell is blank")
	}
}

func TestComposeTwoNarrowStacks(t *testing.T) {
	// 20·0.38 = 7.6 < 20: narrow terminal.
	out := Compose([][]byte{brightFrame(), nil}, 20, 20)
	lines := composeLines(t, out)
	require.Len(t, lines, 20)
	for i := 0; i < 10; i++ {
		assert.Equal(t, strings.Repeat("@", 20), lines[i], "top half line %d", i)
	}
	for i := 10; i < 20; i++ {
		assert.Equal(t, strings.Repeat(" ", 20), lines[i], "bottom half line %d", i)
	}
}

func TestComposeThreeMakesTwoByTwoGrid(t *testing.T) {
	out := Compose([][]byte{brightFrame(), brightFrame(), brightFrame()}, 40, 10)
	lines := composeLines(t, out)
	require.Len(t, lines, 10)

	// Top row: two bright cells. Bottom row: bright left, blank right.
	assert.Equal(t, strings.Repeat("@", 40), lines[0])
	last := lines[len(lines)-1]
	assert.Equal(t, strings.Repeat("@", 20), last[:20])
	assert.Equal(t, strings.Repeat(" ", 20), last[20:])
}

func TestComposeGridAbsorbsRemainderRows(t *testing.T) {
	// 11 rows over 2 grid rows: 5 + 6, never 5 + 5 with a line lost.
	out := Compose([][]byte{brightFrame(), brightFrame(), brightFrame()}, 40, 11)
	lines := composeLines(t, out)
	require.Len(t, lines, 11)
	for _, line := range lines {
		require.Len(t, line, 40)
	}
}

func TestComposeEmptyIsBlankScreen(t *testing.T) {
	out := Compose(nil, 8, 2)
	assert.Equal(t, "        \n        \n", out)
}

func TestComposeNilEntryIsBlankCell(t *testing.T) {
	out := Compose([][]byte{nil}, 4, 2)
	assert.Equal(t, "    \n    \n", out)
}
