package ascii

import "strings"

// Compose lays peer frames out on a cols×rows terminal. Each entry is
// a FrameWidth×FrameHeight nibble grid; nil entries render as blank
// cells (a member whose first frame has not arrived).
//
// One frame fills the screen. Two frames sit side by side when the
// terminal is wide (cols·0.38 ≥ rows) and stack otherwise. Three or
// more form a two-column grid with ⌈n/2⌉ rows.
func Compose(frames [][]byte, cols, rows int) string {
	if cols <= 0 || rows <= 0 {
		return ""
	}

	switch len(frames) {
	case 0:
		return BlankCell(cols, rows)
	case 1:
		return cell(frames[0], cols, rows)
	case 2:
		if float64(cols)*0.38 >= float64(rows) {
			left := cell(frames[0], cols/2, rows)
			right := cell(frames[1], cols-cols/2, rows)
			return beside(left, right)
		}
		top := cell(frames[0], cols, rows/2)
		bottom := cell(frames[1], cols, rows-rows/2)
		return top + bottom
	}

	gridRows := (len(frames) + 1) / 2
	cellH := rows / gridRows
	if cellH < 1 {
		cellH = 1
	}
	var b strings.Builder
	for r := 0; r < gridRows; r++ {
		h := cellH
		if r == gridRows-1 && rows-cellH*(gridRows-1) > cellH {
			// The last grid row absorbs the remainder so the composite
			// is always exactly rows lines tall.
			h = rows - cellH*(gridRows-1)
		}
		left := cell(frames[2*r], cols/2, h)
		var right string
		if 2*r+1 < len(frames) {
			right = cell(frames[2*r+1], cols-cols/2, h)
		} else {
			right = BlankCell(cols-cols/2, h)
		}
		b.WriteString(beside(left, right))
	}
	return b.String()
}

func cell(nibbles []byte, cols, rows int) string {
	if nibbles == nil {
		return BlankCell(cols, rows)
	}
	return Render(nibbles, cols, rows)
}

// beside zips two newline-terminated blocks of equal height into one.
func beside(left, right string) string {
	l := strings.Split(strings.TrimSuffix(left, "\n"), "\n")
	r := strings.Split(strings.TrimSuffix(right, "\n"), "\n")
	n := len(l)
	if len(r) > n {
		n = len(r)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i < len(l) {
			b.WriteString(l[i])
		}
		if i < len(r) {
			b.WriteString(r[i])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
