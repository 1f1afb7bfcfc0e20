package client

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Renderer displays the composited view each tick. The call loop asks
// for the size first so compose can fill the available area.
type Renderer interface {
	Size() (cols, rows int)
	Update(view string) error
}

// ansiRenderer draws to a terminal by homing the cursor and clearing
// the screen before each frame.
type ansiRenderer struct {
	out io.Writer
	fd  int
}

// NewTerminalRenderer renders to stdout, sizing frames to the
// terminal. Falls back to 80x24 when the size cannot be read.
func NewTerminalRenderer() Renderer {
	return &ansiRenderer{out: os.Stdout, fd: int(os.Stdout.Fd())}
}

func (r *ansiRenderer) Size() (cols, rows int) {
	cols, rows, err := term.GetSize(r.fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

func (r *ansiRenderer) Update(view string) error {
	_, err := fmt.Fprint(r.out, "\x1b[2J\x1b[H"+view)
	return err
}
