package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

const prompt = "> "

// Run prints the connected banner and serves the command prompt until
// the user exits, the server disconnects, or a joined call ends.
func (c *Client) Run(ctx context.Context, in io.Reader) error {
	c.printBanner()

	lines := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, prompt)
		if !lines.Scan() {
			return lines.Err()
		}

		done, err := c.dispatch(ctx, strings.TrimSpace(lines.Text()))
		if err != nil || done {
			return err
		}
	}
}

// dispatch handles one input line. It reports done when the REPL
// should stop: the user exited or a call ran to completion.
func (c *Client) dispatch(ctx context.Context, line string) (done bool, err error) {
	switch {
	case line == "":
		return false, nil

	case line == "exit":
		fmt.Fprintln(c.out, "Exiting...")
		return true, nil

	case line == "list users":
		return false, c.listUsers()

	case line == "list rooms":
		return false, c.listRooms()

	case line == "create room" || line == "delete room" || line == "join room":
		fmt.Fprintf(c.out, "Usage: %s <name>\n", line)
		return false, nil

	case strings.HasPrefix(line, "create room "):
		name, ok := roomArg(line)
		if !ok {
			fmt.Fprintln(c.out, "Usage: create room <name>")
			return false, nil
		}
		return false, c.createRoom(name)

	case strings.HasPrefix(line, "delete room "):
		name, ok := roomArg(line)
		if !ok {
			fmt.Fprintln(c.out, "Usage: delete room <name>")
			return false, nil
		}
		return false, c.deleteRoom(name)

	case strings.HasPrefix(line, "join room "):
		name, ok := roomArg(line)
		if !ok {
			fmt.Fprintln(c.out, "Usage: join room <name>")
			return false, nil
		}
		return c.joinRoom(ctx, name)

	default:
		fmt.Fprintln(c.out, "Unknown command")
		return false, nil
	}
}

// roomArg extracts the name from "<verb> room <name>"; extra words are
// rejected rather than joined.
func roomArg(line string) (string, bool) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return "", false
	}
	return parts[2], true
}

func (c *Client) listUsers() error {
	reply, err := c.request(protocol.GetActiveUsers{})
	if err != nil {
		return err
	}
	users, ok := reply.(protocol.ReturnActiveUsers)
	if !ok {
		return fmt.Errorf("unexpected reply %s", reply.Opcode())
	}

	total := fmt.Sprint(len(users.Users))
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════╗")
	fmt.Fprintf(c.out, "║ Active Users %s(total: %s) ║\n", pad(10-len(total)), total)
	fmt.Fprintln(c.out, "╠══════════════════════════════════╣")
	for _, user := range users.Users {
		if user == c.username {
			user += " (you)"
		}
		fmt.Fprintf(c.out, "║ • %-30s ║\n", user)
	}
	fmt.Fprintln(c.out, "╚══════════════════════════════════╝")
	fmt.Fprintln(c.out)
	return nil
}

func (c *Client) listRooms() error {
	reply, err := c.request(protocol.GetRooms{})
	if err != nil {
		return err
	}
	rooms, ok := reply.(protocol.ReturnRooms)
	if !ok {
		return fmt.Errorf("unexpected reply %s", reply.Opcode())
	}

	if len(rooms.Rooms) == 0 {
		fmt.Fprintln(c.out, "\n╔══════════════════════════════════╗")
		fmt.Fprintln(c.out, "║ Available Rooms       (total: 0) ║")
		fmt.Fprintln(c.out, "╚══════════════════════════════════╝")
		fmt.Fprintln(c.out)
		return nil
	}

	total := fmt.Sprint(len(rooms.Rooms))
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════╗")
	fmt.Fprintf(c.out, "║ Available Rooms %s(total: %s) ║\n", pad(7-len(total)), total)
	fmt.Fprintln(c.out, "╠══════════════════════════════════╣")
	for _, room := range rooms.Rooms {
		fmt.Fprintf(c.out, "║ • %-30s ║\n", room)
	}
	fmt.Fprintln(c.out, "╚══════════════════════════════════╝")
	fmt.Fprintln(c.out)
	return nil
}

func (c *Client) createRoom(name string) error {
	reply, err := c.request(protocol.CreateRoom{Name: name})
	if err != nil {
		return err
	}
	switch r := reply.(type) {
	case protocol.CreateRoomSuccess:
		fmt.Fprintf(c.out, "Successfully created room: '%s'\n", name)
	case protocol.InvalidRoomName:
		fmt.Fprintln(c.out, r.Reason)
	default:
		return fmt.Errorf("unexpected reply %s", reply.Opcode())
	}
	return nil
}

func (c *Client) deleteRoom(name string) error {
	reply, err := c.request(protocol.DeleteRoom{Name: name})
	if err != nil {
		return err
	}
	switch r := reply.(type) {
	case protocol.DeleteRoomSuccess:
		fmt.Fprintf(c.out, "Successfully deleted room: '%s'\n", name)
	case protocol.InvalidRoomName:
		fmt.Fprintln(c.out, r.Reason)
	default:
		return fmt.Errorf("unexpected reply %s", reply.Opcode())
	}
	return nil
}

// joinRoom requests a join and, on success, hands the session over to
// the call loop. A completed call ends the REPL.
func (c *Client) joinRoom(ctx context.Context, name string) (done bool, err error) {
	if c.joined {
		return false, ErrAlreadyInCall
	}

	reply, err := c.request(protocol.JoinRoom{Name: name})
	if err != nil {
		return false, err
	}
	switch r := reply.(type) {
	case protocol.JoinRoomSuccess:
		fmt.Fprintf(c.out, "Joining %s...\n", name)
		return true, c.joinCall(ctx, r.SID)
	case protocol.InvalidJoinRoom:
		fmt.Fprintln(c.out, r.Reason)
		return false, nil
	default:
		return false, fmt.Errorf("unexpected reply %s", reply.Opcode())
	}
}

func (c *Client) printBanner() {
	fmt.Fprint(c.out, "\x1b[2J\x1b[H")

	title := "╔══ Connected to WeSFU (version 4) ══╗"
	width := len(title) - 12
	fmt.Fprintln(c.out, title)

	info := [][2]string{
		{"Time", time.Now().Format("2006-01-02 15:04:05")},
		{"Server", c.host},
		{"User", c.username},
		{"Status", "Connection OK"},
	}
	for _, kv := range info {
		content := kv[0] + ": " + kv[1]
		fmt.Fprintf(c.out, "║ %s%s║\n", content, pad(width-len([]rune(content))-3))
	}
	fmt.Fprintf(c.out, "╚%s╝\n", strings.Repeat("═", width-2))

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Available Commands:")
	fmt.Fprintln(c.out, "    - list users                  : Show all connected users")
	fmt.Fprintln(c.out, "    - list rooms                  : Show all available rooms")
	fmt.Fprintln(c.out, "    - create room <name>          : Create a new room")
	fmt.Fprintln(c.out, "    - join room <name>            : Connect to a specific room")
	fmt.Fprintln(c.out, "    - delete room <name>          : Delete an empty room")
	fmt.Fprintln(c.out, "    - exit                        : Quit the application")
	fmt.Fprintln(c.out, "\nType a command to get started:")
	fmt.Fprintln(c.out)
}

// pad returns n spaces, or nothing when the content already overflows.
func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}
