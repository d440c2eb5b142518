// Package ui implements the default console sink consumed by chatclient:
// colorized notices and chat lines on stdout, and a roster rendered to
// stderr on every update.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"

	"github.com/wiretalk/chatline/internal/chatclient"
)

var (
	notice = color.New(color.FgHiCyan)
	chat   = color.New(color.FgHiGreen)
	errc   = color.New(color.FgHiRed)
	roster = color.New(color.FgHiYellow)
)

func init() {
	notice.EnableColor()
	chat.EnableColor()
	errc.EnableColor()
	roster.EnableColor()
}

// Console is a chatclient.UI that writes to an io.Writer, normally stdout.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole builds a Console writing to os.Stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// Printf renders one line. Lines starting with "error:" print in red;
// everything else, chat lines ("name: text") included, prints in the
// notice color.
func (c *Console) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case len(line) >= 6 && line[:6] == "error:":
		errc.Fprintln(c.out, line)
	default:
		notice.Fprintln(c.out, line)
	}
}

// UpdateRoster rewrites the roster line to stderr, sorted by id so
// repeated renders don't visually shuffle.
func (c *Console) UpdateRoster(users []chatclient.RosterEntry) {
	sorted := make([]chatclient.RosterEntry, len(users))
	copy(sorted, users)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c.mu.Lock()
	defer c.mu.Unlock()

	online := 0
	for _, u := range sorted {
		if u.Active {
			online++
		}
	}
	roster.Fprintf(os.Stderr, "online (%d): ", online)
	first := true
	for _, u := range sorted {
		if !u.Active {
			continue
		}
		name := u.Name
		if name == "" {
			name = fmt.Sprintf("user%d", u.ID)
		}
		if !first {
			fmt.Fprint(os.Stderr, ", ")
		}
		first = false
		fmt.Fprint(os.Stderr, name)
	}
	fmt.Fprintln(os.Stderr)
}
