package editor

import (
	"io"
	"os"
	"strings"

	"github.com/aymanbagabas/go-osc52/v2"
)

// Clipboard receives copied text.
type Clipboard interface {
	Copy(text string) error
}

// TerminalClipboard copies through the OSC 52 escape sequence, which
// most terminal emulators forward to the system clipboard, including
// over SSH.
type TerminalClipboard struct {
	Out    io.Writer
	Getenv func(string) string
}

func (c TerminalClipboard) Copy(text string) error {
	out := c.Out
	if out == nil {
		out = os.Stderr
	}
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	seq := osc52.New(text)
	term := getenv("TERM")
	// Inside tmux send the passthrough form as well as the plain one;
	// which of the two arrives depends on the tmux clipboard settings.
	if getenv("TMUX") != "" || strings.HasPrefix(term, "tmux") {
		if _, err := seq.Tmux().WriteTo(out); err != nil {
			return err
		}
	} else if strings.HasPrefix(term, "screen") {
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(out)
	return err
}
