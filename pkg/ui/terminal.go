package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Color functions for terminal output
var (
	Cyan   = colorize("\033[36m%s\033[0m")
	Yellow = colorize("\033[33m%s\033[0m")
	Red    = colorize("\033[31m%s\033[0m")
	Green  = colorize("\033[32m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Console writes user-facing output. Lines from concurrent downloads are
// written whole. Color is used only when the writer is a terminal.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewConsole creates a console writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, color: isTerminal(out)}
}

// Stdout returns a console on standard output
func Stdout() *Console {
	return NewConsole(os.Stdout)
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) paint(fn func(string) string, s string) string {
	if !c.color {
		return s
	}
	return fn(s)
}

// Println writes one line
func (c *Console) Println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// PrintInfo prints a label and value
func (c *Console) PrintInfo(label, value string) {
	c.Println(fmt.Sprintf("%s: %s", c.paint(Cyan, label), c.paint(Yellow, value)))
}

// PrintSuccess prints a success message in green
func (c *Console) PrintSuccess(msg string) {
	c.Println(c.paint(Green, msg))
}

// PrintWarning prints a warning message in yellow
func (c *Console) PrintWarning(msg string) {
	c.Println(c.paint(Yellow, msg))
}

// PrintError prints an error message in red
func (c *Console) PrintError(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	c.Println(c.paint(Red, msg))
}
