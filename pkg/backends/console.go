package backends

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// Console receives the echo of every line a target writes.
type Console interface {
	WriteLine(sev types.Severity, line []byte, colored bool) error
}

var severityAttrs = map[types.Severity][]color.Attribute{
	types.SeverityPass:     {color.FgGreen},
	types.SeverityFail:     {color.FgRed},
	types.SeverityDebug:    {color.FgCyan},
	types.SeverityWarning:  {color.FgYellow},
	types.SeverityCritical: {color.FgRed, color.Bold},
	types.SeverityFatal:    {color.FgWhite, color.BgRed, color.Bold},
}

// TermConsole writes to a terminal, coloring lines by severity. Colors are
// only emitted when the output is a terminal or ForceColor was called.
type TermConsole struct {
	mu     sync.Mutex
	out    io.Writer
	tty    bool
	colors map[types.Severity]*color.Color
}

// NewConsole wraps w. When w is a terminal on Windows it is made to
// understand ANSI sequences.
func NewConsole(w io.Writer) *TermConsole {
	c := &TermConsole{out: w, colors: make(map[types.Severity]*color.Color)}
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		c.tty = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		if c.tty {
			c.out = colorable.NewColorable(f)
		}
	}
	for sev, attrs := range severityAttrs {
		col := color.New(attrs...)
		col.EnableColor()
		c.colors[sev] = col
	}
	return c
}

// Stdout returns a console on os.Stdout.
func Stdout() *TermConsole {
	return NewConsole(os.Stdout)
}

// ForceColor overrides terminal detection.
func (c *TermConsole) ForceColor(on bool) {
	c.mu.Lock()
	c.tty = on
	c.mu.Unlock()
}

// WriteLine writes line, which should end with a newline.
func (c *TermConsole) WriteLine(sev types.Severity, line []byte, colored bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.colors[sev]
	if !colored || !c.tty || !ok {
		_, err := c.out.Write(line)
		return err
	}
	body := bytes.TrimRight(line, "\r\n")
	if _, err := col.Fprint(c.out, string(body)); err != nil {
		return err
	}
	_, err := c.out.Write(line[len(body):])
	return err
}
