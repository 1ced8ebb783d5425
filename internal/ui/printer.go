package ui

import (
	"fmt"
	"io"
	"os"
)

// Renderable is implemented by every component in this package
type Renderable interface {
	Render() string
	Plain() string
}

// Printer writes UI components to a writer, styled when the writer is an
// interactive terminal and plain otherwise
type Printer struct {
	out    io.Writer
	width  int
	styled bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used and styling follows IsTerminal.
func NewPrinter(w io.Writer) *Printer {
	styled := false
	if w == nil {
		w = os.Stdout
		styled = IsTerminal()
	}
	return &Printer{
		out:    w,
		width:  GetTerminalWidth(),
		styled: styled,
	}
}

// Styled reports whether components are rendered with styling
func (p *Printer) Styled() bool {
	return p.styled
}

// Width returns the terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print renders a component
func (p *Printer) Print(c Renderable) {
	switch v := c.(type) {
	case *Header:
		v.SetWidth(p.width)
	case *Result:
		v.SetWidth(p.width)
	}

	if p.styled {
		_, _ = fmt.Fprintln(p.out, c.Render())
		return
	}
	_, _ = fmt.Fprint(p.out, c.Plain())
}

// Println writes a line of unstyled text
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintSuccess prints a success result
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	p.Print(NewSuccessResult(title, details...))
}

// PrintError prints an error result with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting ...string) {
	p.Print(NewFailureResult(title, err, troubleshooting))
}

// PrintWarning prints a warning result
func (p *Printer) PrintWarning(title string, details ...Detail) {
	p.Print(NewWarningResult(title, details...))
}
