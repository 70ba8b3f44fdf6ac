package core

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
	ColorYellow    = color.New(color.FgYellow)
)

// Printer colorizes output according to the configured color mode.
type Printer struct {
	enabled bool
}

// NewPrinter builds a printer for the always|auto|never mode. Auto enables
// color only when stdout is a terminal.
func NewPrinter(mode string) *Printer {
	switch mode {
	case colorAlways:
		color.NoColor = false
		return &Printer{enabled: true}
	case colorNever:
		return &Printer{enabled: false}
	default:
		return &Printer{enabled: isatty.IsTerminal(os.Stdout.Fd())}
	}
}

// Sprintf formats with the given color when color is enabled.
func (p *Printer) Sprintf(c *color.Color, format string, a ...interface{}) string {
	if p.enabled {
		return c.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
