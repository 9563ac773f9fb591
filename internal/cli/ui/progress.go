package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ProgressBar draws a single-line progress bar, redrawn in place
type ProgressBar struct {
	mu      sync.Mutex
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// NewProgressBar creates a bar for total steps. A zero width means 40.
func NewProgressBar(w io.Writer, total, width int, message string, noColor bool) *ProgressBar {
	if width <= 0 {
		width = 40
	}
	return &ProgressBar{writer: w, total: total, width: width, message: message, noColor: noColor}
}

// Add advances the bar by n steps
func (p *ProgressBar) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	if p.current > p.total {
		p.current = p.total
	}
	p.render()
}

// Finish fills the bar and ends the line with a success message
func (p *ProgressBar) Finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
	if message != "" {
		fmt.Fprintln(p.writer, FormatSuccess(message, p.noColor))
	}
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		return
	}

	filled := p.width * p.current / p.total
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if p.noColor {
		cyan.DisableColor()
		gray.DisableColor()
	}

	var bar strings.Builder
	bar.WriteString("[")
	cyan.Fprint(&bar, strings.Repeat("█", filled))
	gray.Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")

	fmt.Fprintf(p.writer, "\r%s %3d%% %d/%d", bar.String(), 100*p.current/p.total, p.current, p.total)
	if p.message != "" {
		fmt.Fprintf(p.writer, " %s", p.message)
	}
}
