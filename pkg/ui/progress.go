package ui

import (
	"fmt"
	"strings"
	"sync"
)

const (
	progressBar   = "█"
	progressEmpty = "░"
	barWidth      = 20
)

// Progress renders a single-line current/total progress bar. Safe for
// concurrent Advance calls from pool result consumers.
type Progress struct {
	label string
	total int
	done  int
	mu    sync.Mutex
}

// NewProgress creates a progress bar for the given phase
func NewProgress(label string, total int) *Progress {
	p := &Progress{label: label, total: total}
	p.render()
	return p
}

// Advance increments the completed count and redraws the bar
func (p *Progress) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.render()
}

// Finish completes the bar and moves to the next line
func (p *Progress) Finish() {
	if quietMode {
		return
	}
	fmt.Println()
}

func (p *Progress) render() {
	if quietMode || p.total <= 0 {
		return
	}

	filled := p.done * barWidth / p.total
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat(progressBar, filled) +
		strings.Repeat(progressEmpty, barWidth-filled)

	fmt.Printf("\r%s [%s] %d/%d", Cyan(p.label), bar, p.done, p.total)
}
