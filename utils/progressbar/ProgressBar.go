// Package progressbar implements functionality of printing a progress
// bar to a terminal
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ProgressBar implements a progress bar that must be manually managed.
// That is, Display() must be called whenever an updated progress bar
// should be written. ProgressBar is not safe for concurrent use.
type ProgressBar struct {
	out             io.Writer
	width           int
	maxProgress     int
	currentProgress int
	bar             strings.Builder
	startTime       time.Time
	now             func() time.Time
}

// New returns a new ProgressBar that is width characters wide, writes
// to out and reaches 100% after max calls to Increment.
func New(out io.Writer, width, max int) *ProgressBar {
	if max < 1 {
		max = 1
	}
	return &ProgressBar{
		out:         out,
		width:       width,
		maxProgress: max,
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// Increment increments the internal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	p.Set(p.currentProgress + 1)
}

// Set sets the progress counter, for example when resuming a run that
// was already partially completed
func (p *ProgressBar) Set(progress int) {
	switch {
	case progress < 0:
		p.currentProgress = 0
	case progress > p.maxProgress:
		p.currentProgress = p.maxProgress
	default:
		p.currentProgress = progress
	}
}

// Progress returns the progress counter
func (p *ProgressBar) Progress() int {
	return p.currentProgress
}

// String returns the current bar
func (p *ProgressBar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	filled := p.currentProgress * p.width / p.maxProgress
	p.bar.WriteString(strings.Repeat("█", filled))
	p.bar.WriteString(strings.Repeat(" ", p.width-filled))

	fraction := float64(p.currentProgress) / float64(p.maxProgress)
	elapsed := p.now().Sub(p.startTime).Truncate(time.Second)
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]", fraction*100, elapsed)
	return p.bar.String()
}

// Display overwrites the current terminal line with the progress bar
func (p *ProgressBar) Display() error {
	_, err := fmt.Fprintf(p.out, "\r\033[K%v", p.String())
	return err
}

// Close moves the output past the progress bar
func (p *ProgressBar) Close() error {
	_, err := fmt.Fprintln(p.out)
	return err
}
