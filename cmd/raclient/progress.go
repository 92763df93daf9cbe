package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/natserract/raclients/pkg/modelclient"
)

// barProgress draws upload progress as a single, redrawn line.
type barProgress struct {
	out io.Writer
}

func newBarProgress(out io.Writer) *barProgress {
	return &barProgress{out: out}
}

func (p *barProgress) Start(total int) modelclient.Tracker {
	return &barTracker{
		out:   p.out,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total: total,
	}
}

type barTracker struct {
	out   io.Writer
	bar   progress.Model
	label string
	done  int
	total int
}

func (t *barTracker) Describe(label string) {
	t.label = label
	t.render()
}

func (t *barTracker) Increment() {
	t.done++
	t.render()
}

func (t *barTracker) Finish() {
	t.render()
	fmt.Fprintln(t.out)
}

func (t *barTracker) render() {
	ratio := 1.0
	if t.total > 0 {
		ratio = float64(t.done) / float64(t.total)
	}
	fmt.Fprintf(t.out, "\r%-24s %s %d/%d", t.label, t.bar.ViewAs(ratio), t.done, t.total)
}
