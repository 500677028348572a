package main

import (
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

const progressTemplate = `📄 {{counters . }} {{bar . }} {{percent . }} {{string . "file"}}`

// progressBar shows per-file extraction progress.
type progressBar struct {
	out io.Writer
	bar *pb.ProgressBar
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

func (p *progressBar) Start(total int) {
	p.bar = pb.New(total)
	p.bar.SetTemplate(progressTemplate)
	p.bar.SetWriter(p.out)
	p.bar.Start()
}

func (p *progressBar) Advance(f drive.File, ok bool) {
	name := f.Name
	if !ok {
		name = "❌ " + name
	}
	p.bar.Set("file", name)
	p.bar.Increment()
}

func (p *progressBar) Finish() {
	if p.bar == nil {
		return
	}
	p.bar.Set("file", "")
	p.bar.Finish()
}
