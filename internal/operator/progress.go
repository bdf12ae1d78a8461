package operator

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// Bar renders commit progress as a terminal progress bar.
type Bar struct {
	out io.Writer
	bar *pb.ProgressBar
}

// NewBar returns a Bar writing to out.
func NewBar(out io.Writer) *Bar {
	return &Bar{out: out}
}

func (b *Bar) Start(total int) {
	b.bar = pb.New(total).SetWriter(b.out).SetTemplate(pb.Simple)
	b.bar.Set("prefix", "committing ")
	b.bar.Start()
}

func (b *Bar) Increment() {
	if b.bar != nil {
		b.bar.Increment()
	}
}

func (b *Bar) Finish() {
	if b.bar != nil {
		b.bar.Finish()
	}
}

// Current returns the number of groups reported so far.
func (b *Bar) Current() int64 {
	if b.bar == nil {
		return 0
	}
	return b.bar.Current()
}
