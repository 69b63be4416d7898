package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// progress is a stderr spinner that is a no-op when quiet
type progress struct {
	s *spinner.Spinner
}

func newProgress(w io.Writer, message string, quiet bool) *progress {
	if quiet {
		return &progress{}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	s.Start()

	return &progress{s: s}
}

func (p *progress) Update(format string, args ...interface{}) {
	if p.s == nil {
		return
	}

	p.s.Lock()
	p.s.Suffix = " " + fmt.Sprintf(format, args...)
	p.s.Unlock()
}

func (p *progress) Stop() {
	if p.s != nil {
		p.s.Stop()
	}
}
