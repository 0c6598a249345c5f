package renderer

import (
	"bytes"
	"io"
)

// SectionPrinter prints the header of a section before its first row only,
// so that empty sections leave no trace.
type SectionPrinter struct {
	header  func(io.Writer)
	printed bool
}

// Header returns a SectionPrinter printing the section header with f.
func Header(f func(io.Writer)) *SectionPrinter {
	return &SectionPrinter{header: f}
}

// PrintHeader prints the section header on the first call only.
func (p *SectionPrinter) PrintHeader(w io.Writer) {
	if p.printed {
		return
	}
	p.printed = true
	if p.header != nil {
		p.header(w)
	}
}

// Printed reports whether the header was printed.
func (p *SectionPrinter) Printed() bool { return p.printed }

// ConditionalBlock let you fully write a block and decide at the end to print it or not.
// If the block function returns true, the content is printed to w, otherwise it is discarded.
func ConditionalBlock(w io.Writer, block func(io.Writer) bool) {
	bw := &bytes.Buffer{}
	if block(bw) {
		io.Copy(w, bw)
	}
}
