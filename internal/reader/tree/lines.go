package tree

import (
	"io"
	"sort"
)

// LineIndex records the offsets of line breaks read through it, so byte
// offsets reported by a streaming decoder can be turned into line numbers.
type LineIndex struct {
	r      io.Reader
	read   int64
	breaks []int64
}

// NewLineIndex wraps r.
func NewLineIndex(r io.Reader) *LineIndex {
	return &LineIndex{r: r}
}

func (l *LineIndex) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == '\n' {
			l.breaks = append(l.breaks, l.read+int64(i))
		}
	}
	l.read += int64(n)
	return n, err
}

// Line returns the 1-based line holding byte offset off.
func (l *LineIndex) Line(off int64) int {
	return 1 + sort.Search(len(l.breaks), func(i int) bool { return l.breaks[i] >= off })
}
