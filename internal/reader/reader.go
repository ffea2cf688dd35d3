// Package reader holds what every format driver shares: the Reader
// contract, positional errors, run statistics and the per-run session
// that wires the option matcher, assembler and writer router together.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tinytelemetry/sigex/internal/model"
)

const (
	// DefaultMaxLineSize is the longest line a line-oriented driver accepts.
	DefaultMaxLineSize = 1024 * 1024

	// ProgressInterval is the number of lines between progress flushes.
	ProgressInterval = 1000
)

var (
	// ErrNoMatch is returned when no pattern option matches a line.
	ErrNoMatch = errors.New("no match")
	// ErrMalformedRow marks a row that does not fit the configured columns.
	ErrMalformedRow = errors.New("malformed row")
)

// Reader turns one input stream into one record on sink.
type Reader interface {
	Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (Stats, error)
}

// Flusher is implemented by sinks that buffer writes. Drivers flush it
// periodically so partial results become visible while a run is going.
type Flusher interface {
	Flush() error
}

// Stats summarizes one run.
type Stats struct {
	Units    int64         `json:"units"`
	Lines    int64         `json:"lines"`
	Signals  int           `json:"signals"`
	Samples  int64         `json:"samples"`
	Duration time.Duration `json:"duration"`
}

// ParseError is a fatal structural or value error with its input position.
type ParseError struct {
	Msg     string
	Snippet string
	Line    int
	Path    string
	Err     error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Line > 0 && e.Path != "":
		return fmt.Sprintf("line %d (%s): %s", e.Line, e.Path, msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// Errorf wraps err with its input position. An existing ParseError keeps
// its own position.
func Errorf(err error, line int, snippet string) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return err
	}
	return &ParseError{Msg: err.Error(), Snippet: snippet, Line: line, Err: err}
}

// Lines calls fn for every line of in with its 1-based line number,
// polling ctx between lines. A canceled context stops the scan without an
// error.
func Lines(ctx context.Context, in io.Reader, fn func(lineNo int, line string) (stop bool, err error)) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), DefaultMaxLineSize)
	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		stop, err := fn(lineNo, scanner.Text())
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return &ParseError{Msg: fmt.Sprintf("line exceeds %d bytes", DefaultMaxLineSize), Line: lineNo + 1, Err: err}
		}
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
