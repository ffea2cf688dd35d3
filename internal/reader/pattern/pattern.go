// Package pattern reads line-oriented logs with regular-expression
// options: every non-empty line must fully match one option.
package pattern

import (
	"context"
	"io"
	"strings"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
)

// Config configures a pattern reader.
type Config struct {
	reader.Settings
	Options []option.Option
	// SkipLines ignores the first n lines.
	SkipLines int
	// StopAfterLines stops reading after line n. Zero reads to the end.
	StopAfterLines int
}

// Reader is the pattern driver.
type Reader struct {
	conf     Config
	layout   *option.Layout
	compiled []*option.Compiled
}

var _ reader.Reader = (*Reader)(nil)

// New compiles conf. Invalid options are reported here.
func New(conf Config) (*Reader, error) {
	if conf.Format == "" {
		conf.Format = "pattern"
	}
	layout, compiled, err := reader.Compile(option.KindPattern, conf.Options, conf.Settings)
	if err != nil {
		return nil, err
	}
	return &Reader{conf: conf, layout: layout, compiled: compiled}, nil
}

// Read parses in into one record on sink.
func (r *Reader) Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (reader.Stats, error) {
	sess, err := reader.Open(r.conf.Settings, rec, sink, r.layout, r.compiled)
	if err != nil {
		return reader.Stats{}, err
	}
	err = reader.Lines(ctx, in, func(n int, line string) (bool, error) {
		if strings.TrimSpace(line) == "" {
			return false, nil
		}
		if r.conf.SkipLines > 0 && n <= r.conf.SkipLines {
			return false, nil
		}
		if r.conf.StopAfterLines > 0 && n > r.conf.StopAfterLines {
			return true, nil
		}
		return false, r.line(sess, n, line)
	})
	return sess.Close(err)
}

func (r *Reader) line(sess *reader.Session, n int, line string) error {
	sess.Unit()
	c, fields, ok, err := option.SelectLine(sess.Options, line)
	if err != nil {
		return reader.Errorf(err, n, line)
	}
	if !ok {
		return &reader.ParseError{Msg: reader.ErrNoMatch.Error(), Snippet: line, Line: n, Err: reader.ErrNoMatch}
	}
	if err := sess.WriteLine(n, line); err != nil {
		return err
	}
	if err := sess.Line(n); err != nil {
		return err
	}
	if _, err := sess.Assembler.Apply(c, fields); err != nil {
		return reader.Errorf(err, n, line)
	}
	return nil
}
