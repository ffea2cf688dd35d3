// Package jsonlog reads streams of JSON documents as object trees.
package jsonlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/reader/tree"
)

// Config configures a JSON reader.
type Config struct {
	reader.Settings
	Options []option.Option
}

// Reader is the JSON driver.
type Reader struct {
	conf     Config
	layout   *option.Layout
	compiled []*option.Compiled
}

var _ reader.Reader = (*Reader)(nil)

// New compiles conf. Invalid options are reported here.
func New(conf Config) (*Reader, error) {
	if conf.Format == "" {
		conf.Format = "json"
	}
	layout, compiled, err := reader.Compile(option.KindPath, conf.Options, conf.Settings)
	if err != nil {
		return nil, err
	}
	return &Reader{conf: conf, layout: layout, compiled: compiled}, nil
}

type container struct {
	object    bool
	name      string
	key       string
	expectKey bool
}

// Read parses in into one record on sink. Several top-level documents
// may follow each other.
func (r *Reader) Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (reader.Stats, error) {
	sess, err := reader.Open(r.conf.Settings, rec, sink, r.layout, r.compiled)
	if err != nil {
		return reader.Stats{}, err
	}
	return sess.Close(r.walk(ctx, sess, in))
}

func (r *Reader) walk(ctx context.Context, sess *reader.Session, in io.Reader) error {
	lines := tree.NewLineIndex(in)
	dec := json.NewDecoder(lines)
	dec.UseNumber()
	w := tree.NewWalker(sess)

	var stack []*container
	top := func() *container {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	// name returns the key the next value is stored under and marks the
	// value as consumed. Inside an array it is the array's key.
	name := func() string {
		c := top()
		switch {
		case c == nil:
			return ""
		case c.object:
			c.expectKey = true
			return c.key
		default:
			return c.name
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var syn *json.SyntaxError
			if errors.As(err, &syn) {
				return &reader.ParseError{Msg: "could not parse JSON structure: " + syn.Error(), Line: lines.Line(syn.Offset), Path: w.Path(), Err: err}
			}
			return fmt.Errorf("could not parse JSON structure: %w", err)
		}
		line := lines.Line(dec.InputOffset() - 1)

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				n := name()
				if c := top(); c != nil && !c.object {
					n = ""
				}
				stack = append(stack, &container{object: true, expectKey: true})
				if err := w.StartObject(n, line); err != nil {
					return err
				}
			case '}':
				stack = stack[:len(stack)-1]
				if err := w.EndObject(); err != nil {
					return err
				}
			case '[':
				n := name()
				key := n
				if c := top(); c != nil && !c.object {
					key = ""
				}
				stack = append(stack, &container{name: n})
				w.StartArray(key)
			case ']':
				stack = stack[:len(stack)-1]
				w.EndArray()
			}
		default:
			c := top()
			if c != nil && c.object && c.expectKey {
				c.key, _ = t.(string)
				c.expectKey = false
				continue
			}
			n := name()
			value, ok := scalar(t)
			if !ok {
				continue
			}
			w.Scalar(n, value, c != nil && !c.object)
		}
	}
}

func scalar(tok json.Token) (string, bool) {
	switch v := tok.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	}
	return "", false
}
