// Package xmllog reads XML documents and fragments element by element.
package xmllog

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
)

// wrapper is the synthetic root element of fragment input.
const wrapper = "dummy"

// Config configures an XML reader.
type Config struct {
	reader.Settings
	Options []option.Option
	// Fragment wraps the input in a synthetic root element so that a
	// sequence of top-level elements parses as one document.
	Fragment bool
}

// Reader is the XML driver.
type Reader struct {
	conf     Config
	layout   *option.Layout
	compiled []*option.Compiled
}

var _ reader.Reader = (*Reader)(nil)

// New compiles conf. Invalid options are reported here.
func New(conf Config) (*Reader, error) {
	if conf.Format == "" {
		conf.Format = "xml"
	}
	layout, compiled, err := reader.Compile(option.KindElement, conf.Options, conf.Settings)
	if err != nil {
		return nil, err
	}
	return &Reader{conf: conf, layout: layout, compiled: compiled}, nil
}

type element struct {
	opt  *option.Compiled
	name string
	path string
	line int
	text strings.Builder
}

// qualified returns the name as written in the document, prefix included.
func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Read parses in into one record on sink.
func (r *Reader) Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (reader.Stats, error) {
	sess, err := reader.Open(r.conf.Settings, rec, sink, r.layout, r.compiled)
	if err != nil {
		return reader.Stats{}, err
	}
	if r.conf.Fragment {
		in = io.MultiReader(strings.NewReader("<"+wrapper+">"), in, strings.NewReader("</"+wrapper+">"))
	}
	return sess.Close(r.walk(ctx, sess, in))
}

// walk reads raw tokens so that element and attribute names keep their
// namespace prefix. Start and end tags are paired here.
func (r *Reader) walk(ctx context.Context, sess *reader.Session, in io.Reader) error {
	dec := xml.NewDecoder(in)
	dec.Entity = xml.HTMLEntity
	dec.Strict = true

	var stack []*element
	path := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1].path
	}
	structural := func(msg string, line int) error {
		err := errors.New("invalid XML structure: " + msg)
		return &reader.ParseError{Msg: err.Error(), Line: line, Path: path(), Err: err}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			if len(stack) > 0 {
				line, _ := dec.InputPos()
				return structural(fmt.Sprintf("unexpected EOF, element <%s> not closed", stack[len(stack)-1].name), line)
			}
			return nil
		}
		if err != nil {
			line, _ := dec.InputPos()
			var syn *xml.SyntaxError
			if errors.As(err, &syn) {
				line = syn.Line
			}
			return &reader.ParseError{Msg: "invalid XML structure: " + err.Error(), Line: line, Path: path(), Err: err}
		}
		line, _ := dec.InputPos()

		switch t := tok.(type) {
		case xml.StartElement:
			name := qualified(t.Name)
			parent := path()
			if r.conf.Fragment && len(stack) == 0 && name == wrapper {
				stack = append(stack, &element{name: name, path: parent, line: line})
				continue
			}
			el, err := r.start(sess, parent, name, line, t.Attr)
			if err != nil {
				return err
			}
			stack = append(stack, el)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 {
				return structural(fmt.Sprintf("unexpected end element </%s>", name), line)
			}
			el := stack[len(stack)-1]
			if el.name != name {
				return structural(fmt.Sprintf("element <%s> closed by </%s>", el.name, name), line)
			}
			stack = stack[:len(stack)-1]
			if el.opt == nil {
				continue
			}
			if err := r.end(sess, el); err != nil {
				return err
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
}

func (r *Reader) start(sess *reader.Session, parent, name string, line int, attr []xml.Attr) (*element, error) {
	sess.Unit()
	opt, ok := option.SelectPath(sess.Options, parent, name)
	if !ok {
		err := fmt.Errorf("%w for element %q", reader.ErrNoMatch, name)
		return nil, &reader.ParseError{Msg: err.Error(), Line: line, Path: parent, Err: err}
	}
	el := &element{opt: opt, name: name, path: parent + "/" + name, line: line}

	attrs := make(map[string]string, len(attr))
	for _, a := range attr {
		attrs[qualified(a.Name)] = a.Value
	}
	sess.Assembler.SetLine(line)
	if _, err := sess.Assembler.Begin(opt); err != nil {
		return nil, el.fail(err)
	}
	if err := sess.Assembler.Populate(opt, opt.ElementUnit("", false, attrs)); err != nil {
		return nil, el.fail(err)
	}
	return el, nil
}

func (r *Reader) end(sess *reader.Session, el *element) error {
	sess.Assembler.SetLine(el.line)
	text := strings.TrimSpace(el.text.String())
	if err := sess.Assembler.Populate(el.opt, el.opt.ElementUnit(text, true, nil)); err != nil {
		return el.fail(err)
	}
	if _, err := sess.Assembler.End(el.opt); err != nil {
		return el.fail(err)
	}
	return nil
}

func (el *element) fail(err error) error {
	return &reader.ParseError{Msg: err.Error(), Line: el.line, Path: el.path, Err: err}
}
