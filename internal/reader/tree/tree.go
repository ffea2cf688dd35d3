// Package tree walks object trees for the JSON and YAML drivers. Objects
// are matched against path options by their key and ancestor path; their
// scalar members become the option's keyed sources.
package tree

import (
	"fmt"

	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
)

type frame struct {
	opt   *option.Compiled
	attrs map[string]string
	path  string
	line  int
	array bool
}

// Walker receives the structural events of one document stream. Objects
// are named by their key; objects inside an array have the empty name.
// A named array adds its key to the path of its elements. The root object
// has the empty name and an empty path.
type Walker struct {
	sess  *reader.Session
	stack []frame
}

// NewWalker returns a walker feeding sess.
func NewWalker(sess *reader.Session) *Walker {
	return &Walker{sess: sess}
}

// Path returns the path of the innermost open object or array.
func (w *Walker) Path() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1].path
}

func childPath(parent, name string) string {
	if name == "" {
		return parent
	}
	return parent + "/" + name
}

func (w *Walker) fail(err error, line int, path string) error {
	return &reader.ParseError{Msg: err.Error(), Line: line, Path: path, Err: err}
}

// StartObject opens an object called name that starts at line.
func (w *Walker) StartObject(name string, line int) error {
	parent := w.Path()
	w.sess.Unit()
	opt, ok := option.SelectPath(w.sess.Options, parent, name)
	if !ok {
		err := fmt.Errorf("%w for element %q", reader.ErrNoMatch, name)
		return w.fail(err, line, parent)
	}
	path := childPath(parent, name)
	w.sess.Assembler.SetLine(line)
	if _, err := w.sess.Assembler.Begin(opt); err != nil {
		return w.fail(err, line, path)
	}
	w.stack = append(w.stack, frame{opt: opt, attrs: map[string]string{}, path: path, line: line})
	return nil
}

// StartArray opens an array stored under key. Nested arrays pass "".
func (w *Walker) StartArray(key string) {
	w.stack = append(w.stack, frame{array: true, path: childPath(w.Path(), key)})
}

// EndArray closes the innermost array.
func (w *Walker) EndArray() {
	if n := len(w.stack); n > 0 && w.stack[n-1].array {
		w.stack = w.stack[:n-1]
	}
}

// Scalar stores a scalar member of the innermost object. With join the
// value is appended to an existing one, comma separated. Scalars outside
// any object are dropped.
func (w *Walker) Scalar(key, value string, join bool) {
	var attrs map[string]string
	for i := len(w.stack) - 1; i >= 0; i-- {
		if !w.stack[i].array {
			attrs = w.stack[i].attrs
			break
		}
	}
	if attrs == nil {
		return
	}
	if prev, ok := attrs[key]; ok && join {
		attrs[key] = prev + "," + value
		return
	}
	attrs[key] = value
}

// EndObject closes the innermost object and applies its option.
func (w *Walker) EndObject() error {
	n := len(w.stack)
	if n == 0 || w.stack[n-1].array {
		return nil
	}
	f := w.stack[n-1]
	w.stack = w.stack[:n-1]

	w.sess.Assembler.SetLine(f.line)
	if err := w.sess.Assembler.Populate(f.opt, f.opt.KeyedUnit(f.attrs)); err != nil {
		return w.fail(err, f.line, f.path)
	}
	if _, err := w.sess.Assembler.End(f.opt); err != nil {
		return w.fail(err, f.line, f.path)
	}
	return nil
}
