// Package yamllog reads YAML document streams as object trees.
package yamllog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/reader/tree"
)

// Config configures a YAML reader.
type Config struct {
	reader.Settings
	Options []option.Option
}

// Reader is the YAML driver.
type Reader struct {
	conf     Config
	layout   *option.Layout
	compiled []*option.Compiled
}

var _ reader.Reader = (*Reader)(nil)

// New compiles conf. Invalid options are reported here.
func New(conf Config) (*Reader, error) {
	if conf.Format == "" {
		conf.Format = "yaml"
	}
	layout, compiled, err := reader.Compile(option.KindPath, conf.Options, conf.Settings)
	if err != nil {
		return nil, err
	}
	return &Reader{conf: conf, layout: layout, compiled: compiled}, nil
}

// Read parses every document of in into one record on sink.
func (r *Reader) Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (reader.Stats, error) {
	sess, err := reader.Open(r.conf.Settings, rec, sink, r.layout, r.compiled)
	if err != nil {
		return reader.Stats{}, err
	}
	return sess.Close(r.decode(ctx, sess, in))
}

func (r *Reader) decode(ctx context.Context, sess *reader.Session, in io.Reader) error {
	dec := yaml.NewDecoder(in)
	w := &walker{ctx: ctx, tree: tree.NewWalker(sess)}
	for {
		if ctx.Err() != nil {
			return nil
		}
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &reader.ParseError{Msg: "could not parse YAML structure: " + err.Error(), Line: errorLine(err), Err: err}
		}
		if err := w.node(&doc, ""); err != nil {
			return err
		}
	}
}

type walker struct {
	ctx  context.Context
	tree *tree.Walker
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// node walks a value stored under name.
func (w *walker) node(n *yaml.Node, name string) error {
	n = resolveAlias(n)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := w.node(c, name); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		return w.mapping(n, name)
	case yaml.SequenceNode:
		return w.sequence(n, name, false)
	}
	return nil
}

func (w *walker) mapping(n *yaml.Node, name string) error {
	if w.ctx.Err() != nil {
		return nil
	}
	if err := w.tree.StartObject(name, n.Line); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := resolveAlias(n.Content[i])
		value := resolveAlias(n.Content[i+1])
		if key == nil || value == nil {
			continue
		}
		if key.Kind == yaml.ScalarNode && key.Tag == "!!merge" {
			if err := w.merge(value); err != nil {
				return err
			}
			continue
		}
		if value.Kind == yaml.ScalarNode {
			if value.Tag != "!!null" {
				w.tree.Scalar(key.Value, value.Value, false)
			}
			continue
		}
		if err := w.node(value, key.Value); err != nil {
			return err
		}
	}
	return w.tree.EndObject()
}

// merge copies the scalars of a merge key's mapping into the open object.
func (w *walker) merge(n *yaml.Node) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			v := resolveAlias(n.Content[i+1])
			if v != nil && v.Kind == yaml.ScalarNode && v.Tag != "!!null" {
				w.tree.Scalar(n.Content[i].Value, v.Value, false)
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := w.merge(resolveAlias(c)); err != nil {
				return err
			}
		}
	default:
		err := errors.New("invalid merge value")
		return &reader.ParseError{Msg: err.Error(), Line: n.Line, Path: w.tree.Path(), Err: err}
	}
	return nil
}

// sequence walks the items of a list stored under name. Scalar items are
// joined under name; nested objects and lists are unnamed.
func (w *walker) sequence(n *yaml.Node, name string, nested bool) error {
	key := name
	if nested {
		key = ""
	}
	w.tree.StartArray(key)
	for _, c := range n.Content {
		c = resolveAlias(c)
		if c == nil {
			continue
		}
		switch c.Kind {
		case yaml.ScalarNode:
			if c.Tag != "!!null" {
				w.tree.Scalar(name, c.Value, true)
			}
		case yaml.MappingNode:
			if err := w.mapping(c, ""); err != nil {
				return err
			}
		case yaml.SequenceNode:
			if err := w.sequence(c, name, true); err != nil {
				return err
			}
		}
	}
	w.tree.EndArray()
	return nil
}

// errorLine extracts the line from a "yaml: line N: ..." decoder error.
func errorLine(err error) int {
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr != nil {
		return 0
	}
	return line
}
