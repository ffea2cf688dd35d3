// Package logsource opens log inputs (files, stdin, network streams) and
// decodes them to UTF-8.
package logsource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source kinds.
const (
	KindFile   = "file"
	KindStdin  = "stdin"
	KindTCP    = "tcp"
	KindUpload = "upload"
)

// ErrUnknownCharset is returned for a charset name without a decoder.
var ErrUnknownCharset = errors.New("unknown charset")

// Source is one opened input stream, decoded to UTF-8.
type Source struct {
	Kind    string
	Name    string
	Charset string

	r      io.Reader
	closer io.Closer
}

func (s *Source) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close releases the underlying stream. Standard input is left open.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open opens a named input. "-" selects standard input.
func Open(name, charset string) (*Source, error) {
	if name == StdinName {
		return OpenStdin(charset)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	src, err := newSource(KindFile, name, f, charset)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// FromReader wraps an already open stream. The caller keeps ownership of r.
func FromReader(kind, name string, r io.Reader, charset string) (*Source, error) {
	return newSource(kind, name, r, charset)
}

func newSource(kind, name string, r io.Reader, charset string) (*Source, error) {
	dec, err := Decode(r, charset)
	if err != nil {
		return nil, err
	}
	return &Source{Kind: kind, Name: name, Charset: charset, r: dec}, nil
}

// LookupCharset resolves an IANA or WHATWG charset name. Empty means UTF-8.
func LookupCharset(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCharset, name)
	}
	return enc, nil
}

// Decode returns a reader yielding r as UTF-8. A leading byte order mark
// overrides charset and is removed.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	enc, err := LookupCharset(charset)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
