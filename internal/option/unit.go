package option

// Unit is one structural unit as seen by an option: the raw text of each
// configured source index, starting at 1.
type Unit interface {
	Field(source int) (string, bool)
}

// Fields is a positional unit such as split columns or capture groups.
// Index 0 is unused.
type Fields []string

func (f Fields) Field(source int) (string, bool) {
	if source <= 0 || source >= len(f) {
		return "", false
	}
	return f[source], true
}

// Keyed is a unit of named values. Source n reads Keys[n-1].
type Keyed struct {
	Keys   []string
	Values map[string]string
}

func (k Keyed) Field(source int) (string, bool) {
	if source <= 0 || source > len(k.Keys) {
		return "", false
	}
	v, ok := k.Values[k.Keys[source-1]]
	return v, ok
}

// Element is an XML element unit. Source 1 is the element text and source
// n >= 2 reads attribute Keys[n-2]. Zero-valued parts are absent.
type Element struct {
	HasText bool
	Text    string
	Keys    []string
	Attrs   map[string]string
}

func (e Element) Field(source int) (string, bool) {
	switch {
	case source == 1:
		return e.Text, e.HasText
	case source >= 2 && source-2 < len(e.Keys):
		if e.Attrs == nil {
			return "", false
		}
		v, ok := e.Attrs[e.Keys[source-2]]
		return v, ok
	}
	return "", false
}
