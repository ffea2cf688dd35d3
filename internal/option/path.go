package option

import "strings"

// PathRule matches a structural unit by leaf name and ancestor path. A nil
// component is a wildcard.
type PathRule struct {
	Name   *string
	Parent *string
}

// ParsePath splits path at its last '/'. The text after it is the leaf
// name and the text before it the parent path, prefixed with '/' when
// missing. "*" or empty components become wildcards, except that an empty
// path matches the unnamed leaf "".
func ParsePath(path string) PathRule {
	if strings.TrimSpace(path) == "" {
		empty := ""
		return PathRule{Name: &empty}
	}
	var name, parent string
	if pos := strings.LastIndexByte(path, '/'); pos >= 0 {
		name = strings.TrimSpace(path[pos+1:])
		parent = strings.TrimSpace(path[:pos])
		if parent != "" && !strings.HasPrefix(parent, "/") {
			parent = "/" + parent
		}
	} else {
		name = strings.TrimSpace(path)
	}

	var r PathRule
	if name != "*" {
		r.Name = &name
	}
	if parent != "" && parent != "*" {
		r.Parent = &parent
	}
	return r
}

// Matches reports whether a unit named name below currentPath satisfies
// the rule. The parent path only needs to be a suffix of currentPath.
func (r PathRule) Matches(currentPath, name string) bool {
	if r.Name != nil && *r.Name != name {
		return false
	}
	if r.Parent != nil && !strings.HasSuffix(currentPath, *r.Parent) {
		return false
	}
	return true
}

func (r PathRule) String() string {
	name, parent := "*", "*"
	if r.Name != nil {
		name = *r.Name
	}
	if r.Parent != nil {
		parent = *r.Parent
	}
	return parent + "/" + name
}
