// Package template renders prompt templates with named placeholders.
//
// A placeholder is {name} or {{name}}, optionally padded with spaces inside
// the braces, where name is an identifier. Every other brace is literal
// text, so templates may contain JSON or code samples.
package template

import (
	"fmt"
	"slices"
	"strings"

	"llmsock/internal/common/fsutil"
)

// Vars binds placeholder names to values for one render.
type Vars map[string]string

// Template is an immutable parsed template. It is safe for concurrent use.
type Template struct {
	src   string
	parts []part
	names []string
}

type part struct {
	text string
	name string // empty for literal text
}

// UnknownVariableError reports a placeholder outside the allowed set.
type UnknownVariableError struct {
	Name  string
	Known []string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("template references unknown variable %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Parse parses text. When known is non-empty, a placeholder naming any
// other variable is an error.
func Parse(text string, known ...string) (*Template, error) {
	t := &Template{src: text}
	var lit strings.Builder
	for i := 0; i < len(text); {
		if text[i] != '{' {
			lit.WriteByte(text[i])
			i++
			continue
		}
		name, n := placeholder(text[i:])
		if n == 0 {
			lit.WriteByte(text[i])
			i++
			continue
		}
		if len(known) > 0 && !slices.Contains(known, name) {
			return nil, &UnknownVariableError{Name: name, Known: known}
		}
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{text: lit.String()})
			lit.Reset()
		}
		t.parts = append(t.parts, part{name: name})
		if !slices.Contains(t.names, name) {
			t.names = append(t.names, name)
		}
		i += n
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, part{text: lit.String()})
	}
	return t, nil
}

// ParseFile reads path ('~' expanded) and parses its contents.
func ParseFile(path string, known ...string) (*Template, error) {
	b, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return Parse(string(b), known...)
}

// placeholder matches "{{ name }}" or "{ name }" at the start of s and
// returns the name and the number of bytes consumed, or 0 when s does not
// start with a placeholder.
func placeholder(s string) (string, int) {
	lb, rb := "{", "}"
	if strings.HasPrefix(s, "{{") {
		lb, rb = "{{", "}}"
	}
	end := strings.Index(s[len(lb):], rb)
	if end < 0 {
		return "", 0
	}
	name := strings.TrimSpace(s[len(lb) : len(lb)+end])
	if !isIdent(name) {
		return "", 0
	}
	return name, len(lb) + end + len(rb)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Render substitutes vars verbatim. Missing names render empty.
func (t *Template) Render(vars Vars) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.name == "" {
			b.WriteString(p.text)
			continue
		}
		b.WriteString(vars[p.name])
	}
	return b.String()
}

// Variables lists the referenced names in order of first appearance.
func (t *Template) Variables() []string {
	return slices.Clone(t.names)
}

// References reports whether the template uses name.
func (t *Template) References(name string) bool {
	return slices.Contains(t.names, name)
}

// String returns the source text.
func (t *Template) String() string { return t.src }
