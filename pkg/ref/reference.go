// Package ref holds the address model shared by every other package:
// identifiers, hierarchical references, endpoints and conduits.
//
// A Reference is written as dotted names with bracketed indices, for example
// "macro.out" or "micro[3].in[2]". The trailing run of indices after a kernel
// name is an instance index; after a port name it is a slot.
package ref

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier is a single name part, e.g. a kernel or port name.
type Identifier string

// NewIdentifier validates s and returns it as an Identifier.
func NewIdentifier(s string) (Identifier, error) {
	if !identifierRe.MatchString(s) {
		return "", &ConfigError{Subject: "identifier", Value: s, Err: errors.New("must match [A-Za-z_][A-Za-z0-9_]*")}
	}
	return Identifier(s), nil
}

func (id Identifier) String() string { return string(id) }

// Part is one element of a Reference: a name or a non-negative index.
type Part struct {
	name    Identifier
	index   int
	isIndex bool
}

// NamePart returns a name part.
func NamePart(id Identifier) Part { return Part{name: id} }

// IndexPart returns an index part.
func IndexPart(i int) Part { return Part{index: i, isIndex: true} }

func (p Part) IsIndex() bool          { return p.isIndex }
func (p Part) Identifier() Identifier { return p.name }
func (p Part) Index() int             { return p.index }

func (p Part) String() string {
	if p.isIndex {
		return "[" + strconv.Itoa(p.index) + "]"
	}
	return string(p.name)
}

// Reference is an immutable, comparable hierarchical name. The zero value is
// the empty reference. Only the canonical text is stored so that References
// can be used directly as map keys.
type Reference struct {
	text string
}

// ParseReference parses the textual form of a reference.
func ParseReference(s string) (Reference, error) {
	parts, err := parseParts(s)
	if err != nil {
		return Reference{}, err
	}
	return Reference{text: formatParts(parts)}, nil
}

// MustParse is ParseReference for constants and tests; it panics on error.
func MustParse(s string) Reference {
	r, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return r
}

// NewReference builds a reference from parts. The first part must be a name.
func NewReference(parts ...Part) (Reference, error) {
	if len(parts) == 0 {
		return Reference{}, nil
	}
	if parts[0].isIndex {
		return Reference{}, &ConfigError{Subject: "reference", Value: formatParts(parts), Err: errors.New("must start with a name")}
	}
	for _, p := range parts {
		if p.isIndex && p.index < 0 {
			return Reference{}, &ConfigError{Subject: "reference", Value: formatParts(parts), Err: errors.New("negative index")}
		}
		if !p.isIndex {
			if _, err := NewIdentifier(string(p.name)); err != nil {
				return Reference{}, err
			}
		}
	}
	return Reference{text: formatParts(parts)}, nil
}

func (r Reference) String() string { return r.text }
func (r Reference) IsZero() bool   { return r.text == "" }

// Parts returns a fresh copy of the parts of r.
func (r Reference) Parts() []Part {
	if r.text == "" {
		return nil
	}
	parts, err := parseParts(r.text)
	if err != nil {
		// r.text is always produced by formatParts
		panic("ref: corrupt reference " + strconv.Quote(r.text))
	}
	return parts
}

// Len returns the number of parts.
func (r Reference) Len() int { return len(r.Parts()) }

// Prefix returns the reference made of the first n parts.
func (r Reference) Prefix(n int) Reference {
	parts := r.Parts()
	if n >= len(parts) {
		return r
	}
	if n <= 0 {
		return Reference{}
	}
	return Reference{text: formatParts(parts[:n])}
}

// Last returns the final part; ok is false for the empty reference.
func (r Reference) Last() (Part, bool) {
	parts := r.Parts()
	if len(parts) == 0 {
		return Part{}, false
	}
	return parts[len(parts)-1], true
}

// Concat appends the parts of other to r.
func (r Reference) Concat(other Reference) Reference {
	if r.text == "" {
		return other
	}
	return Reference{text: formatParts(append(r.Parts(), other.Parts()...))}
}

// AppendName appends a name part. id must be a valid Identifier.
func (r Reference) AppendName(id Identifier) Reference {
	if r.text == "" {
		return Reference{text: string(id)}
	}
	return Reference{text: r.text + "." + string(id)}
}

// AppendIndex appends index parts. Appending to the empty reference yields
// the empty reference, as a reference cannot start with an index.
func (r Reference) AppendIndex(idx ...int) Reference {
	if r.text == "" || len(idx) == 0 {
		return r
	}
	var b strings.Builder
	b.WriteString(r.text)
	for _, i := range idx {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(i))
		b.WriteByte(']')
	}
	return Reference{text: b.String()}
}

// SplitTrailingIndices separates the trailing run of index parts from r.
func (r Reference) SplitTrailingIndices() (Reference, []int) {
	parts := r.Parts()
	n := len(parts)
	for n > 0 && parts[n-1].isIndex {
		n--
	}
	if n == len(parts) {
		return r, nil
	}
	idx := make([]int, 0, len(parts)-n)
	for _, p := range parts[n:] {
		idx = append(idx, p.index)
	}
	return Reference{text: formatParts(parts[:n])}, idx
}

func formatParts(parts []Part) string {
	var b strings.Builder
	for i, p := range parts {
		if !p.isIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p.String())
	}
	return b.String()
}

func parseParts(s string) ([]Part, error) {
	bad := func(msg string) error {
		return &ConfigError{Subject: "reference", Value: s, Err: errors.New(msg)}
	}
	if s == "" {
		return nil, bad("empty reference")
	}
	var parts []Part
	afterDot := false
	for i := 0; i < len(s); {
		switch s[i] {
		case '[':
			if len(parts) == 0 || afterDot {
				return nil, bad("expected a name before '['")
			}
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, bad("unterminated index")
			}
			digits := s[i+1 : i+end]
			if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
				return nil, bad("index must be a non-negative integer")
			}
			n, err := strconv.Atoi(digits)
			if err != nil {
				return nil, bad("index out of range")
			}
			parts = append(parts, IndexPart(n))
			i += end + 1
		case '.':
			if len(parts) == 0 || afterDot {
				return nil, bad("empty name")
			}
			afterDot = true
			i++
		default:
			if len(parts) > 0 && !afterDot {
				return nil, bad("expected '.' or '[' between parts")
			}
			end := strings.IndexAny(s[i:], ".[")
			if end < 0 {
				end = len(s) - i
			}
			name := s[i : i+end]
			if !identifierRe.MatchString(name) {
				return nil, bad("invalid name " + strconv.Quote(name))
			}
			parts = append(parts, NamePart(Identifier(name)))
			afterDot = false
			i += end
		}
	}
	if afterDot {
		return nil, bad("trailing '.'")
	}
	return parts, nil
}
