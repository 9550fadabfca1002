// Package paragraph implements the control-file-like text grammar spec.md
// §6 defines for status paragraphs, CONTROL-format ports, and listfiles'
// sibling metadata:
//
//	record   := field (LF field)* LF LF
//	field    := KEY ': ' value (LF ' ' continuation)*
//
// Fields are ordered (insertion order is preserved on round-trip) and
// unknown fields are preserved verbatim, per spec.md §6's forward-
// compatibility requirement. No corpus library implements this specific
// grammar, so it is hand-rolled (see DESIGN.md).
package paragraph

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Field is one KEY: value entry, preserving insertion order when part of
// a Paragraph.
type Field struct {
	Key   string
	Value string
}

// Paragraph is an ordered sequence of fields, i.e. one record of the
// grammar above.
type Paragraph struct {
	fields []Field
	index  map[string]int
}

// New returns an empty Paragraph.
func New() *Paragraph {
	return &Paragraph{index: make(map[string]int)}
}

// Set sets key to value, appending a new field if key is not already
// present, or overwriting in place (preserving position) if it is.
func (p *Paragraph) Set(key, value string) {
	if i, ok := p.index[key]; ok {
		p.fields[i].Value = value
		return
	}
	p.index[key] = len(p.fields)
	p.fields = append(p.fields, Field{Key: key, Value: value})
}

// Get returns the value for key and whether it was present.
func (p *Paragraph) Get(key string) (string, bool) {
	if i, ok := p.index[key]; ok {
		return p.fields[i].Value, true
	}
	return "", false
}

// Fields returns the fields in insertion order. Callers must not mutate
// the returned slice's backing array through the Field values (they are
// copies, so direct mutation is safe but has no effect on p).
func (p *Paragraph) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// Encode writes p in the grammar's field syntax, without the trailing
// blank-line record separator (callers writing multiple paragraphs add
// that themselves; see EncodeAll). Continuation lines are emitted for
// any value containing "\n", each continuation line prefixed with a
// single space per the grammar.
func (p *Paragraph) Encode(w io.Writer) error {
	for _, f := range p.fields {
		lines := strings.Split(f.Value, "\n")
		if _, err := fmt.Fprintf(w, "%s: %s\n", f.Key, lines[0]); err != nil {
			return err
		}
		for _, cont := range lines[1:] {
			if _, err := fmt.Fprintf(w, " %s\n", cont); err != nil {
				return err
			}
		}
	}
	return nil
}

// EncodeAll renders paragraphs separated by a blank line after each,
// matching spec.md §6's "blank lines separating records."
func EncodeAll(paragraphs []*Paragraph) string {
	var buf bytes.Buffer
	for _, p := range paragraphs {
		p.Encode(&buf)
		buf.WriteByte('\n')
	}
	return buf.String()
}

// ParseAll parses zero or more blank-line-separated paragraphs from r.
func ParseAll(r io.Reader) ([]*Paragraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []*Paragraph
	cur := New()
	var lastKey string
	empty := true

	flush := func() {
		if !empty {
			out = append(out, cur)
		}
		cur = New()
		lastKey = ""
		empty = true
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, " ") {
			if lastKey == "" {
				return nil, fmt.Errorf("paragraph: line %d: continuation with no preceding field", lineNo)
			}
			prev, _ := cur.Get(lastKey)
			cur.Set(lastKey, prev+"\n"+line[1:])
			continue
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			// Tolerate a bare "KEY:" with empty value.
			if strings.HasSuffix(line, ":") {
				key := line[:len(line)-1]
				cur.Set(key, "")
				lastKey = key
				empty = false
				continue
			}
			return nil, fmt.Errorf("paragraph: line %d: malformed field %q", lineNo, line)
		}
		key := line[:idx]
		value := line[idx+2:]
		cur.Set(key, value)
		lastKey = key
		empty = false
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// ParseAllString is a convenience wrapper around ParseAll for in-memory
// text.
func ParseAllString(s string) ([]*Paragraph, error) {
	return ParseAll(strings.NewReader(s))
}
