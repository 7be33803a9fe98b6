package core

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// ValueKind identifies the variant held by a metadata Value.
type ValueKind int

const (
	ValueScalar ValueKind = iota
	ValueList
	ValueUnknown
)

// Value is one frontmatter value: a scalar, a list of strings, or an
// arbitrary YAML node carried through untouched.
type Value struct {
	kind  ValueKind
	text  string
	tag   string
	items []string
	node  *yaml.Node
}

// Scalar returns a string scalar value.
func Scalar(s string) Value {
	return Value{kind: ValueScalar, text: s, tag: "!!str"}
}

// TypedScalar returns a scalar carrying an explicit YAML tag such as !!int.
func TypedScalar(s, tag string) Value {
	return Value{kind: ValueScalar, text: s, tag: tag}
}

// List returns a string-list value. A nil or empty slice yields an empty list.
func List(items ...string) Value {
	return Value{kind: ValueList, items: append([]string{}, items...)}
}

// Unknown wraps a YAML node the codec does not interpret.
func Unknown(n *yaml.Node) Value {
	return Value{kind: ValueUnknown, node: n}
}

func (v Value) Kind() ValueKind { return v.kind }

// Text returns the scalar text, or "" for non-scalars.
func (v Value) Text() string { return v.text }

// Tag returns the YAML short tag of a scalar.
func (v Value) Tag() string { return v.tag }

// Items returns a copy of the list items, or nil for non-lists.
func (v Value) Items() []string {
	if v.kind != ValueList {
		return nil
	}
	return append([]string{}, v.items...)
}

// Node returns the raw node of an Unknown value.
func (v Value) Node() *yaml.Node { return v.node }

// Equal reports whether two values hold the same logical content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueScalar:
		return v.text == o.text && v.tag == o.tag
	case ValueList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if v.items[i] != o.items[i] {
				return false
			}
		}
		return true
	default:
		a, errA := yaml.Marshal(v.node)
		b, errB := yaml.Marshal(o.node)
		return errA == nil && errB == nil && bytes.Equal(a, b)
	}
}

// Metadata is an insertion-ordered frontmatter mapping.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// NewMetadata returns an empty mapping.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

func (m *Metadata) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *Metadata) Keys() []string {
	return append([]string{}, m.keys...)
}

func (m *Metadata) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *Metadata) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Set stores v under key, keeping the key's original position if it exists.
func (m *Metadata) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Metadata) SetString(key, s string) { m.Set(key, Scalar(s)) }

func (m *Metadata) SetList(key string, items []string) { m.Set(key, List(items...)) }

func (m *Metadata) SetInt(key string, n int) {
	m.Set(key, TypedScalar(fmt.Sprintf("%d", n), "!!int"))
}

func (m *Metadata) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// String returns the scalar text for key, or "".
func (m *Metadata) String(key string) string {
	v, ok := m.values[key]
	if !ok || v.kind != ValueScalar {
		return ""
	}
	return v.text
}

// Strings returns key as a list. A scalar is promoted to a one-element list;
// an empty scalar yields nil.
func (m *Metadata) Strings(key string) []string {
	v, ok := m.values[key]
	if !ok {
		return nil
	}
	switch v.kind {
	case ValueList:
		return v.Items()
	case ValueScalar:
		if strings.TrimSpace(v.text) == "" {
			return nil
		}
		return []string{v.text}
	}
	return nil
}

// Clone returns a deep copy of the scalar and list values. Unknown nodes are
// shared since they are never mutated.
func (m *Metadata) Clone() *Metadata {
	c := NewMetadata()
	for _, k := range m.keys {
		v := m.values[k]
		if v.kind == ValueList {
			v.items = v.Items()
		}
		c.Set(k, v)
	}
	return c
}

// Document is a task file split into frontmatter and body.
type Document struct {
	Meta     *Metadata
	Body     string
	HasBlock bool
}

// ParseDocument splits text into metadata and body. It never fails: a
// missing or malformed block yields empty metadata and the whole text as body.
func ParseDocument(text string) *Document {
	whole := &Document{Meta: NewMetadata(), Body: text}

	rest, ok := cutOpeningDelim(text)
	if !ok {
		return whole
	}
	block, body, ok := cutClosingDelim(rest)
	if !ok {
		return whole
	}

	meta, err := decodeMetadata(block)
	if err != nil {
		return whole
	}
	// Drop the single blank separator line written by Serialize.
	if strings.HasPrefix(body, "\r\n") {
		body = body[2:]
	} else {
		body = strings.TrimPrefix(body, "\n")
	}
	return &Document{Meta: meta, Body: body, HasBlock: true}
}

// String renders the document back to text.
func (d *Document) String() (string, error) {
	return Serialize(d.Meta, d.Body)
}

// Serialize renders meta as a frontmatter block followed by body.
func Serialize(meta *Metadata, body string) (string, error) {
	var sb strings.Builder
	sb.WriteString(frontmatterDelim + "\n")
	if meta != nil && meta.Len() > 0 {
		out, err := encodeMetadata(meta)
		if err != nil {
			return "", fmt.Errorf("encoding frontmatter: %w", err)
		}
		sb.Write(out)
	}
	sb.WriteString(frontmatterDelim + "\n\n")
	sb.WriteString(body)
	return sb.String(), nil
}

func cutOpeningDelim(text string) (string, bool) {
	for _, open := range []string{frontmatterDelim + "\n", frontmatterDelim + "\r\n"} {
		if strings.HasPrefix(text, open) {
			return text[len(open):], true
		}
	}
	return "", false
}

// cutClosingDelim finds the first line consisting solely of the delimiter and
// returns the YAML before it and everything after its line break.
func cutClosingDelim(rest string) (block, body string, ok bool) {
	pos := 0
	for pos <= len(rest) {
		end := strings.IndexByte(rest[pos:], '\n')
		var line string
		next := len(rest) + 1
		if end < 0 {
			line = rest[pos:]
		} else {
			line = rest[pos : pos+end]
			next = pos + end + 1
		}
		if strings.TrimRight(line, "\r") == frontmatterDelim {
			if next > len(rest) {
				return rest[:pos], "", true
			}
			return rest[:pos], rest[next:], true
		}
		if end < 0 {
			break
		}
		pos = next
	}
	return "", "", false
}

func decodeMetadata(block string) (*Metadata, error) {
	meta := NewMetadata()
	if strings.TrimSpace(block) == "" {
		return meta, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return meta, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("frontmatter is not a mapping")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("unsupported frontmatter key at line %d", keyNode.Line)
		}
		v, present := valueFromNode(valNode)
		if !present {
			continue
		}
		meta.Set(keyNode.Value, v)
	}
	return meta, nil
}

// valueFromNode converts a decoded node. Null scalars count as absent.
func valueFromNode(n *yaml.Node) (Value, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return Value{}, false
		}
		return TypedScalar(n.Value, n.ShortTag()), true
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode || c.ShortTag() == "!!null" {
				return Unknown(n), true
			}
			items = append(items, c.Value)
		}
		return List(items...), true
	default:
		return Unknown(n), true
	}
}

func encodeMetadata(meta *Metadata) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range meta.keys {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			nodeFromValue(meta.values[k]),
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nodeFromValue(v Value) *yaml.Node {
	switch v.kind {
	case ValueList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, item := range v.items {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return seq
	case ValueUnknown:
		return v.node
	default:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: v.tag, Value: v.text}
		if n.Tag == "" {
			n.Tag = "!!str"
		}
		if n.Tag == "!!str" && strings.ContainsAny(v.text, lineBreaks) {
			// yaml.v3 picks literal style for any multi-line string, even
			// ones it cannot read back that way, and folds other breaks
			// inside quoted scalars.
			if strings.Contains(v.text, "\n") && literalSafe(v.text) {
				n.Style = yaml.LiteralStyle
			} else {
				n.Style = yaml.DoubleQuotedStyle
			}
		}
		return n
	}
}

// lineBreaks holds every character a YAML reader treats as a line break.
const lineBreaks = "\n\r\u0085\u2028\u2029"

// literalSafe reports whether s reads back unchanged from a literal block.
// Tabs and carriage returns fail the printable check.
func literalSafe(s string) bool {
	if s == "" || s[0] == ' ' || s[0] == '\n' || strings.HasSuffix(s, "\n") {
		return false
	}
	for _, line := range strings.Split(s, "\n") {
		if strings.HasSuffix(line, " ") {
			return false
		}
		for _, r := range line {
			if r == utf8.RuneError || !unicode.IsPrint(r) {
				return false
			}
		}
	}
	return true
}
