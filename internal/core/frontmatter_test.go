package core

import (
	"strings"
	"testing"
)

func TestParseDocument_Basic(t *testing.T) {
	doc := ParseDocument("---\nid: fix-login\ntitle: Fix login\ntags: [auth, ui]\norder: 3\n---\n\n# Body\n")

	if !doc.HasBlock {
		t.Fatal("expected HasBlock = true")
	}
	if got := doc.Meta.String("id"); got != "fix-login" {
		t.Errorf("id = %q, want %q", got, "fix-login")
	}
	tags := doc.Meta.Strings("tags")
	if len(tags) != 2 || tags[0] != "auth" || tags[1] != "ui" {
		t.Errorf("tags = %v, want [auth ui]", tags)
	}
	v, _ := doc.Meta.Get("order")
	if v.Kind() != ValueScalar || v.Tag() != "!!int" || v.Text() != "3" {
		t.Errorf("order = %+v, want !!int scalar 3", v)
	}
	if doc.Body != "# Body\n" {
		t.Errorf("Body = %q, want %q", doc.Body, "# Body\n")
	}
	if got := strings.Join(doc.Meta.Keys(), ","); got != "id,title,tags,order" {
		t.Errorf("Keys = %s, want insertion order", got)
	}
}

func TestParseDocument_Tolerant(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no block", "# Just a body\n"},
		{"unterminated", "---\nid: x\nbody without end\n"},
		{"malformed yaml", "---\nid: [unclosed\n---\nbody\n"},
		{"not a mapping", "---\n- a\n- b\n---\nbody\n"},
		{"empty input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := ParseDocument(tt.input)
			if doc.HasBlock {
				t.Error("expected HasBlock = false")
			}
			if doc.Meta.Len() != 0 {
				t.Errorf("expected empty metadata, got keys %v", doc.Meta.Keys())
			}
			if doc.Body != tt.input {
				t.Errorf("Body = %q, want whole input %q", doc.Body, tt.input)
			}
		})
	}
}

func TestParseDocument_EmptyBlock(t *testing.T) {
	doc := ParseDocument("---\n---\n\nbody")
	if !doc.HasBlock {
		t.Error("expected HasBlock = true for empty block")
	}
	if doc.Meta.Len() != 0 {
		t.Errorf("expected no keys, got %v", doc.Meta.Keys())
	}
	if doc.Body != "body" {
		t.Errorf("Body = %q, want %q", doc.Body, "body")
	}
}

func TestParseDocument_NullValuesAreAbsent(t *testing.T) {
	doc := ParseDocument("---\nid: a\nphase:\nagent: ~\n---\n")
	if doc.Meta.Has("phase") || doc.Meta.Has("agent") {
		t.Errorf("null values should be dropped, got keys %v", doc.Meta.Keys())
	}
}

func TestParseDocument_UnknownValuesPassThrough(t *testing.T) {
	input := "---\nid: a\nextra:\n  nested: true\n  list: [1, 2]\n---\n\nbody"
	doc := ParseDocument(input)

	v, ok := doc.Meta.Get("extra")
	if !ok || v.Kind() != ValueUnknown {
		t.Fatalf("extra = %+v, want unknown value", v)
	}

	out, err := doc.String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	again := ParseDocument(out)
	v2, _ := again.Meta.Get("extra")
	if !v.Equal(v2) {
		t.Errorf("unknown value changed across round trip:\n%s", out)
	}
}

func TestSerialize_Format(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("id", "a")
	meta.SetList("tags", []string{"x"})
	meta.SetList("contexts", nil)
	meta.SetInt("order", 2)

	out, err := Serialize(meta, "body")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "---\nid: a\ntags: [x]\ncontexts: []\norder: 2\n---\n\nbody"
	if out != want {
		t.Errorf("Serialize =\n%q\nwant\n%q", out, want)
	}
}

func TestSerialize_EmptyMetadata(t *testing.T) {
	out, err := Serialize(NewMetadata(), "body")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if out != "---\n---\n\nbody" {
		t.Errorf("Serialize = %q", out)
	}
}

func TestSerialize_DeleteDropsKey(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("id", "a")
	meta.SetString("phase", "p1")
	meta.Delete("phase")

	out, _ := Serialize(meta, "")
	if strings.Contains(out, "phase") {
		t.Errorf("deleted key still serialized: %q", out)
	}
}

func TestSerialize_SpecialCharacters(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("title", "Fix: colon handling")
	meta.SetString("quote", `she said "hi" and 'bye'`)
	meta.SetString("multi", "line one\nline two\n")
	meta.SetString("number", "42")
	meta.SetString("boolish", "true")
	meta.SetList("tags", []string{"a, b", "[x]", "c: d"})

	out, err := Serialize(meta, "")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	doc := ParseDocument(out)
	for _, k := range meta.Keys() {
		want, _ := meta.Get(k)
		got, ok := doc.Meta.Get(k)
		if !ok {
			t.Errorf("key %q lost in:\n%s", k, out)
			continue
		}
		if !want.Equal(got) {
			t.Errorf("key %q = %+v, want %+v\n%s", k, got, want, out)
		}
	}
}

func TestSerialize_MultiLineRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"leading tab", "\tx\ny"},
		{"only break", "\n"},
		{"leading break", "\nlead"},
		{"trailing break", "a\n"},
		{"blank middle line", "a\n\nb"},
		{"leading spaces", "  lead\nx"},
		{"trailing space before break", "trail \nx"},
		{"carriage return", "x\r\ny"},
		{"lone carriage return", "x\ry"},
		{"line separator", "x\u2028y"},
		{"next line", "x\u0085y"},
		{"plain lines", "line one\nline two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := NewMetadata()
			meta.SetString("title", "Alpha")
			meta.SetString("notes", tt.value)

			out, err := Serialize(meta, "body\n")
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			doc := ParseDocument(out)
			if !doc.HasBlock {
				t.Fatalf("block not recognized:\n%s", out)
			}
			if got := doc.Meta.String("title"); got != "Alpha" {
				t.Errorf("title = %q, want Alpha", got)
			}
			if got := doc.Meta.String("notes"); got != tt.value {
				t.Errorf("notes = %q, want %q\n%s", got, tt.value, out)
			}
			if doc.Body != "body\n" {
				t.Errorf("Body = %q", doc.Body)
			}
		})
	}
}

func TestSerialize_ReadableLinesStayLiteral(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("notes", "line one\nline two")

	out, err := Serialize(meta, "")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(out, "notes: |-\n  line one\n  line two\n") {
		t.Errorf("expected literal block, got:\n%s", out)
	}
}

func TestLiteralSafe(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"line one\nline two", true},
		{"a\n\nb", true},
		{"a\n  indented", true},
		{"", false},
		{"\tx\ny", false},
		{"a\tb\nc", false},
		{"\nlead", false},
		{"a\n", false},
		{" lead\nx", false},
		{"trail \nx", false},
		{"x\r\ny", false},
		{"x\u2028\ny", false},
	}
	for _, tt := range tests {
		if got := literalSafe(tt.in); got != tt.want {
			t.Errorf("literalSafe(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMetadata_SetKeepsPosition(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("a", "1")
	meta.SetString("b", "2")
	meta.SetString("a", "3")

	if got := strings.Join(meta.Keys(), ","); got != "a,b" {
		t.Errorf("Keys = %s, want a,b", got)
	}
	if meta.String("a") != "3" {
		t.Errorf("a = %q, want 3", meta.String("a"))
	}
}

func TestMetadata_StringsPromotesScalar(t *testing.T) {
	meta := NewMetadata()
	meta.SetString("context", "auth")
	meta.SetString("blank", "  ")

	if got := meta.Strings("context"); len(got) != 1 || got[0] != "auth" {
		t.Errorf("Strings(context) = %v, want [auth]", got)
	}
	if got := meta.Strings("blank"); got != nil {
		t.Errorf("Strings(blank) = %v, want nil", got)
	}
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	meta := NewMetadata()
	meta.SetList("tags", []string{"a"})
	c := meta.Clone()
	c.SetList("tags", []string{"b"})
	c.SetString("new", "x")

	if got := meta.Strings("tags"); got[0] != "a" {
		t.Errorf("original tags changed to %v", got)
	}
	if meta.Has("new") {
		t.Error("original gained a key from the clone")
	}
}
