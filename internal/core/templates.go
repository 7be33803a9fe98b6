package core

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/valter-silva-au/taskboard/internal/storage"
)

// DefaultTemplateName is the template used when none is selected.
const DefaultTemplateName = "default"

// TemplateData holds the placeholders available to body templates. Absent
// values render as empty strings.
type TemplateData struct {
	Title    string
	Stage    string
	Phase    string
	Agent    string
	Contexts string
	Tags     string
	Content  string
}

// TemplateManager renders task body templates from the templates directory,
// falling back to built-in defaults.
type TemplateManager interface {
	Render(name string, data TemplateData) (string, error)
	List() ([]string, error)
}

type templateManager struct {
	fs  storage.FileStore
	dir string
}

// NewTemplateManager creates a TemplateManager reading <dir>/<name>.md.
func NewTemplateManager(fs storage.FileStore, dir string) TemplateManager {
	return &templateManager{fs: fs, dir: dir}
}

// Render executes the named template. A workspace file takes precedence over
// a built-in template of the same name.
func (tm *templateManager) Render(name string, data TemplateData) (string, error) {
	if name == "" {
		name = DefaultTemplateName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid template name %q: %w", name, ErrInvalidInput)
	}

	raw, err := tm.fs.ReadFile(filepath.Join(tm.dir, name+".md"))
	switch {
	case err == nil:
	case storage.IsNotFound(err):
		builtin, ok := builtinTemplates[name]
		if !ok {
			return "", fmt.Errorf("template %q: %w", name, ErrNotFound)
		}
		raw = []byte(builtin)
	default:
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}

	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

// List returns the built-in and workspace template names, sorted.
func (tm *templateManager) List() ([]string, error) {
	seen := make(map[string]bool)
	for name := range builtinTemplates {
		seen[name] = true
	}
	entries, err := tm.fs.ListDir(tm.dir)
	if err != nil && !storage.IsNotFound(err) {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir && strings.HasSuffix(e.Name, ".md") {
			seen[strings.TrimSuffix(e.Name, ".md")] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

var builtinTemplates = map[string]string{
	DefaultTemplateName: `# {{.Title}}

{{if .Phase}}- Phase: {{.Phase}}
{{end}}{{if .Agent}}- Agent: {{.Agent}}
{{end}}{{if .Contexts}}- Contexts: {{.Contexts}}
{{end}}{{if .Tags}}- Tags: {{.Tags}}
{{end}}
` + UserContentMarker + `
{{.Content}}
`,
	"bug": `# {{.Title}}

## Steps to reproduce

## Expected

## Actual

` + UserContentMarker + `
{{.Content}}
`,
	"spike": `# {{.Title}}

## Question

## Findings

` + UserContentMarker + `
{{.Content}}
`,
}
