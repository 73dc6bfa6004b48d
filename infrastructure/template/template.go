// Package template renders the system prompts of commit message templates.
package template

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultID is the template used when none is configured.
const DefaultID = "conventional"

// DefaultLanguage is the output language used when none is configured.
const DefaultLanguage = "English"

// ErrNotFound indicates the template id is unknown.
var ErrNotFound = errors.New("template not found")

//go:embed templates.yaml
var builtin []byte

// Context is the data a system prompt is rendered with.
type Context struct {
	Language   string
	BranchHint string
}

// Provider renders template system prompts.
type Provider interface {
	Has(id string) bool
	RenderSystemPrompt(id string, ctx Context) (string, error)
}

// Info describes a loaded template.
type Info struct {
	ID   string
	Name string
}

type fileFormat struct {
	Templates []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		SystemPrompt string `yaml:"system_prompt"`
	} `yaml:"templates"`
}

type entry struct {
	info   Info
	prompt *template.Template
}

// YAMLProvider serves templates parsed from YAML documents.
type YAMLProvider struct {
	entries map[string]entry
}

// NewYAMLProvider parses templates from YAML documents. Later documents
// override templates with the same id.
func NewYAMLProvider(docs ...[]byte) (*YAMLProvider, error) {
	p := &YAMLProvider{entries: make(map[string]entry)}
	for _, doc := range docs {
		if err := p.load(doc); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewDefaultProvider returns the built-in templates, overridden by the
// templates in path when path is not empty.
func NewDefaultProvider(path string) (*YAMLProvider, error) {
	if path == "" {
		return NewYAMLProvider(builtin)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return NewYAMLProvider(builtin, data)
}

func (p *YAMLProvider) load(doc []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	for _, t := range f.Templates {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return errors.New("parse templates: template without id")
		}

		prompt, err := template.New(id).Option("missingkey=zero").Parse(t.SystemPrompt)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", id, err)
		}

		name := t.Name
		if name == "" {
			name = id
		}
		p.entries[id] = entry{info: Info{ID: id, Name: name}, prompt: prompt}
	}
	return nil
}

// Has reports whether template id is loaded.
func (p *YAMLProvider) Has(id string) bool {
	_, ok := p.entries[id]
	return ok
}

// RenderSystemPrompt renders the system prompt of template id.
func (p *YAMLProvider) RenderSystemPrompt(id string, ctx Context) (string, error) {
	e, ok := p.entries[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if ctx.Language == "" {
		ctx.Language = DefaultLanguage
	}

	var b strings.Builder
	if err := e.prompt.Execute(&b, ctx); err != nil {
		return "", fmt.Errorf("render template %s: %w", id, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Templates lists the loaded templates ordered by id.
func (p *YAMLProvider) Templates() []Info {
	infos := make([]Info, 0, len(p.entries))
	for _, e := range p.entries {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

var _ Provider = (*YAMLProvider)(nil)
