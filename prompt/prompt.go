// Package prompt renders handler instructions and assembles system prompts
// from named sections.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
)

// Template is a named text/template.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content. Missing keys render as errors rather than
// "<no value>".
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	return &Template{Name: name, Content: content, template: tmpl}, nil
}

// Render executes the template with vars.
func (t *Template) Render(vars any) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %q: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Manager holds templates keyed by handler name.
// All operations are safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{templates: make(map[string]*Template)}
}

// Register adds a template. Names must be unique.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl == nil || tmpl.Name == "" {
		return fmt.Errorf("register template: %w", errorskg.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.templates[tmpl.Name]; exists {
		return fmt.Errorf("register template %q: %w", tmpl.Name, errorskg.ErrAlreadyExists)
	}
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString parses and registers content under name.
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get returns the template registered under name.
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", name, errorskg.ErrNotFound)
	}
	return tmpl, nil
}

// Render renders the template registered under name.
func (m *Manager) Render(name string, vars any) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// List returns the registered names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder assembles a prompt from parts separated by blank lines.
// Empty parts are skipped.
type Builder struct {
	parts []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends part.
func (b *Builder) Add(part string) *Builder {
	if strings.TrimSpace(part) != "" {
		b.parts = append(b.parts, strings.TrimRight(part, "\n"))
	}
	return b
}

// AddFormat appends a formatted part.
func (b *Builder) AddFormat(format string, args ...any) *Builder {
	return b.Add(fmt.Sprintf(format, args...))
}

// AddSection appends a markdown section. Nothing is added when content is
// empty.
func (b *Builder) AddSection(title, content string) *Builder {
	if strings.TrimSpace(content) == "" {
		return b
	}
	return b.Add(fmt.Sprintf("## %s\n%s", title, strings.TrimRight(content, "\n")))
}

// AddBlock appends content between delimiter lines:
//
//	--- NAME ---
//	content
//	--- END NAME ---
func (b *Builder) AddBlock(name, content string) *Builder {
	if strings.TrimSpace(content) == "" {
		return b
	}
	return b.Add(fmt.Sprintf("--- %s ---\n%s\n--- END %s ---", name, strings.TrimRight(content, "\n"), name))
}

// Len reports the number of parts.
func (b *Builder) Len() int { return len(b.parts) }

// Build joins the parts.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "\n\n")
}

// Reset clears all parts.
func (b *Builder) Reset() *Builder {
	b.parts = nil
	return b
}
