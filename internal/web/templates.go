// Package web serves the viewer's HTML pages from embedded templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names.
const (
	IndexPage = "index.html"
	HelpPage  = "help.html"
)

// PageData is passed to every page.
type PageData struct {
	Title       string
	Version     string
	DemoMode    bool
	MaxUploadMB int64
	Formats     []int
}

// TemplateProvider abstracts template execution so handlers can be tested
// with a stub.
type TemplateProvider interface {
	ExecuteTemplate(w io.Writer, name string, data interface{}) error
}

// EmbeddedTemplateProvider holds templates parsed from an fs.FS.
type EmbeddedTemplateProvider struct {
	pages map[string]*template.Template
}

// NewEmbeddedTemplateProvider parses the built-in pages.
func NewEmbeddedTemplateProvider() (*EmbeddedTemplateProvider, error) {
	return NewTemplateProvider(templatesFS, "templates")
}

// NewTemplateProvider parses every .html file under dir in fsys. Templates
// are parsed up front so execution needs no locking.
func NewTemplateProvider(fsys fs.FS, dir string) (*EmbeddedTemplateProvider, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(sub, "*.html")
	if err != nil {
		return nil, err
	}

	p := &EmbeddedTemplateProvider{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		t, err := template.ParseFS(sub, name)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		p.pages[name] = t
	}
	return p, nil
}

// ExecuteTemplate renders the named page.
func (p *EmbeddedTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	t, ok := p.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.Execute(w, data)
}
