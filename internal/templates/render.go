// Package templates renders the HTML fragments of the map: popups and the task summary.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
	"strconv"
	"sync"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// coord formats a latitude or longitude with six decimals
	"coord": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 6, 64)
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New parses every fragments/*.html file in fsys.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Default returns a renderer over the fragments compiled into the binary.
func Default() *Renderer {
	r, err := New(embedded)
	if err != nil {
		panic(err)
	}
	return r
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, "fragments/*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// Reload swaps in fragments from a directory on disk (useful for dev hot-reload).
// dir must contain a fragments/ subdirectory.
func (r *Renderer) Reload(dir string) error {
	tmpl, err := parse(os.DirFS(dir))
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
