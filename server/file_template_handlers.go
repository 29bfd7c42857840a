package server

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplates parses every page in the embedded filesystem once.
func ParseTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.ParseFS(TemplateFilesFS(), "*.html")
	})
	return templates, templatesErr
}

func renderPage(w http.ResponseWriter, name string, data any) {
	tmpl, err := ParseTemplates()
	if err != nil {
		log.Err(err).Str("template", name).Msg("failed to parse templates")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Err(err).Str("template", name).Msg("failed to render page")
	}
}
