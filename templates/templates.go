package templates

import (
	"embed"
	"html/template"
)

//go:embed *.html
var FS embed.FS

// Parse loads one embedded template by file name.
func Parse(name string) (*template.Template, error) {
	return template.ParseFS(FS, name)
}
