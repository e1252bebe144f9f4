package email

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

//go:embed tmpl/*.html
var templateFS embed.FS

// Template names.
const (
	DigestTemplate   = "digest.html"
	FallbackTemplate = "fallback.html"
)

// TemplateNotFoundError is returned when no template has the requested name.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %q not found", e.Name)
}

// IsTemplateNotFound reports whether err is a TemplateNotFoundError.
func IsTemplateNotFound(err error) bool {
	var e *TemplateNotFoundError
	return errors.As(err, &e)
}

// Renderer renders a named template.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Templates is the embedded template set, optionally overridden by files in a directory.
type Templates struct {
	set *template.Template
}

// LoadTemplates parses the embedded templates and then any *.html file in
// overrideDir, which replaces the embedded template of the same name.
func LoadTemplates(overrideDir string) (*Templates, error) {
	set, err := template.New("").ParseFS(templateFS, "tmpl/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse embedded templates: %w", err)
	}
	if overrideDir == "" {
		return &Templates{set: set}, nil
	}

	matches, err := fs.Glob(os.DirFS(overrideDir), "*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", overrideDir, err)
	}
	for _, name := range matches {
		src, err := os.ReadFile(filepath.Join(overrideDir, name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		if _, err := set.New(name).Parse(string(src)); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	return &Templates{set: set}, nil
}

// Render executes the named template.
func (t *Templates) Render(name string, data any) (string, error) {
	tmpl := t.set.Lookup(name)
	if tmpl == nil {
		return "", &TemplateNotFoundError{Name: name}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// plainText derives the plain-text alternative of an HTML body.
func plainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("style, script, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, h1, h2, h3, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text), nil
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
