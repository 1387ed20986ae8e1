// Package renderer renders positions, ledgers and rate tables as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var templates embed.FS

// RenderPortfolio renders all positions and the net worth to markdown.
func RenderPortfolio(p *Portfolio) string {
	partials := map[string]string{
		"portfolio_title":     "portfolio_title.md",
		"portfolio_positions": "portfolio_positions.md",
		"portfolio_warnings":  "portfolio_warnings.md",
	}
	return renderTemplate("portfolio", "portfolio.md", partials, p)
}

// RenderLedger renders one position with its events.
func RenderLedger(l *Ledger) string {
	partials := map[string]string{
		"ledger_title":  "ledger_title.md",
		"ledger_events": "ledger_events.md",
	}
	return renderTemplate("ledger", "ledger.md", partials, l)
}

// RenderRates renders a rate table.
func RenderRates(r *Rates) string {
	return renderTemplate("rates", "rates.md", nil, r)
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name is a valid case, resulting in an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, "templates/"+file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
