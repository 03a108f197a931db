// Package templates renders the import workflow UI as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// PanelID is the element swapped by HTMX after every workflow action.
const PanelID = "workflow"

const htmxSrc = "https://unpkg.com/htmx.org@2.0.4"

// Page renders the full document around the workflow panel.
func Page(v workflow.View) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>Excel to SQL</title>`)
		p.raw(`<script src="` + htmxSrc + `"></script>`)
		p.raw(`</head><body hx-target="#` + PanelID + `" hx-swap="outerHTML">`)
		p.raw(`<main><h1>Excel to SQL Converter</h1>`)
		if p.err != nil {
			return p.err
		}
		if err := Panel(v).Render(ctx, w); err != nil {
			return err
		}
		p.raw(`</main></body></html>`)
		return p.err
	})
}

// Panel renders the forms, the busy indicators and the section for the
// current mode.
func Panel(v workflow.View) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf(`<section id="%s" data-mode="%s">`, PanelID, v.Mode)

		fileForm(p, "master", "Master data file", v.MasterFile)
		fileForm(p, "employee", "Employee details file", v.EmployeeFile)
		configForm(p, v.Config)
		actions(p, v)

		if p.err != nil {
			return p.err
		}

		switch v.Mode {
		case workflow.ModeErrorDisplayed:
			if err := ErrorAlert(v.Error, v.ErrorAction, v.ErrorCode).Render(ctx, w); err != nil {
				return err
			}
		case workflow.ModeValidationDisplayed:
			validation(p, v.Validation)
		case workflow.ModeGenerationSucceeded:
			success(p, v.Result)
		case workflow.ModeGenerationFailed:
			failure(p, v)
		}

		p.raw(`</section>`)
		return p.err
	})
}

// ErrorAlert renders a user-facing error with its suggested action and
// support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<div class="alert alert-error" role="alert">`)
		p.printf(`<p class="alert-message">%s</p>`, templ.EscapeString(message))
		if action != "" {
			p.printf(`<p class="alert-action">%s</p>`, templ.EscapeString(action))
		}
		if code != "" {
			p.printf(`<p class="alert-code">Code: %s</p>`, templ.EscapeString(code))
		}
		p.raw(`</div>`)
		return p.err
	})
}

func fileForm(p *printer, slot, label, current string) {
	p.printf(`<form method="post" action="/workflow/%s" enctype="multipart/form-data" hx-post="/workflow/%s" hx-encoding="multipart/form-data" hx-trigger="change">`, slot, slot)
	p.printf(`<label>%s <input type="file" name="file" accept=".xlsx,.xls"></label>`, label)
	if current != "" {
		p.printf(`<span class="file-name">%s</span>`, templ.EscapeString(current))
	}
	p.raw(`<noscript><button type="submit">Upload</button></noscript></form>`)
}

func configForm(p *printer, cfg workflow.Configuration) {
	p.raw(`<form method="post" action="/workflow/config" hx-post="/workflow/config" hx-trigger="change">`)
	field := func(name, label string, v int64) {
		p.printf(`<label>%s <input type="number" min="0" name="%s" value="%d"></label>`, label, name, v)
	}
	field("tenant_id", "Tenant ID", cfg.TenantID)
	field("operated_by_uid", "Operated by UID", cfg.OperatedByUID)
	field("starting_uid", "Starting UID", cfg.StartingUID)
	p.raw(`<noscript><button type="submit">Save</button></noscript></form>`)
}

func actions(p *printer, v workflow.View) {
	ready := v.MasterFile != "" && v.EmployeeFile != ""

	p.raw(`<div class="actions">`)
	p.raw(`<form method="post" action="/workflow/validate" hx-post="/workflow/validate">`)
	p.printf(`<button type="submit"%s>%s</button></form>`,
		disabled(!ready || v.Validating), label(v.Validating, "Validating...", "Validate Data"))

	p.raw(`<form method="post" action="/workflow/generate" hx-post="/workflow/generate">`)
	p.raw(`<label><input type="checkbox" name="skip_validation" value="true"> Skip validation</label>`)
	p.printf(`<button type="submit"%s>%s</button></form>`,
		disabled(!ready || v.Generating), label(v.Generating, "Generating...", "Generate SQL"))

	if v.MasterFile != "" || v.EmployeeFile != "" {
		p.raw(`<form method="post" action="/workflow/reset" hx-post="/workflow/reset">`)
		p.raw(`<button type="submit" class="secondary">Start over</button></form>`)
	}
	p.raw(`</div>`)
}

func validation(p *printer, r *workflow.ValidationReport) {
	if r == nil {
		return
	}
	md := r.MasterDataValidation
	ed := r.EmployeeDataValidation

	p.raw(`<div class="validation">`)
	if r.CanProceed {
		p.raw(`<p class="status ok">Validation passed. You can generate SQL.</p>`)
	} else {
		p.raw(`<p class="status blocked">Validation found errors. Fix them before generating SQL.</p>`)
	}

	p.raw(`<h2>Master data</h2>`)
	p.printf(`<p>Designations: %d, Offices: %d</p>`, md.DesignationCount, md.OfficeCount)
	issues(p, "Errors", md.Errors)
	issues(p, "Warnings", md.Warnings)

	p.raw(`<h2>Employee data</h2>`)
	p.printf(`<p>Rows: %d, Errors: %d, Warnings: %d</p>`,
		ed.Summary.TotalRows, ed.Summary.ErrorCount, ed.Summary.WarningCount)
	issues(p, "Errors", ed.Errors)
	issues(p, "Warnings", ed.Warnings)
	p.raw(`</div>`)
}

func issues(p *printer, title string, list []workflow.Issue) {
	if len(list) == 0 {
		return
	}
	p.printf(`<h3>%s</h3><ul>`, title)
	for _, is := range list {
		p.raw(`<li>`)
		if is.Type != "" {
			p.printf(`<span class="issue-type">%s</span> `, templ.EscapeString(is.Type))
		}
		if is.Row != nil {
			p.printf(`Row %d: `, *is.Row)
		}
		p.raw(templ.EscapeString(is.Message))
		if is.Value != nil {
			p.printf(` <code>%s</code>`, templ.EscapeString(fmt.Sprint(is.Value)))
		}
		p.raw(`</li>`)
	}
	p.raw(`</ul>`)
}

func success(p *printer, g *workflow.GenerationResult) {
	if g == nil {
		return
	}
	p.raw(`<div class="result ok"><p class="status ok">SQL generated successfully.</p>`)
	stats(p, g.Stats)
	if g.SQLPreview != "" {
		p.printf(`<pre class="sql-preview">%s</pre>`, templ.EscapeString(g.SQLPreview))
	}
	href := "/workflow/download/" + url.PathEscape(g.Filename)
	p.printf(`<a class="download" href="%s" download>Download %s</a>`,
		templ.EscapeString(href), templ.EscapeString(g.Filename))
	p.raw(`</div>`)
}

func failure(p *printer, v workflow.View) {
	g := v.Result
	if g == nil {
		return
	}
	p.raw(`<div class="result failed">`)
	p.printf(`<p class="status failed">%s</p>`, templ.EscapeString(g.Message))
	stats(p, g.Stats)
	if len(g.Errors) > 0 {
		p.raw(`<ul class="errors">`)
		for _, e := range g.Errors {
			p.printf(`<li>%s</li>`, templ.EscapeString(e))
		}
		p.raw(`</ul>`)
	}
	if v.CanShowDetails {
		p.raw(`<form method="post" action="/workflow/show-validation" hx-post="/workflow/show-validation">`)
		p.raw(`<button type="submit">Show validation details</button></form>`)
	}
	p.raw(`</div>`)
}

func stats(p *printer, s workflow.GenerationStats) {
	p.printf(`<dl class="stats"><dt>Total employees</dt><dd>%d</dd>`, s.TotalEmployees)
	p.printf(`<dt>Processed</dt><dd>%d</dd>`, s.SuccessfullyProcessed)
	p.printf(`<dt>Errors</dt><dd>%d</dd></dl>`, s.Errors)
}

func disabled(b bool) string {
	if b {
		return " disabled"
	}
	return ""
}

func label(busy bool, busyText, idleText string) string {
	if busy {
		return busyText
	}
	return idleText
}

// printer keeps the first write error and skips later writes.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *printer) printf(format string, args ...any) {
	if p.err == nil {
		_, p.err = fmt.Fprintf(p.w, format, args...)
	}
}

