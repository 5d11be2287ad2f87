package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const (
	DefaultTitleTemplate = `{{.Icon}} {{if .Danger}}ALERT BAHAYA{{else}}Status Update{{end}}: {{.Sensor}}`
	DefaultBodyTemplate  = `Status berubah menjadi {{.Status}} (Confidence: {{.Confidence}}%){{if .Danger}} - SEGERA EVAKUASI!{{end}}`
)

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Icon       string
	Sensor     string
	Status     string
	Previous   string
	Confidence int
	Tier       string
	Danger     bool
}

// Template renders notification titles and bodies.
type Template struct {
	title *template.Template
	body  *template.Template
}

// NewTemplate parses the title and body templates, falling back to the defaults when empty.
func NewTemplate(title, body string) (*Template, error) {
	if title == "" {
		title = DefaultTitleTemplate
	}
	if body == "" {
		body = DefaultBodyTemplate
	}
	titleTpl, err := template.New("push-title").Option("missingkey=error").Parse(title)
	if err != nil {
		return nil, err
	}
	bodyTpl, err := template.New("push-body").Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, err
	}
	return &Template{title: titleTpl, body: bodyTpl}, nil
}

// Render applies the templates to data.
func (t *Template) Render(data TemplateData) (string, string, error) {
	if t == nil || t.title == nil || t.body == nil {
		return "", "", errors.New("push template: nil")
	}
	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", err
	}
	if err := t.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return title.String(), body.String(), nil
}
