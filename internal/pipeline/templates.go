package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const (
	// DefaultScriptTemplate is spoken in the personalized video.
	DefaultScriptTemplate = "Hello {{.Name}}! Welcome to our amazing video generation service. " +
		"We're excited to have you here from {{.Country}}. " +
		"This personalized video was created just for you using advanced AI technology. " +
		"We hope you enjoy this unique experience tailored specifically to your preferences. " +
		"Thank you for choosing our service, {{.Name}}!"

	// DefaultMessageTemplate is sent to the recipient once the video is ready.
	DefaultMessageTemplate = "Hi {{.Name}}! 🎥 Your personalized video is ready! Check it out: {{.URL}}"
)

type textData struct {
	Name    string
	Country string
	URL     string
}

func parseTemplate(name, tpl, fallback string) (*template.Template, error) {
	if strings.TrimSpace(tpl) == "" {
		tpl = fallback
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, data textData) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
