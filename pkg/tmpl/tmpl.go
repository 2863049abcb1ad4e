// Package tmpl renders the text templates used for outgoing message bodies
// and lifecycle hook commands.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// shellQuote wraps s in single quotes, escaping embedded single quotes with
// the '\'' sequence so the result is a single shell word.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var funcs = template.FuncMap{
	"shq":  shellQuote,
	"trim": strings.TrimSpace,
}

// Render executes a Go template string with the given data. Undefined keys
// are an error rather than rendering "<no value>".
//
// Available template functions:
//   - shq: shell-quote a string for hook commands
//   - trim: strip leading and trailing whitespace
func Render(text string, data any) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// Parse compiles a template with the package functions installed. It is used
// to validate configured templates before they are ever rendered.
func Parse(text string) (*template.Template, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}
