package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv substitutes environment variables into YAML content using Go
// template syntax: {{.VAR_NAME}}. The usual ${VAR} form is deliberately
// not supported — masking pattern overrides and pasted log excerpts carry
// literal $ characters ("^secret.*$", "p@ss$word", "$PATH") that dollar
// expansion would corrupt, while template braces never collide with
// regex or shell text in practice.
//
// Unset variables expand to the empty string; config validation is
// responsible for rejecting required fields that end up empty. Content
// that fails to parse or execute as a template is returned untouched, so
// plain YAML passes through.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string, len(os.Environ()))
	for _, kv := range os.Environ() {
		// SplitN, not Split: values may contain '='.
		if parts := strings.SplitN(kv, "=", 2); len(parts) == 2 && parts[0] != "" {
			env[parts[0]] = parts[1]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
