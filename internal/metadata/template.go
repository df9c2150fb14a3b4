package metadata

import (
	"strings"
	"text/template"

	"github.com/ethpandaops/cwbackend/internal/backend"
)

// TemplateDimensions renders every dimension value as a template over md.
// Values that fail to parse or reference a missing key are kept verbatim
// and their names are returned in unresolved.
func TemplateDimensions(
	dims backend.OrderedMap,
	md map[string]string,
) (out backend.OrderedMap, unresolved []string) {
	for _, key := range dims.Keys() {
		raw, _ := dims.Get(key)

		value, err := render(key, raw, md)
		if err != nil {
			unresolved = append(unresolved, key)
			value = raw
		}

		out.Set(key, value)
	}

	return out, unresolved
}

func render(name, raw string, md map[string]string) (string, error) {
	if !strings.Contains(raw, "{{") {
		return raw, nil
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(raw)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, md); err != nil {
		return "", err
	}

	return sb.String(), nil
}
