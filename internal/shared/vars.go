package shared

import (
	"regexp"
	"strings"
)

var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// VarNames lists the {{name}} placeholders in s in order of appearance.
func VarNames(s string) []string {
	matches := varPattern.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// ExpandVars substitutes {{name}} placeholders from values. Placeholders with no
// value are removed.
func ExpandVars(s string, values map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		return values[name]
	})
}
