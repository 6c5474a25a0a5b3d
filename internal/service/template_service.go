// internal/service/template_service.go
package service

import (
	"regexp"
	"sort"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ExtractVariables returns the distinct {{name}} tokens referenced by text,
// sorted. Only word characters are recognized inside the braces; names are
// case-sensitive.
func ExtractVariables(text string) []string {
	seen := map[string]bool{}
	names := []string{}
	for _, match := range variablePattern.FindAllStringSubmatch(text, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	sort.Strings(names)
	return names
}

// Substitute replaces every {{name}} occurrence with vars[name], or the
// empty string when the recipient has no value for it. A missing variable
// is a design decision, not a validation failure: the send still goes out.
// Substitution is a single pass, so values containing further tokens are
// never expanded recursively.
func Substitute(text string, vars map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(token string) string {
		name := variablePattern.FindStringSubmatch(token)[1]
		return vars[name]
	})
}

// MissingVariables reports which referenced names the recipient's variable
// map does not cover. Used to warn at preview time; never blocks a send.
func MissingVariables(text string, vars map[string]string) []string {
	missing := []string{}
	for _, name := range ExtractVariables(text) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
