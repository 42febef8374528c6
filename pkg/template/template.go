// Package template renders {{dotted.key}} tokens from a variable context.
package template

import (
	"regexp"
	"strings"

	"github.com/outflowhq/outflow/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render substitutes every {{key}} token in input with the context value
// bound to that dotted key. Unresolved tokens render as the empty string,
// never as the literal token, so a missing variable produces a gap in the
// message instead of leaking template syntax to an end user.
func Render(input string, vctx *models.VariableContext) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		key := tokenPattern.FindStringSubmatch(token)[1]

		return vctx.GetString(key)
	})
}

// Keys returns the dotted keys referenced by the input's tokens.
func Keys(input string) []string {
	matches := tokenPattern.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return nil
	}

	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}

	return keys
}
