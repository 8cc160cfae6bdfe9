package helpers

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy
)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() { strict = bluemonday.StrictPolicy() })
	return strict
}

// PlainText strips every tag from s, drops script and style bodies, decodes
// entities and collapses whitespace. The result is meant for prompts and
// stored answers, never for rendering as HTML.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strictPolicy().Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
