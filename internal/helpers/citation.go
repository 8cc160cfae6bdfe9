package helpers

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Citation is one numbered web reference handed to a model.
type Citation struct {
	Ref         int
	Title       string
	URL         string
	Excerpt     string
	Published   string
	Attribution string
}

type citationConfig struct {
	maxExcerpt int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxExcerpt cuts excerpts to n bytes (default 600).
func WithMaxExcerpt(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n > 0 {
			cfg.maxExcerpt = n
		}
	}
}

// FormatCitation renders a citation as a header line followed by the excerpt:
//
//	[1] Title (example.org; Mar 4, 2025; CC BY 4.0) <https://example.org/a>
//	excerpt text
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxExcerpt: 600}
	for _, opt := range opts {
		opt(&cfg)
	}

	ref := "[?]"
	if c.Ref > 0 {
		ref = "[" + strconv.Itoa(c.Ref) + "]"
	}
	parts := []string{ref}
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = "Untitled"
	}
	parts = append(parts, title)

	var meta []string
	if d := citationDomain(c.URL); d != "" {
		meta = append(meta, d)
	}
	if p := strings.TrimSpace(c.Published); p != "" {
		meta = append(meta, p)
	}
	if a := strings.TrimSpace(c.Attribution); a != "" {
		meta = append(meta, a)
	}
	if len(meta) > 0 {
		parts = append(parts, "("+strings.Join(meta, "; ")+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}

	header := strings.Join(parts, " ")
	if excerpt := clipExcerpt(c.Excerpt, cfg.maxExcerpt); excerpt != "" {
		return header + "\n" + excerpt
	}
	return header
}

// FormatCitations renders citations separated by blank lines.
func FormatCitations(citations []Citation, opts ...CitationOption) string {
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		out = append(out, FormatCitation(c, opts...))
	}
	return strings.Join(out, "\n\n")
}

func clipExcerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return strings.TrimSpace(cut) + "…"
}

func citationDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
