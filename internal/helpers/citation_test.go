package helpers

import (
	"strings"
	"testing"
)

func TestFormatCitation(t *testing.T) {
	t.Parallel()
	c := Citation{
		Ref:         1,
		Title:       "Teaching the seasons",
		URL:         "https://www.edu.example.org/seasons?ref=home",
		Excerpt:     "Earth's tilt  causes\nthe seasons.",
		Published:   "Mar 4, 2025",
		Attribution: "CC BY 4.0",
	}
	got := FormatCitation(c)
	want := "[1] Teaching the seasons (edu.example.org; Mar 4, 2025; CC BY 4.0) <https://www.edu.example.org/seasons?ref=home>\nEarth's tilt causes the seasons."
	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationClipsExcerpt(t *testing.T) {
	t.Parallel()
	got := FormatCitation(Citation{Ref: 2, Excerpt: "가나다라마바사"}, WithMaxExcerpt(7))
	if got != "[2] Untitled\n가나…" {
		t.Fatalf("unexpected clipped citation %q", got)
	}
}

func TestFormatCitations(t *testing.T) {
	t.Parallel()
	out := FormatCitations([]Citation{
		{Ref: 1, Title: "First", URL: "https://a.example.com"},
		{Ref: 2, Title: "Second"},
	})
	if strings.Count(out, "\n\n") != 1 || !strings.HasPrefix(out, "[1] First (a.example.com) <https://a.example.com>") {
		t.Fatalf("unexpected citations %q", out)
	}
	if FormatCitations(nil) != "" {
		t.Fatalf("expected empty output for no citations")
	}
}
