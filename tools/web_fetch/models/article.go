package models

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// FromHTML runs readability over raw HTML and builds a Result. Text is cut to
// maxChars runes.
func FromHTML(rawURL, html string, maxChars int, started time.Time) Result {
	sum := sha1.Sum([]byte(html))
	res := Result{
		URL:      rawURL,
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   200,
	}
	article, err := readability.FromReader(strings.NewReader(html), parseURL(rawURL))
	if err != nil {
		res.RenderMS = int(time.Since(started) / time.Millisecond)
		return res
	}
	text := strings.TrimSpace(article.TextContent)
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = strings.TrimSpace(string(r[:maxChars]))
		}
	}
	res.Title = strings.TrimSpace(article.Title)
	res.Byline = strings.TrimSpace(article.Byline)
	res.SiteName = strings.TrimSpace(article.SiteName)
	res.Text = text
	res.TopImage = article.Image
	res.RenderMS = int(time.Since(started) / time.Millisecond)
	return res
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
