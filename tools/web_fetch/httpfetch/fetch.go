package httpfetch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/tools/web_fetch/models"
	"github.com/mohammad-safakhou/lessonplanner/utils"
)

const userAgent = "LessonPlanner/1.0 (+https://github.com/mohammad-safakhou/lessonplanner)"

// Pages larger than this are truncated before extraction.
const maxBodyBytes = 4 << 20

// Fetch downloads static HTML and extracts the article with readability. It
// does not run scripts; use the chromedp fetcher for client-rendered pages.
type Fetch struct {
	Client   *utils.HTTPClient
	MaxChars int
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	t0 := time.Now()
	headers := map[string]string{
		"User-Agent": userAgent,
		"Accept":     "text/html,application/xhtml+xml",
	}
	html, err := f.Client.GetText(ctx, url, headers, maxBodyBytes)
	if err != nil {
		status := 599
		var se *utils.StatusError
		if errors.As(err, &se) {
			status = se.Code
		}
		return models.Result{URL: url, Status: status, RenderMS: int(time.Since(t0) / time.Millisecond)}, err
	}
	return models.FromHTML(url, html, f.MaxChars, t0), nil
}
