package retrieval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

var (
	ErrColumnNotFound    = errors.New("column not found")
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// LoadError reports a source that could not be read or parsed.
type LoadError struct {
	Source string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load source %s (%s): %v", e.Source, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Document is one logical unit of a source before chunking: a CSV row or a
// whole text file.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Chunk is the unit that gets indexed.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// LoadDocuments reads src. For CSV files column selects the text column and the
// other columns become metadata; rows with an empty text cell are skipped.
// Plain text and markdown files load as a single document.
func LoadDocuments(src Source, column string) ([]Document, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, &LoadError{Source: src.Name, Path: src.Path, Err: err}
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(src.Path)) {
	case ".csv":
		docs, err := readCSV(f, column)
		if err != nil {
			return nil, &LoadError{Source: src.Name, Path: src.Path, Err: err}
		}
		return docs, nil
	case ".txt", ".md", ".markdown":
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, &LoadError{Source: src.Name, Path: src.Path, Err: err}
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return nil, nil
		}
		return []Document{{
			ID:       "0",
			Text:     text,
			Metadata: map[string]string{"file": filepath.Base(src.Path)},
		}}, nil
	default:
		return nil, &LoadError{Source: src.Name, Path: src.Path, Err: ErrUnsupportedFormat}
	}
}

func readCSV(r io.Reader, column string) ([]Document, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %q (empty file)", ErrColumnNotFound, column)
		}
		return nil, err
	}
	textIdx := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if header[i] == column {
			textIdx = i
		}
	}
	if textIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	var docs []Document
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if textIdx >= len(rec) || strings.TrimSpace(rec[textIdx]) == "" {
			continue
		}
		meta := make(map[string]string, len(header))
		for i, h := range header {
			if i == textIdx || i >= len(rec) || h == "" {
				continue
			}
			meta[h] = strings.TrimSpace(rec[i])
		}
		meta["row"] = strconv.Itoa(row)
		docs = append(docs, Document{ID: strconv.Itoa(row), Text: strings.TrimSpace(rec[textIdx]), Metadata: meta})
	}
	return docs, nil
}

// Splitter cuts documents into overlapping chunks.
type Splitter struct {
	ts textsplitter.TextSplitter
}

func NewSplitter(size, overlap int) Splitter {
	return Splitter{ts: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)}
}

// Split chunks every document. Chunk ids are zero padded so that lexical order
// matches document order.
func (s Splitter) Split(docs []Document) ([]Chunk, error) {
	var out []Chunk
	for di, d := range docs {
		parts, err := s.ts.SplitText(d.Text)
		if err != nil {
			return nil, fmt.Errorf("split document %s: %w", d.ID, err)
		}
		for n, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			out = append(out, Chunk{
				ID:       fmt.Sprintf("%06d-%04d", di, n),
				Text:     p,
				Metadata: d.Metadata,
			})
		}
	}
	return out, nil
}
