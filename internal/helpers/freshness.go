package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Snapshot records the last observed state of a document.
type Snapshot struct {
	Hash      string
	CheckedAt time.Time
	ChangedAt time.Time
}

// Change is the outcome of comparing a document against its snapshot.
type Change struct {
	Hash    string
	Changed bool
	Reason  string
}

const (
	ReasonNew      = "new"
	ReasonModified = "modified"
	ReasonStale    = "stale"
)

// ContentHash hashes content with line endings and trailing whitespace
// normalised, so a file re-saved by another editor hashes the same.
func ContentHash(content []byte) string {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.Join(lines, "\n"))))
	return hex.EncodeToString(sum[:])
}

// Compare reports whether content differs from prev. With maxAge > 0 an
// unchanged document is also reported once maxAge has passed since its last
// change.
func Compare(prev Snapshot, content []byte, now time.Time, maxAge time.Duration) Change {
	c := Change{Hash: ContentHash(content)}
	switch {
	case prev.Hash == "":
		c.Changed, c.Reason = true, ReasonNew
	case prev.Hash != c.Hash:
		c.Changed, c.Reason = true, ReasonModified
	case maxAge > 0 && !prev.ChangedAt.IsZero() && now.Sub(prev.ChangedAt) >= maxAge:
		c.Changed, c.Reason = true, ReasonStale
	}
	return c
}

// Next returns the snapshot to keep after c was observed at now.
func (s Snapshot) Next(c Change, now time.Time) Snapshot {
	out := Snapshot{Hash: c.Hash, CheckedAt: now, ChangedAt: s.ChangedAt}
	if c.Changed {
		out.ChangedAt = now
	}
	return out
}
