package retrieval

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/lessonplanner/internal/helpers"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
)

// Refresher checks the source files on a cron schedule and drops the caches
// of those whose content changed, so edits are picked up without a restart.
type Refresher struct {
	expr      *cronexpr.Expression
	retriever *Retriever
	log       *logger.Logger
	now       func() time.Time
	read      func(path string) ([]byte, error)
	maxAge    time.Duration

	snaps map[string]helpers.Snapshot

	stop    chan struct{}
	done    chan struct{}
	started sync.Once
	stopped sync.Once
	running bool
}

type RefresherOption func(*Refresher)

// WithMaxAge rebuilds a source at least every d even when its file did not
// change. Zero disables it.
func WithMaxAge(d time.Duration) RefresherOption {
	return func(f *Refresher) {
		if d > 0 {
			f.maxAge = d
		}
	}
}

// NewRefresher parses spec (standard 5-field cron or @daily style macros).
func NewRefresher(spec string, r *Retriever, log *logger.Logger, opts ...RefresherOption) (*Refresher, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh cron %q: %w", spec, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	f := &Refresher{
		expr:      expr,
		retriever: r,
		log:       log,
		now:       time.Now,
		read:      os.ReadFile,
		snaps:     make(map[string]helpers.Snapshot),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	return f, nil
}

// Next is the next scheduled check.
func (f *Refresher) Next() time.Time { return f.expr.Next(f.now()) }

// Start records the current state of every source and runs the schedule until
// ctx is done or Stop is called.
func (f *Refresher) Start(ctx context.Context) {
	f.started.Do(func() {
		f.scan(false)
		f.running = true
		go f.loop(ctx)
	})
}

func (f *Refresher) loop(ctx context.Context) {
	defer close(f.done)
	for {
		next := f.Next()
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-f.stop:
			timer.Stop()
			return
		case <-timer.C:
			changed := f.scan(true)
			f.log.Info("document sources checked", "invalidated", changed, "next", f.Next().Format(time.RFC3339))
		}
	}
}

// scan compares every source file with its snapshot and returns the names
// whose caches were dropped. Unreadable files are invalidated so the next
// query reports the load error.
func (f *Refresher) scan(invalidate bool) []string {
	now := f.now()
	var changed []string
	for _, name := range f.retriever.Sources() {
		src, _ := f.retriever.Source(name)
		body, err := f.read(src.Path)
		if err != nil {
			f.log.Warn("document source unreadable", "source", name, "error", err)
			delete(f.snaps, name)
			if invalidate {
				f.retriever.Invalidate(name)
				changed = append(changed, name)
			}
			continue
		}
		prev := f.snaps[name]
		c := helpers.Compare(prev, body, now, f.maxAge)
		f.snaps[name] = prev.Next(c, now)
		if invalidate && c.Changed {
			f.log.Debug("document source changed", "source", name, "reason", c.Reason)
			f.retriever.Invalidate(name)
			changed = append(changed, name)
		}
	}
	return changed
}

// Stop ends the schedule and waits for the loop to exit.
func (f *Refresher) Stop() {
	f.stopped.Do(func() { close(f.stop) })
	f.started.Do(func() {})
	if f.running {
		<-f.done
	}
}
