// Package bot runs a per-page callback over a set of pages, checking an
// on-wiki kill switch before every page.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cfdbot/cfdw/internal/wiki"
)

// ErrAborted is returned when the kill switch page carries content.
var ErrAborted = errors.New("run aborted by kill switch")

// TreatFunc edits one page. It reports whether the page was changed.
// Returning an error wrapping ErrAborted stops the whole run; any other
// error only skips the page.
type TreatFunc func(ctx context.Context, page wiki.Title) (bool, error)

// Stats counts what happened to the pages of one Run.
type Stats struct {
	Treated int
	Changed int
	Skipped int
	Failed  int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Treated += other.Treated
	s.Changed += other.Changed
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("%d treated, %d changed, %d skipped, %d failed", s.Treated, s.Changed, s.Skipped, s.Failed)
}

// Runner applies a TreatFunc to pages with bounded parallelism.
type Runner struct {
	site        wiki.Site
	shutoff     wiki.Title
	concurrency int
	logger      *slog.Logger
}

// NewRunner creates a runner. A zero shutoff title disables the kill
// switch; concurrency below 1 means sequential.
func NewRunner(site wiki.Site, shutoff wiki.Title, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{site: site, shutoff: shutoff, concurrency: concurrency, logger: logger}
}

// CheckShutoff returns ErrAborted when the kill switch page exists and is
// not blank.
func (r *Runner) CheckShutoff(ctx context.Context) error {
	if r.shutoff.IsZero() {
		return nil
	}
	text, err := r.site.GetText(ctx, r.shutoff)
	if errors.Is(err, wiki.ErrMissing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read kill switch %s: %w", r.shutoff, err)
	}
	if strings.TrimSpace(text) != "" {
		r.logger.Error("kill switch tripped", "page", r.shutoff.String())
		return fmt.Errorf("%s: %w", r.shutoff, ErrAborted)
	}
	return nil
}

// Run calls treat for every page. Per-page failures are logged and
// counted; the first fatal error cancels outstanding pages and is
// returned.
func (r *Runner) Run(ctx context.Context, pages []wiki.Title, treat TreatFunc) (Stats, error) {
	var treated, changed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, page := range pages {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.CheckShutoff(gctx); err != nil {
				return err
			}
			ok, err := treat(gctx, page)
			treated.Add(1)
			if err != nil {
				if errors.Is(err, ErrAborted) {
					return err
				}
				failed.Add(1)
				r.logger.Warn("failed to treat page", "page", page.String(), "error", err)
				return nil
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats := Stats{
		Treated: int(treated.Load()),
		Changed: int(changed.Load()),
		Failed:  int(failed.Load()),
	}
	stats.Skipped = stats.Treated - stats.Changed - stats.Failed
	if err == nil {
		err = ctx.Err()
	}
	return stats, err
}
