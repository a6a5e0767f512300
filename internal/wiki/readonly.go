package wiki

import (
	"context"
	"log/slog"
)

// readOnly passes reads through and logs writes instead of making them.
type readOnly struct {
	Site
	logger *slog.Logger
}

// ReadOnly wraps site for dry runs.
func ReadOnly(site Site, logger *slog.Logger) Site {
	return &readOnly{Site: site, logger: logger}
}

func (r *readOnly) SaveText(ctx context.Context, page Title, text, summary string, opts SaveOptions) error {
	r.logger.Info("dry run: would save", "page", page.String(), "summary", summary, "bytes", len(text))
	return nil
}

func (r *readOnly) Delete(ctx context.Context, page Title, reason string, deleteTalk bool) error {
	r.logger.Info("dry run: would delete", "page", page.String(), "reason", reason, "delete_talk", deleteTalk)
	return nil
}

func (r *readOnly) Rename(ctx context.Context, from, to Title, reason string, keepRedirect bool) error {
	r.logger.Info("dry run: would rename", "from", from.String(), "to", to.String(), "reason", reason, "keep_redirect", keepRedirect)
	return nil
}
