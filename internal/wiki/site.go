// Package wiki defines page titles and the content-storage interface the
// bot edits through.
package wiki

import (
	"context"
	"errors"
)

var (
	// ErrMissing is returned when a page does not exist.
	ErrMissing = errors.New("page does not exist")
	// ErrExists is returned when a page that must not exist does.
	ErrExists = errors.New("page already exists")
)

// SaveOptions tune a single edit.
type SaveOptions struct {
	// NoCreate fails the edit instead of creating a missing page.
	NoCreate bool
	// Minor marks the edit as minor.
	Minor bool
}

// Site is the content-storage service: page text, writes, deletions,
// renames and the category membership index.
//
// The membership index (ListMembers, IsEmptyCategory) is only eventually
// consistent with completed edits.
type Site interface {
	// GetText returns the current page text, or ErrMissing.
	GetText(ctx context.Context, page Title) (string, error)
	// SaveText replaces the page text.
	SaveText(ctx context.Context, page Title, text, summary string, opts SaveOptions) error
	// Delete deletes the page, and its talk page when deleteTalk is set.
	Delete(ctx context.Context, page Title, reason string, deleteTalk bool) error
	// Rename moves a page to a new title, leaving a redirect when keepRedirect is set.
	Rename(ctx context.Context, from, to Title, reason string, keepRedirect bool) error
	// ListMembers lists the pages currently in a category.
	ListMembers(ctx context.Context, category Title) ([]Title, error)
	// IsEmptyCategory reports whether a category has zero members.
	IsEmptyCategory(ctx context.Context, category Title) (bool, error)
	// RedirectTarget returns the target of a hard or category redirect.
	RedirectTarget(ctx context.Context, page Title) (Title, bool, error)
	// Exists reports whether the page exists.
	Exists(ctx context.Context, page Title) (bool, error)
	// Backlinks lists pages in the given namespaces that link to page.
	Backlinks(ctx context.Context, page Title, namespaces []int) ([]Title, error)
	// Redirects lists pages that hard-redirect to page.
	Redirects(ctx context.Context, page Title) ([]Title, error)
	// EditProtection returns the edit protection level, "" when unprotected.
	EditProtection(ctx context.Context, page Title) (string, error)
}

// IsRedirect reports whether page is a hard or category redirect.
func IsRedirect(ctx context.Context, site Site, page Title) (bool, error) {
	_, ok, err := site.RedirectTarget(ctx, page)
	return ok, err
}
