package memwiki

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdbot/cfdw/internal/wiki"
)

func TestSite_Membership(t *testing.T) {
	ctx := context.Background()
	site := New()
	old := wiki.Category("Old")
	site.SetPage(old, "Category page")
	site.SetPage(wiki.Title{Namespace: wiki.NSMain, Name: "A"}, "text\n[[Category:Old|key]]")
	site.SetPage(wiki.Title{Namespace: wiki.NSMain, Name: "B"}, "[[:Category:Old]] is a textlink")

	members, err := site.ListMembers(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{{Namespace: wiki.NSMain, Name: "A"}}, members)

	empty, err := site.IsEmptyCategory(ctx, old)
	require.NoError(t, err)
	assert.False(t, empty)

	links, err := site.Backlinks(ctx, old, nil)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestSite_StaleIndex(t *testing.T) {
	ctx := context.Background()
	site := New(WithStaleIndex())
	page := wiki.Title{Namespace: wiki.NSMain, Name: "A"}
	site.SetPage(page, "[[Category:Old]]")
	site.Reindex()

	require.NoError(t, site.SaveText(ctx, page, "[[Category:New]]", "move", wiki.SaveOptions{}))

	empty, err := site.IsEmptyCategory(ctx, wiki.Category("Old"))
	require.NoError(t, err)
	assert.False(t, empty, "index must lag until Reindex")

	site.Reindex()
	empty, err = site.IsEmptyCategory(ctx, wiki.Category("Old"))
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSite_Rename(t *testing.T) {
	ctx := context.Background()
	site := New()
	from, to := wiki.Category("Old"), wiki.Category("New")
	site.SetPage(from, "desc")
	site.SetPage(from.Talk(), "talk")

	require.NoError(t, site.Rename(ctx, from, to, "per discussion", true))

	text, ok := site.Page(to)
	require.True(t, ok)
	assert.Equal(t, "desc", text)
	target, isRedirect, err := site.RedirectTarget(ctx, from)
	require.NoError(t, err)
	assert.True(t, isRedirect)
	assert.Equal(t, to, target)
	_, ok = site.Page(to.Talk())
	assert.True(t, ok)

	err = site.Rename(ctx, to, from, "back", false)
	assert.ErrorIs(t, err, wiki.ErrExists)
	err = site.Rename(ctx, wiki.Category("Nope"), wiki.Category("X"), "", false)
	assert.ErrorIs(t, err, wiki.ErrMissing)
}

func TestSite_DeleteAndRedirects(t *testing.T) {
	ctx := context.Background()
	site := New()
	cat := wiki.Category("Old")
	site.SetPage(cat, "desc")
	site.SetPage(cat.Talk(), "talk")
	site.SetPage(wiki.Category("Alias"), "#REDIRECT [[:Category:Old]]")

	redirects, err := site.Redirects(ctx, cat)
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{wiki.Category("Alias")}, redirects)

	require.NoError(t, site.Delete(ctx, cat, "reason", true))
	exists, err := site.Exists(ctx, cat.Talk())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Len(t, site.Edits(), 2)

	assert.ErrorIs(t, site.Delete(ctx, cat, "again", false), wiki.ErrMissing)
}

func TestSite_SaveOptionsAndFailures(t *testing.T) {
	ctx := context.Background()
	site := New()
	page := wiki.Title{Namespace: wiki.NSMain, Name: "Missing"}

	err := site.SaveText(ctx, page, "x", "s", wiki.SaveOptions{NoCreate: true})
	assert.ErrorIs(t, err, wiki.ErrMissing)

	boom := errors.New("edit conflict")
	site.FailWrites(page, boom)
	assert.ErrorIs(t, site.SaveText(ctx, page, "x", "s", wiki.SaveOptions{}), boom)

	_, err = site.GetText(ctx, page)
	assert.ErrorIs(t, err, wiki.ErrMissing)
}

func TestSite_CategoryRedirect(t *testing.T) {
	ctx := context.Background()
	site := New(WithCategoryRedirectTemplates("Category redirect", "Cat redirect"))
	site.SetPage(wiki.Category("A"), "{{Cat redirect|B}}")

	target, ok, err := site.RedirectTarget(ctx, wiki.Category("A"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, wiki.Category("B"), target)

	ok, err = wiki.IsRedirect(ctx, site, wiki.Category("Missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	site.SetProtection(wiki.Category("A"), "sysop")
	level, err := site.EditProtection(ctx, wiki.Category("A"))
	require.NoError(t, err)
	assert.Equal(t, "sysop", level)
}
