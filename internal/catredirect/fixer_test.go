package catredirect

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wiki/memwiki"
)

var shutoff = wiki.MustParseTitle("User:CfdBot/shutoff/"+ShutoffTask+".json", wiki.NSMain)

func newTestFixer(t *testing.T, site *memwiki.Site, recorder *events.Recorder) *Fixer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f, err := New(context.Background(), site, "Category redirect", shutoff, 2, recorder, logger)
	require.NoError(t, err)
	return f
}

func chainSite() *memwiki.Site {
	site := memwiki.New()
	site.SetPage(wiki.MustParseTitle("Template:Catredirect", wiki.NSMain), "#REDIRECT [[Template:Category redirect]]")
	site.SetPage(wiki.Category("A"), "{{Category redirect|B}}\n[[Category:Tracking]]")
	site.SetPage(wiki.Category("B"), "{{Category redirect|Category:C}}")
	site.SetPage(wiki.Category("C"), "{{Catredirect|D}}")
	site.SetPage(wiki.Category("D"), "A real category")
	site.SetPage(wiki.Category("X"), "{{Category redirect|Y}}")
	site.SetPage(wiki.Category("Y"), "{{Category redirect|Z}}")
	site.SetPage(wiki.Category("Z"), "{{Category redirect|Y}}")
	return site
}

func TestFixer_Run(t *testing.T) {
	tests := []struct {
		name    string
		page    wiki.Title
		want    string
		changed int
	}{
		{
			name:    "chain through a template redirect",
			page:    wiki.Category("A"),
			want:    "{{Category redirect|Category:D}}\n[[Category:Tracking]]",
			changed: 1,
		},
		{
			name:    "redirect to a redirect",
			page:    wiki.Category("B"),
			want:    "{{Category redirect|Category:D}}",
			changed: 1,
		},
		{name: "single redirect", page: wiki.Category("C"), want: "{{Catredirect|D}}"},
		{name: "not a redirect", page: wiki.Category("D"), want: "A real category"},
		{name: "circular chain", page: wiki.Category("X"), want: "{{Category redirect|Y}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := chainSite()
			recorder := events.NewRecorder(nil, "run-1", nil)
			stats, err := newTestFixer(t, site, recorder).Run(context.Background(), []wiki.Title{tt.page})
			require.NoError(t, err)

			assert.Equal(t, tt.changed, stats.Changed)
			assert.Zero(t, stats.Failed)
			text, _ := site.Page(tt.page)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.changed, recorder.Count(events.EventTypeRedirectFixed))
			for _, edit := range site.Edits() {
				assert.Equal(t, DefaultSummary, edit.Summary)
			}
		})
	}
}

func TestFixer_SkipsNonCategories(t *testing.T) {
	site := chainSite()
	page := wiki.Title{Namespace: wiki.NSMain, Name: "Article"}
	site.SetPage(page, "{{Category redirect|A}}")

	stats, err := newTestFixer(t, site, nil).Run(context.Background(), []wiki.Title{page, wiki.Category("Missing")})
	require.NoError(t, err)
	assert.Equal(t, bot.Stats{Treated: 2, Skipped: 2}, stats)
	assert.Empty(t, site.Edits())
}

func TestFixer_Candidates(t *testing.T) {
	site := chainSite()
	f := newTestFixer(t, site, nil)

	pages, err := f.Candidates(context.Background(), wiki.Category("Tracking"))
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{wiki.Category("A")}, pages)
}

func TestFixer_KillSwitch(t *testing.T) {
	site := chainSite()
	site.SetPage(shutoff, "disabled while the backlog is checked")

	_, err := newTestFixer(t, site, nil).Run(context.Background(), []wiki.Title{wiki.Category("A")})
	assert.ErrorIs(t, err, bot.ErrAborted)
	assert.Empty(t, site.Edits())
}
