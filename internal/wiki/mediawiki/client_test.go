package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mwclient "cgt.name/pkg/go-mwclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdbot/cfdw/internal/wiki"
)

// fakeAPI routes requests to handlers keyed by action, list or prop.
type fakeAPI struct {
	mu       sync.Mutex
	handlers map[string]func(form map[string]string) any
	requests []map[string]string
	agents   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{handlers: make(map[string]func(map[string]string) any)}
}

func (f *fakeAPI) handle(key string, fn func(form map[string]string) any) {
	f.handlers[key] = fn
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := make(map[string]string)
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, form)
	f.agents = append(f.agents, r.UserAgent())
	f.mu.Unlock()

	key := form["action"]
	if form["meta"] == "tokens" {
		key = "tokens:" + form["type"]
	} else if form["list"] != "" {
		key = "list:" + form["list"]
	} else if form["prop"] != "" {
		key = "prop:" + form["prop"]
	}
	fn, ok := f.handlers[key]
	if !ok {
		http.Error(w, "no handler for "+key, http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fn(form))
}

func (f *fakeAPI) requestsFor(action string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]string
	for _, r := range f.requests {
		if r["action"] == action {
			out = append(out, r)
		}
	}
	return out
}

func testRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		APIURL:    srv.URL,
		UserAgent: "cfdw-test/1.0",
		Username:  "Bot@cfdw",
		Password:  "secret",
		MaxLag:    5,
		Retry:     testRetryConfig(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func csrfHandler(form map[string]string) any {
	return map[string]any{"query": map[string]any{"tokens": map[string]string{"csrftoken": "abc+\\"}}}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestClient_Login(t *testing.T) {
	api := newFakeAPI()
	api.handle("tokens:login", func(map[string]string) any {
		return map[string]any{"query": map[string]any{"tokens": map[string]string{"logintoken": "lt"}}}
	})
	api.handle("login", func(form map[string]string) any {
		if form["lgtoken"] != "lt" || form["lgpassword"] != "secret" {
			return map[string]any{"login": map[string]string{"result": "Failed", "reason": "bad"}}
		}
		return map[string]any{"login": map[string]string{"result": "Success", "lgusername": "Bot"}}
	})
	c := newTestClient(t, api)

	require.NoError(t, c.Login(context.Background()))
	assert.True(t, c.loggedIn)

	logins := api.requestsFor("login")
	require.Len(t, logins, 1)
	assert.Equal(t, "Bot@cfdw", logins[0]["lgname"])
	assert.Empty(t, logins[0]["assert"])
	assert.Equal(t, "5", logins[0]["maxlag"])
	for _, agent := range api.agents {
		assert.Contains(t, agent, "cfdw-test/1.0")
	}
}

func TestClient_LoginFailed(t *testing.T) {
	api := newFakeAPI()
	api.handle("tokens:login", func(map[string]string) any {
		return map[string]any{"query": map[string]any{"tokens": map[string]string{"logintoken": "lt"}}}
	})
	api.handle("login", func(map[string]string) any {
		return map[string]any{"login": map[string]string{"result": "Failed", "reason": "Incorrect username or password entered."}}
	})
	c := newTestClient(t, api)

	err := c.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bot@cfdw")
	assert.False(t, c.loggedIn)
}

func TestClient_AssertsUserAfterLogin(t *testing.T) {
	api := newFakeAPI()
	api.handle("tokens:login", func(map[string]string) any {
		return map[string]any{"query": map[string]any{"tokens": map[string]string{"logintoken": "lt"}}}
	})
	api.handle("login", func(map[string]string) any {
		return map[string]any{"login": map[string]string{"result": "Success", "lgusername": "Bot"}}
	})
	api.handle("prop:info", func(form map[string]string) any {
		return map[string]any{"query": map[string]any{"pages": []any{map[string]any{"title": form["titles"]}}}}
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	_, err := c.Exists(ctx, wiki.Title{Name: "X"})
	require.NoError(t, err)

	reads := api.requestsFor("query")
	require.NotEmpty(t, reads)
	last := reads[len(reads)-1]
	assert.Equal(t, "user", last["assert"])
	assert.Equal(t, "2", last["formatversion"])
	assert.Equal(t, "5", last["maxlag"])
}

func TestClient_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	api := newFakeAPI()
	api.handle("prop:info", func(map[string]string) any {
		<-release
		return map[string]any{"query": map[string]any{"pages": []any{map[string]any{"title": "X"}}}}
	})
	c := newTestClient(t, api)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := c.Exists(ctx, wiki.Title{Name: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_GetText(t *testing.T) {
	api := newFakeAPI()
	api.handle("prop:revisions", func(form map[string]string) any {
		if form["titles"] == "Category:Missing" {
			return map[string]any{"query": map[string]any{"pages": []any{
				map[string]any{"title": "Category:Missing", "missing": true},
			}}}
		}
		return map[string]any{"query": map[string]any{"pages": []any{
			map[string]any{"title": form["titles"], "revisions": []any{
				map[string]any{"slots": map[string]any{"main": map[string]any{"content": "hello"}}},
			}},
		}}}
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	text, err := c.GetText(ctx, wiki.Category("Foo"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = c.GetText(ctx, wiki.Category("Missing"))
	assert.ErrorIs(t, err, wiki.ErrMissing)

	_, ok, err := c.RedirectTarget(ctx, wiki.Category("Missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_SaveText(t *testing.T) {
	api := newFakeAPI()
	api.handle("tokens:", csrfHandler)
	api.handle("edit", func(form map[string]string) any {
		if form["title"] == "Gone" {
			return map[string]any{"error": map[string]string{"code": "missingtitle", "info": "The page you specified doesn't exist."}}
		}
		return map[string]any{"edit": map[string]string{"result": "Success"}}
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	require.NoError(t, c.SaveText(ctx, wiki.Category("Foo"), "text", "summary", wiki.SaveOptions{NoCreate: true}))
	edits := api.requestsFor("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, "abc+\\", edits[0]["token"])
	assert.Equal(t, "1", edits[0]["nocreate"])
	assert.Equal(t, "1", edits[0]["bot"])
	assert.Equal(t, "Category:Foo", edits[0]["title"])

	err := c.SaveText(ctx, wiki.Title{Name: "Gone"}, "x", "s", wiki.SaveOptions{NoCreate: true})
	assert.ErrorIs(t, err, wiki.ErrMissing)
}

func TestClient_BadTokenRefresh(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	tokenFetches := 0
	api.handle("tokens:", func(form map[string]string) any {
		mu.Lock()
		defer mu.Unlock()
		tokenFetches++
		return csrfHandler(form)
	})
	attempts := 0
	api.handle("delete", func(form map[string]string) any {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return map[string]any{"error": map[string]string{"code": "badtoken", "info": "Invalid CSRF token."}}
		}
		return map[string]any{"delete": map[string]string{"title": form["title"]}}
	})
	c := newTestClient(t, api)

	require.NoError(t, c.Delete(context.Background(), wiki.Category("Foo"), "reason", true))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, tokenFetches)
	assert.Equal(t, "1", api.requestsFor("delete")[1]["deletetalk"])
}

func TestClient_RenameExists(t *testing.T) {
	api := newFakeAPI()
	api.handle("tokens:", csrfHandler)
	api.handle("move", func(form map[string]string) any {
		assert.Equal(t, "1", form["noredirect"])
		assert.Equal(t, "1", form["movetalk"])
		return map[string]any{"error": map[string]string{"code": "articleexists", "info": "exists"}}
	})
	c := newTestClient(t, api)

	err := c.Rename(context.Background(), wiki.Category("A"), wiki.Category("B"), "r", false)
	assert.ErrorIs(t, err, wiki.ErrExists)
}

func TestClient_ListMembersContinuation(t *testing.T) {
	api := newFakeAPI()
	api.handle("list:categorymembers", func(form map[string]string) any {
		if form["cmcontinue"] == "" {
			return map[string]any{
				"continue": map[string]string{"cmcontinue": "page|B", "continue": "-||"},
				"query": map[string]any{"categorymembers": []any{
					map[string]any{"ns": 0, "title": "A"},
				}},
			}
		}
		return map[string]any{"query": map[string]any{"categorymembers": []any{
			map[string]any{"ns": 10, "title": "Template:B"},
			map[string]any{"ns": 14, "title": "Category:C"},
		}}}
	})
	c := newTestClient(t, api)

	members, err := c.ListMembers(context.Background(), wiki.Category("Foo"))
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{
		{Namespace: wiki.NSMain, Name: "A"},
		{Namespace: wiki.NSTemplate, Name: "B"},
		{Namespace: wiki.NSCategory, Name: "C"},
	}, members)
}

func TestClient_PageInfo(t *testing.T) {
	api := newFakeAPI()
	api.handle("prop:categoryinfo", func(form map[string]string) any {
		if form["titles"] == "Category:Empty" {
			return map[string]any{"query": map[string]any{"pages": []any{map[string]any{"title": "Category:Empty"}}}}
		}
		return map[string]any{"query": map[string]any{"pages": []any{
			map[string]any{"title": form["titles"], "categoryinfo": map[string]int{"size": 3}},
		}}}
	})
	api.handle("prop:info", func(form map[string]string) any {
		return map[string]any{"query": map[string]any{"pages": []any{
			map[string]any{
				"title":   form["titles"],
				"missing": form["titles"] == "Nope",
				"protection": []any{
					map[string]string{"type": "move", "level": "autoconfirmed"},
					map[string]string{"type": "edit", "level": "sysop"},
				},
			},
		}}}
	})
	api.handle("prop:redirects", func(map[string]string) any {
		return map[string]any{"query": map[string]any{"pages": []any{
			map[string]any{"title": "Category:Foo", "redirects": []any{
				map[string]any{"ns": 14, "title": "Category:Alias"},
			}},
		}}}
	})
	api.handle("list:backlinks", func(form map[string]string) any {
		assert.Equal(t, "118|10", form["blnamespace"])
		return map[string]any{"query": map[string]any{"backlinks": []any{
			map[string]any{"ns": 118, "title": "Draft:X"},
		}}}
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	empty, err := c.IsEmptyCategory(ctx, wiki.Category("Empty"))
	require.NoError(t, err)
	assert.True(t, empty)
	empty, err = c.IsEmptyCategory(ctx, wiki.Category("Full"))
	require.NoError(t, err)
	assert.False(t, empty)

	exists, err := c.Exists(ctx, wiki.Title{Name: "Nope"})
	require.NoError(t, err)
	assert.False(t, exists)

	level, err := c.EditProtection(ctx, wiki.Title{Namespace: wiki.NSProject, Name: "CFD/W"})
	require.NoError(t, err)
	assert.Equal(t, "sysop", level)

	redirects, err := c.Redirects(ctx, wiki.Category("Foo"))
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{wiki.Category("Alias")}, redirects)

	links, err := c.Backlinks(ctx, wiki.Category("Foo"), []int{wiki.NSDraft, wiki.NSTemplate})
	require.NoError(t, err)
	assert.Equal(t, []wiki.Title{{Namespace: wiki.NSDraft, Name: "X"}}, links)
}

func TestClient_RetriesMaxlag(t *testing.T) {
	api := newFakeAPI()
	calls := 0
	api.handle("prop:info", func(form map[string]string) any {
		calls++
		if calls < 3 {
			return map[string]any{"error": map[string]string{"code": "maxlag", "info": "Waiting for replicas"}}
		}
		return map[string]any{"query": map[string]any{"pages": []any{map[string]any{"title": "X"}}}}
	})
	c := newTestClient(t, api)

	exists, err := c.Exists(context.Background(), wiki.Title{Name: "X"})
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, calls)
}

func TestClient_NonRetriableError(t *testing.T) {
	api := newFakeAPI()
	calls := 0
	api.handle("prop:info", func(map[string]string) any {
		calls++
		return map[string]any{"error": map[string]string{"code": "permissiondenied", "info": "no"}}
	})
	c := newTestClient(t, api)

	_, err := c.Exists(context.Background(), wiki.Title{Name: "X"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "permissiondenied", apiErr.Code)
	assert.Equal(t, 1, calls)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"maxlag", &APIError{Code: "maxlag"}, true},
		{"ratelimited", &APIError{Code: "ratelimited"}, true},
		{"protected", &APIError{Code: "protectedpage"}, false},
		{"wrapped readonly", fmt.Errorf("edit: %w", &APIError{Code: "readonly"}), true},
		{"api busy", mwclient.ErrAPIBusy, true},
		{"deadline", context.DeadlineExceeded, true},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriableError(tt.err))
		})
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, 10*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, CircuitClosed, cb.State())

	cb.RecordFailure()
	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, "CLOSED", cb.State().String())
}
