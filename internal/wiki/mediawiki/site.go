package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cgt.name/pkg/go-mwclient/params"

	"github.com/cfdbot/cfdw/internal/wiki"
)

type apiPage struct {
	Title     string `json:"title"`
	Missing   bool   `json:"missing"`
	Invalid   bool   `json:"invalid"`
	Revisions []struct {
		Slots struct {
			Main struct {
				Content string `json:"content"`
			} `json:"main"`
		} `json:"slots"`
	} `json:"revisions"`
	CategoryInfo *struct {
		Size int `json:"size"`
	} `json:"categoryinfo"`
	Protection []struct {
		Type  string `json:"type"`
		Level string `json:"level"`
	} `json:"protection"`
	Redirects []apiTitle `json:"redirects"`
}

type apiTitle struct {
	NS    int    `json:"ns"`
	Title string `json:"title"`
}

func (t apiTitle) parse() (wiki.Title, error) {
	title, _, err := wiki.ParseTitle(t.Title, wiki.NSMain)
	if err != nil {
		return wiki.Title{}, err
	}
	// The API knows the namespace even where our alias table does not.
	if title.Namespace != t.NS {
		name := t.Title
		if i := strings.IndexByte(name, ':'); i >= 0 && t.NS != wiki.NSMain {
			name = name[i+1:]
		}
		title = wiki.Title{Namespace: t.NS, Name: name}
	}
	return title, nil
}

// page fetches a single page's properties.
func (c *Client) page(ctx context.Context, operation string, page wiki.Title, p params.Values) (*apiPage, error) {
	p["action"] = "query"
	p["titles"] = page.String()
	var resp struct {
		Query struct {
			Pages []apiPage `json:"pages"`
		} `json:"query"`
	}
	if err := c.read(ctx, operation, p, &resp); err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", operation, page, err)
	}
	if len(resp.Query.Pages) == 0 {
		return nil, fmt.Errorf("failed to %s %s: empty response", operation, page)
	}
	info := &resp.Query.Pages[0]
	if info.Invalid {
		return nil, fmt.Errorf("%s: %w", page, wiki.ErrInvalidTitle)
	}
	return info, nil
}

// GetText implements wiki.Site.
func (c *Client) GetText(ctx context.Context, page wiki.Title) (string, error) {
	info, err := c.page(ctx, "get text of", page, params.Values{
		"prop":    "revisions",
		"rvprop":  "content",
		"rvslots": "main",
	})
	if err != nil {
		return "", err
	}
	if info.Missing || len(info.Revisions) == 0 {
		return "", fmt.Errorf("%s: %w", page, wiki.ErrMissing)
	}
	return info.Revisions[0].Slots.Main.Content, nil
}

// SaveText implements wiki.Site.
func (c *Client) SaveText(ctx context.Context, page wiki.Title, text, summary string, opts wiki.SaveOptions) error {
	p := params.Values{
		"action":  "edit",
		"title":   page.String(),
		"text":    text,
		"summary": summary,
		"bot":     "1",
	}
	if opts.NoCreate {
		p["nocreate"] = "1"
	}
	if opts.Minor {
		p["minor"] = "1"
	}
	var resp struct {
		Edit struct {
			Result   string `json:"result"`
			NoChange bool   `json:"nochange"`
		} `json:"edit"`
	}
	if err := c.write(ctx, "edit", p, &resp); err != nil {
		return fmt.Errorf("failed to save %s: %w", page, pageError(page, err))
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("failed to save %s: result %q", page, resp.Edit.Result)
	}
	c.logger.Debug("saved page", "page", page.String(), "nochange", resp.Edit.NoChange)
	return nil
}

// Delete implements wiki.Site.
func (c *Client) Delete(ctx context.Context, page wiki.Title, reason string, deleteTalk bool) error {
	p := params.Values{
		"action": "delete",
		"title":  page.String(),
		"reason": reason,
	}
	if deleteTalk {
		p["deletetalk"] = "1"
	}
	if err := c.write(ctx, "delete", p, nil); err != nil {
		return fmt.Errorf("failed to delete %s: %w", page, pageError(page, err))
	}
	return nil
}

// Rename implements wiki.Site. The talk page is moved too.
func (c *Client) Rename(ctx context.Context, from, to wiki.Title, reason string, keepRedirect bool) error {
	p := params.Values{
		"action":   "move",
		"from":     from.String(),
		"to":       to.String(),
		"reason":   reason,
		"movetalk": "1",
	}
	if !keepRedirect {
		p["noredirect"] = "1"
	}
	if err := c.write(ctx, "move", p, nil); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == "articleexists" {
			return fmt.Errorf("failed to move %s: %w", from, pageError(to, err))
		}
		return fmt.Errorf("failed to move %s: %w", from, pageError(from, err))
	}
	return nil
}

// ListMembers implements wiki.Site.
func (c *Client) ListMembers(ctx context.Context, category wiki.Title) ([]wiki.Title, error) {
	p := params.Values{
		"list":    "categorymembers",
		"cmtitle": category.String(),
		"cmprop":  "title",
		"cmlimit": "max",
	}
	var out []wiki.Title
	err := c.queryAll(ctx, "list members", p, func(raw json.RawMessage) error {
		var q struct {
			Members []apiTitle `json:"categorymembers"`
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		return appendTitles(&out, q.Members)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", category, err)
	}
	return out, nil
}

// IsEmptyCategory implements wiki.Site.
func (c *Client) IsEmptyCategory(ctx context.Context, category wiki.Title) (bool, error) {
	info, err := c.page(ctx, "get category info of", category, params.Values{"prop": "categoryinfo"})
	if err != nil {
		return false, err
	}
	return info.CategoryInfo == nil || info.CategoryInfo.Size == 0, nil
}

// RedirectTarget implements wiki.Site.
func (c *Client) RedirectTarget(ctx context.Context, page wiki.Title) (wiki.Title, bool, error) {
	text, err := c.GetText(ctx, page)
	if errors.Is(err, wiki.ErrMissing) {
		return wiki.Title{}, false, nil
	}
	if err != nil {
		return wiki.Title{}, false, err
	}
	target, ok := wiki.ParseRedirect(text, c.categoryRedirects)
	return target, ok, nil
}

// Exists implements wiki.Site.
func (c *Client) Exists(ctx context.Context, page wiki.Title) (bool, error) {
	info, err := c.page(ctx, "check", page, params.Values{"prop": "info"})
	if err != nil {
		return false, err
	}
	return !info.Missing, nil
}

// Backlinks implements wiki.Site.
func (c *Client) Backlinks(ctx context.Context, page wiki.Title, namespaces []int) ([]wiki.Title, error) {
	p := params.Values{
		"list":    "backlinks",
		"bltitle": page.String(),
		"bllimit": "max",
	}
	if len(namespaces) > 0 {
		ns := make([]string, len(namespaces))
		for i, n := range namespaces {
			ns[i] = strconv.Itoa(n)
		}
		p["blnamespace"] = strings.Join(ns, "|")
	}
	var out []wiki.Title
	err := c.queryAll(ctx, "list backlinks", p, func(raw json.RawMessage) error {
		var q struct {
			Backlinks []apiTitle `json:"backlinks"`
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		return appendTitles(&out, q.Backlinks)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list backlinks of %s: %w", page, err)
	}
	return out, nil
}

// Redirects implements wiki.Site.
func (c *Client) Redirects(ctx context.Context, page wiki.Title) ([]wiki.Title, error) {
	p := params.Values{
		"prop":    "redirects",
		"titles":  page.String(),
		"rdlimit": "max",
	}
	var out []wiki.Title
	err := c.queryAll(ctx, "list redirects", p, func(raw json.RawMessage) error {
		var q struct {
			Pages []apiPage `json:"pages"`
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return err
		}
		for _, p := range q.Pages {
			if err := appendTitles(&out, p.Redirects); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list redirects to %s: %w", page, err)
	}
	return out, nil
}

// EditProtection implements wiki.Site.
func (c *Client) EditProtection(ctx context.Context, page wiki.Title) (string, error) {
	info, err := c.page(ctx, "get protection of", page, params.Values{"prop": "info", "inprop": "protection"})
	if err != nil {
		return "", err
	}
	for _, pr := range info.Protection {
		if pr.Type == "edit" {
			return pr.Level, nil
		}
	}
	return "", nil
}

func appendTitles(out *[]wiki.Title, titles []apiTitle) error {
	for _, t := range titles {
		title, err := t.parse()
		if err != nil {
			return err
		}
		*out = append(*out, title)
	}
	return nil
}
