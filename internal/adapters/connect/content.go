package connect

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListContent returns content owned by ownerGUID, or all visible content
// when ownerGUID is empty.
func (c *Client) ListContent(ctx context.Context, ownerGUID string) ([]Content, error) {
	var q url.Values
	if ownerGUID != "" {
		q = url.Values{"owner_guid": {ownerGUID}}
	}
	var out []Content
	err := c.get(ctx, "content.list", "v1/content", q, &out)
	return out, err
}

// MyContent returns the content owned by the authenticated user.
func (c *Client) MyContent(ctx context.Context) ([]Content, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListContent(ctx, me.GUID)
}

// GetContent returns one content item.
func (c *Client) GetContent(ctx context.Context, guid string) (Content, error) {
	var out Content
	err := c.get(ctx, "content.get", contentPath(guid), nil, &out)
	return out, err
}

// UpdateContent applies patch and returns the updated item.
func (c *Client) UpdateContent(ctx context.Context, guid string, patch ContentPatch) (Content, error) {
	var out Content
	err := c.sendJSON(ctx, "content.update", http.MethodPatch, contentPath(guid), patch, &out)
	return out, err
}

// CreateContent creates an empty content item ready for a bundle upload.
func (c *Client) CreateContent(ctx context.Context, name, title string) (Content, error) {
	var out Content
	in := map[string]string{"name": name, "title": title}
	err := c.sendJSON(ctx, "content.create", http.MethodPost, "v1/content", in, &out)
	return out, err
}

// SearchResult is a page of content search hits.
type SearchResult struct {
	Results     []Content `json:"results"`
	CurrentPage int       `json:"current_page"`
	Total       int       `json:"total"`
}

// SearchContent runs a platform content search ordered by name, descending,
// with owners included.
func (c *Client) SearchContent(ctx context.Context, query string, pageSize int) (SearchResult, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	q := url.Values{
		"q":         {query},
		"page_size": {strconv.Itoa(pageSize)},
		"sort":      {"name"},
		"order":     {"desc"},
		"include":   {"owner"},
	}
	var out SearchResult
	err := c.get(ctx, "content.search", "v1/search/content", q, &out)
	return out, err
}

// ListBundles returns the bundles uploaded for a content item.
func (c *Client) ListBundles(ctx context.Context, guid string) ([]Bundle, error) {
	var out []Bundle
	err := c.get(ctx, "bundles.list", contentPath(guid)+"/bundles", nil, &out)
	return out, err
}

func contentPath(guid string) string {
	return "v1/content/" + url.PathEscape(guid)
}
