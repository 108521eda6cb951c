package connect

import (
	"context"
	"net/url"
	"strconv"
)

const usersPageSize = 500

// Me returns the user the client is authenticated as.
func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.get(ctx, "users.me", "v1/user", nil, &u)
	return u, err
}

// GetUser returns one user by GUID.
func (c *Client) GetUser(ctx context.Context, guid string) (User, error) {
	var u User
	err := c.get(ctx, "users.get", "v1/users/"+url.PathEscape(guid), nil, &u)
	return u, err
}

type usersPage struct {
	Results     []User `json:"results"`
	CurrentPage int    `json:"current_page"`
	Total       int    `json:"total"`
}

// ListUsers returns every user, following page numbers until exhausted.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var all []User
	for page := 1; ; page++ {
		var p usersPage
		q := url.Values{
			"page_number": {strconv.Itoa(page)},
			"page_size":   {strconv.Itoa(usersPageSize)},
		}
		if err := c.get(ctx, "users.list", "v1/users", q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		if len(p.Results) < usersPageSize || len(all) >= p.Total {
			return all, nil
		}
	}
}
