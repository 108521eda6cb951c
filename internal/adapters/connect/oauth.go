package connect

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Token exchange identifiers.
const (
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	tokenTypeSession       = "urn:posit:connect:user-session-token"
	tokenTypeAPIKey        = "urn:posit:connect:api-key"
)

// ListOAuthSessions returns the OAuth sessions visible to the client.
func (c *Client) ListOAuthSessions(ctx context.Context) ([]OAuthSession, error) {
	var out []OAuthSession
	err := c.get(ctx, "oauth.sessions.list", "v1/oauth/sessions", nil, &out)
	return out, err
}

// DeleteOAuthSession removes an OAuth session.
func (c *Client) DeleteOAuthSession(ctx context.Context, guid string) error {
	return c.do(ctx, request{
		op:     "oauth.sessions.delete",
		method: http.MethodDelete,
		path:   "v1/oauth/sessions/" + url.PathEscape(guid),
	}, nil)
}

// ListOAuthIntegrations returns the configured OAuth integrations.
func (c *Client) ListOAuthIntegrations(ctx context.Context) ([]OAuthIntegration, error) {
	var out []OAuthIntegration
	err := c.get(ctx, "oauth.integrations.list", "v1/oauth/integrations", nil, &out)
	return out, err
}

func (c *Client) exchange(ctx context.Context, op, sessionToken, requested string) (Credentials, error) {
	if sessionToken == "" {
		return Credentials{}, ErrNoSessionToken
	}
	form := url.Values{
		"grant_type":         {grantTypeTokenExchange},
		"subject_token_type": {tokenTypeSession},
		"subject_token":      {sessionToken},
	}
	if requested != "" {
		form.Set("requested_token_type", requested)
	}
	var out Credentials
	err := c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "v1/oauth/integrations/credentials",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &out)
	if err != nil {
		return Credentials{}, err
	}
	if out.AccessToken == "" {
		return Credentials{}, ErrNoCredentials
	}
	return out, nil
}

// OAuthCredentials exchanges a visitor session token for the access token
// of the OAuth integration attached to the content.
func (c *Client) OAuthCredentials(ctx context.Context, sessionToken string) (Credentials, error) {
	return c.exchange(ctx, "oauth.credentials", sessionToken, "")
}

// WithUserSessionToken exchanges a visitor session token for a visitor API
// key and returns a client acting as that visitor.
func (c *Client) WithUserSessionToken(ctx context.Context, sessionToken string) (*Client, error) {
	creds, err := c.exchange(ctx, "oauth.visitor_key", sessionToken, tokenTypeAPIKey)
	if err != nil {
		return nil, err
	}
	return c.WithAPIKey(creds.AccessToken), nil
}
