package oauthview

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// Placeholders shown when a token is absent or unreadable.
const (
	MissingSessionToken    = "session_token not found."
	MissingAccessToken     = "access_token not found."
	UnparsableSessionToken = "unable to parse session_token."
)

// Token is a raw token and its decoded claims.
type Token struct {
	Raw    string `json:"raw"`
	Claims string `json:"claims"`
	Parsed bool   `json:"parsed"`
}

// TokenPair is the token debug page model.
type TokenPair struct {
	Session Token `json:"session_token"`
	Access  Token `json:"access_token"`
}

// Decode returns the claims of a JWT as indented JSON. The signature is not
// verified.
func Decode(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(claims, "", "    ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Inspect decodes both tokens. An undecodable access token is shown raw.
func Inspect(sessionToken, accessToken string) TokenPair {
	var p TokenPair

	p.Session.Raw = sessionToken
	if sessionToken == "" {
		p.Session.Raw = MissingSessionToken
	}
	if claims, err := Decode(sessionToken); err == nil {
		p.Session.Claims, p.Session.Parsed = claims, true
	} else {
		p.Session.Claims = UnparsableSessionToken
	}

	p.Access.Raw = accessToken
	if accessToken == "" {
		p.Access.Raw = MissingAccessToken
	}
	if claims, err := Decode(accessToken); err == nil {
		p.Access.Claims, p.Access.Parsed = claims, true
	} else {
		p.Access.Claims = p.Access.Raw
	}
	return p
}
