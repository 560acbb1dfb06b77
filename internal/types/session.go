package types

import "strings"

// Credentials is the bundle returned by a successful request-token exchange.
type Credentials struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	PublicToken  string `json:"public_token"`
	RefreshToken string `json:"refresh_token"`
}

// Masked returns a copy with every token value masked.
func (c Credentials) Masked() Credentials {
	c.AccessToken = MaskSecret(c.AccessToken)
	c.PublicToken = MaskSecret(c.PublicToken)
	c.RefreshToken = MaskSecret(c.RefreshToken)
	return c
}

// TokenBundle is the result of renewing an access token.
type TokenBundle struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (t TokenBundle) Masked() TokenBundle {
	t.AccessToken = MaskSecret(t.AccessToken)
	t.RefreshToken = MaskSecret(t.RefreshToken)
	return t
}

// SessionState is a token-free view of the broker session.
type SessionState struct {
	Initialized   bool   `json:"initialized"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
}

// LoginRedirect carries the query parameters Kite appends to the redirect URL.
type LoginRedirect struct {
	RequestToken string `json:"request_token,omitempty"`
	Action       string `json:"action,omitempty"`
	Type         string `json:"type,omitempty"`
	Status       string `json:"status,omitempty"`
}

func (r LoginRedirect) Masked() LoginRedirect {
	r.RequestToken = MaskSecret(r.RequestToken)
	return r
}

// MaskSecret keeps the last four characters of s and hides the rest.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
