package par

import (
	"time"

	"parstage/pkg/pkce"
)

// Parameters is the authorization parameter set exactly as the client
// pushed it. It is stored verbatim and handed back verbatim at
// consumption; nothing in between reinterprets it.
type Parameters struct {
	ResponseType        string   `json:"response_type"`
	RedirectURI         string   `json:"redirect_uri"`
	Scope               string   `json:"scope,omitempty"`
	State               string   `json:"state,omitempty"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	Display             string   `json:"display,omitempty"`
	Prompt              string   `json:"prompt,omitempty"`
	MaxAge              string   `json:"max_age,omitempty"`
	UILocales           string   `json:"ui_locales,omitempty"`
	IDTokenHint         string   `json:"id_token_hint,omitempty"`
	LoginHint           string   `json:"login_hint,omitempty"`
	ACRValues           string   `json:"acr_values,omitempty"`
	Resources           []string `json:"resources,omitempty"`
	Audience            string   `json:"audience,omitempty"`
	Claims              string   `json:"claims,omitempty"`
}

// Request is a pushed authorization request staged until the owning
// client redeems it at the authorization endpoint. Records are immutable
// after creation; consumption deletes them.
type Request struct {
	ID         string     `json:"id"`
	RequestURI string     `json:"request_uri"`
	ClientID   string     `json:"client_id"`
	Parameters Parameters `json:"parameters"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func (r *Request) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Client is the narrow view of a registered client that the PAR service
// validates against. Callers resolve it from their client registry.
type Client struct {
	ID           string
	RedirectURIs []string
	Scopes       []string
	SupportsPAR  bool
	Public       bool
	Profile      pkce.ClientProfile
}
