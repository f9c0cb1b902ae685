package authzserver

import (
	"fmt"

	"parstage/pkg/par"
	"parstage/pkg/pkce"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential"
	ClientTypePublic       ClientType = "public"
)

type ClientMetadata struct {
	Type             ClientType         `yaml:"type" json:"type" validate:"required,oneof=confidential public"`
	ClientID         string             `yaml:"client_id" json:"client_id" validate:"required"`
	ClientSecretHash string             `yaml:"client_secret_hash" json:"client_secret_hash"`
	RedirectURIs     []string           `yaml:"redirect_uris" json:"redirect_uris" validate:"required,min=1"`
	Scopes           []string           `yaml:"scopes" json:"scopes"`
	Profile          pkce.ClientProfile `yaml:"profile" json:"profile" validate:"omitempty,oneof=web native user-agent-based machine"`
	SupportsPAR      bool               `yaml:"supports_par" json:"supports_par"`
	ClientName       string             `yaml:"client_name" json:"client_name"`
	LogoURI          string             `yaml:"logo_uri" json:"logo_uri"`
}

type ClientsRegistry interface {
	GetClientMetadata(clientID string) (*ClientMetadata, error)
}

type StaticClientsRegistry struct {
	Clients []ClientMetadata `yaml:"clients" json:"clients" validate:"required,dive,required"`
}

func (r *StaticClientsRegistry) GetClientMetadata(clientID string) (*ClientMetadata, error) {
	if r.Clients == nil {
		return nil, fmt.Errorf("no clients configured")
	}
	for _, client := range r.Clients {
		if client.ClientID == clientID {
			return &client, nil
		}
	}
	return nil, fmt.Errorf("client not found: '%s'", clientID)
}

// PARClient projects the registered metadata onto the view the staging
// service validates against.
func (m *ClientMetadata) PARClient() *par.Client {
	profile := m.Profile
	if profile == "" {
		profile = pkce.ProfileWeb
	}
	return &par.Client{
		ID:           m.ClientID,
		RedirectURIs: m.RedirectURIs,
		Scopes:       m.Scopes,
		SupportsPAR:  m.SupportsPAR,
		Public:       m.Type == ClientTypePublic,
		Profile:      profile,
	}
}
