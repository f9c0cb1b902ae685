package authzserver

// OAuth2 Authorization Server Metadata
// See https://datatracker.ietf.org/doc/html/rfc8414 and, for the PAR
// fields, https://datatracker.ietf.org/doc/html/rfc9126#section-5
type Metadata struct {
	Issuer                                     string   `json:"issuer" yaml:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint" yaml:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint" yaml:"token_endpoint"`
	PushedAuthorizationRequestEndpoint         string   `json:"pushed_authorization_request_endpoint" yaml:"pushed_authorization_request_endpoint"`
	RequirePushedAuthorizationRequests         bool     `json:"require_pushed_authorization_requests" yaml:"require_pushed_authorization_requests"`
	JwksURI                                    string   `json:"jwks_uri,omitempty" yaml:"jwks_uri"`
	ScopesSupported                            []string `json:"scopes_supported" yaml:"scopes_supported"`
	ResponseTypesSupported                     []string `json:"response_types_supported" yaml:"response_types_supported"`
	ResponseModesSupported                     []string `json:"response_modes_supported" yaml:"response_modes_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported" yaml:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported" yaml:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported,omitempty" yaml:"token_endpoint_auth_signing_alg_values_supported"`
	ServiceDocumentation                       string   `json:"service_documentation,omitempty" yaml:"service_documentation"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported" yaml:"code_challenge_methods_supported"`
}
