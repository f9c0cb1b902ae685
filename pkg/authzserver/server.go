package authzserver

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/valkey-io/valkey-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"parstage/pkg/par"
)

// Server hosts the pushed authorization request endpoint together with
// the discovery surface that advertises it. The interactive
// authorization endpoint lives elsewhere and redeems staged requests
// through Service().
type Server struct {
	Metadata        Metadata
	endpointPaths   *EndpointsConfig
	clientsRegistry ClientsRegistry
	par             *par.Service
	sigPrK          jwk.Key
	jwks            jwk.Set
}

func NewFromConfigFile(filename string) (*Server, error) {
	cfg, err := LoadConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return New(*cfg)
}

func New(cfg Config) (*Server, error) {
	s := &Server{}

	issuerUri, err := url.Parse(cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URI: %w", err)
	}

	s.endpointPaths = &cfg.Endpoints
	s.endpointPaths.applyDefaults(issuerUri)

	s.Metadata.Issuer = cfg.Issuer
	s.Metadata.ScopesSupported = cfg.ScopesSupported
	s.Metadata.RequirePushedAuthorizationRequests = cfg.RequirePAR

	// endpoint paths already carry the issuer's base path, so the URLs
	// are built from the origin alone
	origin := issuerUri.Scheme + "://" + issuerUri.Host
	s.Metadata.AuthorizationEndpoint = buildURI(origin, s.endpointPaths.Authorization)
	s.Metadata.TokenEndpoint = buildURI(origin, s.endpointPaths.Token)
	s.Metadata.PushedAuthorizationRequestEndpoint = buildURI(origin, s.endpointPaths.PushedAuthorizationRequest)
	s.Metadata.JwksURI = buildURI(origin, s.endpointPaths.Jwks)

	// set supported parameters explicitly
	s.Metadata.ResponseTypesSupported = []string{"code"}
	s.Metadata.ResponseModesSupported = []string{"query"}
	s.Metadata.GrantTypesSupported = []string{"authorization_code", "refresh_token"}
	s.Metadata.TokenEndpointAuthMethodsSupported = []string{"none", "client_secret_basic", "client_secret_post"}
	s.Metadata.CodeChallengeMethodsSupported = []string{"S256"}

	if len(cfg.Clients) > 0 {
		s.clientsRegistry = &StaticClientsRegistry{Clients: cfg.Clients}
	} else {
		slog.Warn("no OAuth2 clients configured")
	}

	// load signing key
	sigPrK, err := loadJwkFromPem(absPath(cfg.BaseDir, cfg.SignPrivateKeyPath))
	if err != nil {
		slog.Warn("failed to load signing key, will create random", "path", cfg.SignPrivateKeyPath)
		sigPrK, err = generateRandomJwk()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	s.sigPrK = sigPrK

	sigPuK, err := sigPrK.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("get public key: %w", err)
	}
	s.jwks = jwk.NewSet()
	s.jwks.AddKey(sigPuK)

	store, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("create request store: %w", err)
	}

	opts := []par.ServiceOption{par.WithSupportedScopes(cfg.ScopesSupported...)}
	if cfg.RequestTTLSeconds > 0 {
		opts = append(opts, par.WithTTL(time.Duration(cfg.RequestTTLSeconds)*time.Second))
	}
	s.par = par.NewService(store, opts...)

	return s, nil
}

// Service exposes the staging service so the authorization endpoint can
// redeem pushed requests.
func (s *Server) Service() *par.Service {
	return s.par
}

func newStore(cfg StoreConfig) (par.Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return par.NewMemoryStore(), nil
	case "valkey":
		if cfg.Valkey == nil {
			return nil, fmt.Errorf("valkey store requires valkey config")
		}
		option := valkey.ClientOption{
			InitAddress: []string{fmt.Sprintf("%s:%d", cfg.Valkey.Host, cfg.Valkey.Port)},
			Username:    cfg.Valkey.Username,
			Password:    cfg.Valkey.Password,
		}
		if cfg.Valkey.UseTLS {
			option.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client, err := valkey.NewClient(option)
		if err != nil {
			return nil, fmt.Errorf("create valkey client: %w", err)
		}
		return par.NewValkeyStore(client), nil
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres store requires postgres config")
		}
		db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return par.NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown store kind: '%s'", cfg.Kind)
	}
}

func (s *Server) MountRoutes(group *echo.Group) {
	group.Use(
		middleware.Logger(),
		ErrorHandlerMiddleware,
	)

	group.GET(s.endpointPaths.AuthorizationServerMetadata, s.MetadataEndpoint)
	group.GET(s.endpointPaths.Jwks, s.JWKS)
	group.POST(s.endpointPaths.PushedAuthorizationRequest, s.PAREndpoint)
}

func (s *Server) MetadataEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Metadata)
}

// JWKS serves the JSON Web Key Set for the server
func (s *Server) JWKS(c echo.Context) error {
	return c.JSON(http.StatusOK, s.jwks)
}

// PARResponse is the success body defined in RFC 9126 section 2.2.
type PARResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int    `json:"expires_in"`
}

func (s *Server) PAREndpoint(c echo.Context) error {
	client, clientError := s.verifyClient(c)
	if clientError != nil {
		return clientError
	}

	// a pushed request must carry the parameters themselves
	if c.FormValue("request_uri") != "" {
		return &Error{
			HttpStatus:  http.StatusBadRequest,
			Code:        "invalid_request",
			Description: "request_uri parameter must not be used at the PAR endpoint",
		}
	}

	var params par.Parameters
	binderr := echo.FormFieldBinder(c).
		MustString("response_type", &params.ResponseType).
		MustString("redirect_uri", &params.RedirectURI).
		String("scope", &params.Scope).
		String("state", &params.State).
		String("code_challenge", &params.CodeChallenge).
		String("code_challenge_method", &params.CodeChallengeMethod).
		String("nonce", &params.Nonce).
		String("display", &params.Display).
		String("prompt", &params.Prompt).
		String("max_age", &params.MaxAge).
		String("ui_locales", &params.UILocales).
		String("id_token_hint", &params.IDTokenHint).
		String("login_hint", &params.LoginHint).
		String("acr_values", &params.ACRValues).
		String("audience", &params.Audience).
		String("claims", &params.Claims).
		BindError()
	if binderr != nil {
		return &Error{
			HttpStatus:  http.StatusBadRequest,
			Code:        "invalid_request",
			Description: binderr.Error(),
		}
	}
	// resource is repeatable (RFC 8707)
	params.Resources = c.Request().Form["resource"]

	requestURI, expiresIn, err := s.par.Push(c.Request().Context(), client.PARClient(), params)
	if err != nil {
		var parErr *par.Error
		if errors.As(err, &parErr) {
			return &Error{
				HttpStatus:  http.StatusBadRequest,
				Code:        parErr.Code(),
				Description: parErr.Description,
			}
		}
		return &Error{
			HttpStatus:  http.StatusInternalServerError,
			Code:        "server_error",
			Description: "unable to stage authorization request",
		}
	}

	slog.Info("staged authorization request", "client_id", client.ClientID, "expires_in", expiresIn)

	return c.JSON(http.StatusCreated, &PARResponse{
		RequestURI: requestURI,
		ExpiresIn:  expiresIn,
	})
}

func (s *Server) verifyClient(c echo.Context) (*ClientMetadata, *Error) {
	if s.clientsRegistry == nil {
		return nil, &Error{
			HttpStatus:  http.StatusInternalServerError,
			Code:        "server_error",
			Description: "clients registry not configured",
		}
	}

	formClientId := c.FormValue("client_id")

	if formClientId != "" {
		cm, err := s.clientsRegistry.GetClientMetadata(formClientId)
		if err != nil {
			return nil, &Error{
				HttpStatus:  http.StatusUnauthorized,
				Code:        "invalid_client",
				Description: fmt.Errorf("unable to get client metadata: %w", err).Error(),
			}
		}

		if cm.Type == ClientTypeConfidential {
			formClientSecret := c.FormValue("client_secret")
			if formClientSecret == "" {
				return nil, &Error{
					HttpStatus:  http.StatusUnauthorized,
					Code:        "invalid_client",
					Description: "missing client_secret",
				}
			}
			return verifyClientSecret(formClientSecret, cm)
		}

		// public clients authenticate by identifier only
		if c.FormValue("client_secret") != "" {
			return nil, &Error{
				HttpStatus:  http.StatusBadRequest,
				Code:        "unauthorized_client",
				Description: "public client must not use client_secret",
			}
		}
		return cm, nil
	}

	// no client_id in form, try basic auth
	return s.verifyClientCredentialsBasic(c)
}

func (s *Server) verifyClientCredentialsBasic(c echo.Context) (*ClientMetadata, *Error) {
	clientId, clientSecret, ok := c.Request().BasicAuth()
	if !ok {
		return nil, &Error{
			HttpStatus:  http.StatusUnauthorized,
			Code:        "invalid_client",
			Description: "missing client credentials",
		}
	}

	client, err := s.clientsRegistry.GetClientMetadata(clientId)
	if err != nil {
		return nil, &Error{
			HttpStatus:  http.StatusUnauthorized,
			Code:        "invalid_client",
			Description: err.Error(),
		}
	}

	return verifyClientSecret(clientSecret, client)
}

func verifyClientSecret(clientSecret string, client *ClientMetadata) (*ClientMetadata, *Error) {
	if client.ClientSecretHash == "" && client.Type == ClientTypePublic {
		return nil, &Error{
			HttpStatus:  http.StatusBadRequest,
			Code:        "unauthorized_client",
			Description: "public client must not use client_secret",
		}
	}

	if ok, err := VerifySecretHash(clientSecret, client.ClientSecretHash); !ok {
		if err != nil {
			slog.Error("VerifySecretHash failed", "error", err, "client_id", client.ClientID)
		}

		return nil, &Error{
			HttpStatus:  http.StatusUnauthorized,
			Code:        "invalid_client",
			Description: "invalid client_secret",
		}
	}

	return client, nil
}

func loadJwkFromPem(path string) (jwk.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return jwk.ParseKey(data, jwk.WithPEM(true))
}

func generateRandomJwk() (jwk.Key, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	jwkKey, err := jwk.FromRaw(privateKey)
	if err != nil {
		return nil, fmt.Errorf("could not create jwk from key: %w", err)
	}

	thumbprint, err := jwkKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("could not create thumbprint: %w", err)
	}
	jwkKey.Set(jwk.KeyIDKey, base64.RawURLEncoding.EncodeToString(thumbprint))
	jwkKey.Set(jwk.KeyUsageKey, "sig")

	return jwkKey, nil
}

func buildURI(base string, paths ...string) string {
	result := strings.TrimRight(base, "/")
	for _, p := range paths {
		if p == "" {
			continue
		}
		result = fmt.Sprintf("%s/%s", result, strings.Trim(p, "/"))
	}
	return result
}
