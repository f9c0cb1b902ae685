// Package par implements the pushed authorization request staging area
// defined in RFC 9126: a client pushes its authorization parameters to
// the server, receives a short-lived single-use request URI, and the
// authorization endpoint later redeems that URI exactly once.
package par

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"parstage/pkg/pkce"
)

// RequestURIPrefix is the URN namespace for request URIs, RFC 9126
// section 2.2.
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

const (
	// DefaultTTL is the request URI lifetime recommended by RFC 9126.
	DefaultTTL = 600 * time.Second

	requestURIBytes = 48
	insertAttempts  = 3
)

// Service validates pushed parameter sets and drives the record
// lifecycle against a Store.
type Service struct {
	store         Store
	ttl           time.Duration
	responseTypes []string
	scopes        []string
	now           func() time.Time
}

type ServiceOption func(*Service)

func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

func WithResponseTypes(types ...string) ServiceOption {
	return func(s *Service) {
		s.responseTypes = types
	}
}

// WithSupportedScopes restricts pushed scopes to the server's global
// catalog on top of the per-client allow list. Without it only the
// per-client list applies.
func WithSupportedScopes(scopes ...string) ServiceOption {
	return func(s *Service) {
		s.scopes = scopes
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		ttl:           DefaultTTL,
		responseTypes: []string{"code"},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push validates the parameter set against the client's registration and
// stages it under a fresh request URI. It returns the request URI and its
// lifetime in seconds. Validation runs in a fixed order and stops at the
// first failure; see Error for the reported kinds.
func (s *Service) Push(ctx context.Context, client *Client, params Parameters) (string, int, error) {
	if err := s.validate(client, &params); err != nil {
		return "", 0, err
	}

	now := s.now()
	for attempt := 1; attempt <= insertAttempts; attempt++ {
		req := &Request{
			ID:         ksuid.New().String(),
			RequestURI: RequestURIPrefix + randomToken(requestURIBytes),
			ClientID:   client.ID,
			Parameters: params,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		err := s.store.Insert(ctx, req)
		if err == nil {
			return req.RequestURI, int(s.ttl.Seconds()), nil
		}
		if !errors.Is(err, ErrConflict) {
			return "", 0, fmt.Errorf("stage request: %w", err)
		}
		slog.Warn("request_uri collision, regenerating", "attempt", attempt)
	}
	return "", 0, fmt.Errorf("stage request: %w", ErrConflict)
}

// Peek resolves a staged request without consuming it.
//
// Store faults on lookup degrade to ErrNotFound so that a flaky backend
// cannot be told apart from a missing record, but they are logged.
func (s *Service) Peek(ctx context.Context, requestURI, clientID string) (*Request, error) {
	req, err := s.store.Peek(ctx, requestURI, clientID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("par lookup failed", "error", err, "client_id", clientID)
		}
		return nil, ErrNotFound
	}
	return req, nil
}

// Consume resolves a staged request and deletes it in the same atomic
// step. A request URI resolves at most once; every later Consume or Peek
// reports ErrNotFound.
func (s *Service) Consume(ctx context.Context, requestURI, clientID string) (*Request, error) {
	req, err := s.store.Consume(ctx, requestURI, clientID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("par consume failed", "error", err, "client_id", clientID)
		}
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *Service) validate(client *Client, params *Parameters) error {
	if !client.SupportsPAR {
		return &Error{
			Kind:        KindClientNotAuthorized,
			Description: "client is not allowed to use pushed authorization requests",
		}
	}
	if !contains(s.responseTypes, params.ResponseType) {
		return &Error{
			Kind:        KindUnsupportedResponseType,
			Description: fmt.Sprintf("unsupported response_type: %s", params.ResponseType),
		}
	}
	// exact match only, no prefix or wildcard matching
	if !contains(client.RedirectURIs, params.RedirectURI) {
		return &Error{
			Kind:        KindInvalidRedirectURI,
			Description: "redirect_uri is not registered for this client",
		}
	}
	if params.Scope != "" {
		for _, scope := range strings.Fields(params.Scope) {
			if !contains(client.Scopes, scope) || (len(s.scopes) > 0 && !contains(s.scopes, scope)) {
				return &Error{
					Kind:        KindInvalidScope,
					Description: fmt.Sprintf("scope not allowed: %s", scope),
				}
			}
		}
	}
	if err := s.validatePKCE(client, params); err != nil {
		return err
	}
	for _, resource := range params.Resources {
		if !validResourceIndicator(resource) {
			return &Error{
				Kind:        KindInvalidTarget,
				Description: fmt.Sprintf("invalid resource indicator: %s", resource),
			}
		}
	}
	return nil
}

func (s *Service) validatePKCE(client *Client, params *Parameters) error {
	challenge, method := params.CodeChallenge, params.CodeChallengeMethod
	if challenge == "" && method == "" {
		if pkce.Required(client.Profile, client.Public) {
			return &Error{
				Kind:        KindInvalidPKCERequest,
				Description: "code_challenge is required for this client",
			}
		}
		return nil
	}
	if challenge == "" || method == "" {
		return &Error{
			Kind:        KindInvalidPKCERequest,
			Description: "code_challenge and code_challenge_method must be sent together",
		}
	}
	if err := pkce.ValidateChallenge(challenge, pkce.Method(method)); err != nil {
		return &Error{
			Kind:        KindInvalidPKCERequest,
			Description: err.Error(),
		}
	}
	return nil
}

// resource indicators must be absolute http(s) URIs, RFC 8707 section 2
func validResourceIndicator(resource string) bool {
	u, err := url.Parse(resource)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
