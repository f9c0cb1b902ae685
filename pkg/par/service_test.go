package par

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parstage/pkg/pkce"
)

func testClient() *Client {
	return &Client{
		ID:           "client-1",
		RedirectURIs: []string{"https://app.example.com/callback", "https://app.example.com/alt"},
		Scopes:       []string{"openid", "profile", "email"},
		SupportsPAR:  true,
		Public:       false,
		Profile:      pkce.ProfileWeb,
	}
}

func testParams() Parameters {
	return Parameters{
		ResponseType:        "code",
		RedirectURI:         "https://app.example.com/callback",
		Scope:               "openid profile",
		State:               "af0ifjsldkj",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
}

func pushError(t *testing.T, err error) *Error {
	t.Helper()
	require.Error(t, err)
	var parErr *Error
	require.ErrorAs(t, err, &parErr)
	return parErr
}

func TestPushAndConsume(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), WithSupportedScopes("openid", "profile", "email"))

	params := testParams()
	requestURI, expiresIn, err := svc.Push(ctx, testClient(), params)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(requestURI, RequestURIPrefix))
	assert.Equal(t, 600, expiresIn)

	req, err := svc.Consume(ctx, requestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, params, req.Parameters)
	assert.Equal(t, "client-1", req.ClientID)
	assert.WithinDuration(t, req.CreatedAt.Add(DefaultTTL), req.ExpiresAt, time.Second)

	// at most once
	_, err = svc.Consume(ctx, requestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Peek(ctx, requestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushClientWithoutPAR(t *testing.T) {
	svc := NewService(NewMemoryStore())
	client := testClient()
	client.SupportsPAR = false

	_, _, err := svc.Push(context.Background(), client, testParams())
	assert.Equal(t, KindClientNotAuthorized, pushError(t, err).Kind)
	assert.Equal(t, "unauthorized_client", pushError(t, err).Code())
}

func TestPushUnsupportedResponseType(t *testing.T) {
	svc := NewService(NewMemoryStore())
	params := testParams()
	params.ResponseType = "token"

	_, _, err := svc.Push(context.Background(), testClient(), params)
	assert.Equal(t, KindUnsupportedResponseType, pushError(t, err).Kind)
}

func TestPushUnregisteredRedirectURI(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store)

	params := testParams()
	params.RedirectURI = "https://evil.example.com/callback"
	_, _, err := svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidRedirectURI, pushError(t, err).Kind)

	// prefix matches must not count either
	params.RedirectURI = "https://app.example.com/callback/extra"
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidRedirectURI, pushError(t, err).Kind)

	// nothing was staged
	_, err = store.Consume(ctx, RequestURIPrefix+"guess", "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPushScopeValidation(t *testing.T) {
	ctx := context.Background()

	svc := NewService(NewMemoryStore(), WithSupportedScopes("openid", "profile"))
	params := testParams()
	params.Scope = "openid admin"
	_, _, err := svc.Push(ctx, testClient(), params)
	parErr := pushError(t, err)
	assert.Equal(t, KindInvalidScope, parErr.Kind)
	assert.Equal(t, "invalid_scope", parErr.Code())

	// allowed for the client but not supported by the server
	params.Scope = "openid email"
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidScope, pushError(t, err).Kind)

	// empty scope is fine
	params.Scope = ""
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.NoError(t, err)
}

func TestPushPKCEValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	params := testParams()
	params.CodeChallengeMethod = ""
	_, _, err := svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidPKCERequest, pushError(t, err).Kind)

	params = testParams()
	params.CodeChallenge = ""
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidPKCERequest, pushError(t, err).Kind)

	params = testParams()
	params.CodeChallenge = strings.Repeat("A", 42)
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.Equal(t, KindInvalidPKCERequest, pushError(t, err).Kind)

	// plain is accepted when well formed
	params = testParams()
	params.CodeChallenge = strings.Repeat("a", 50)
	params.CodeChallengeMethod = "plain"
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.NoError(t, err)
}

func TestPushPKCERequiredForPublicClients(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	client := testClient()
	client.Public = true
	params := testParams()
	params.CodeChallenge = ""
	params.CodeChallengeMethod = ""

	_, _, err := svc.Push(ctx, client, params)
	assert.Equal(t, KindInvalidPKCERequest, pushError(t, err).Kind)

	// a confidential web client may omit PKCE
	_, _, err = svc.Push(ctx, testClient(), params)
	assert.NoError(t, err)
}

func TestPushResourceIndicators(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	params := testParams()
	params.Resources = []string{"https://api.example.com/v1", "http://internal.example.com"}
	_, _, err := svc.Push(ctx, testClient(), params)
	assert.NoError(t, err)

	for _, bad := range []string{"not-a-uri", "ftp://api.example.com", "https://", "/relative/path"} {
		params.Resources = []string{bad}
		_, _, err = svc.Push(ctx, testClient(), params)
		parErr := pushError(t, err)
		assert.Equal(t, KindInvalidTarget, parErr.Kind, "resource %q", bad)
		assert.Equal(t, "invalid_target", parErr.Code())
	}
}

func TestPushCustomTTL(t *testing.T) {
	svc := NewService(NewMemoryStore(), WithTTL(90*time.Second))
	_, expiresIn, err := svc.Push(context.Background(), testClient(), testParams())
	require.NoError(t, err)
	assert.Equal(t, 90, expiresIn)
}

func TestConsumeOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	requestURI, _, err := svc.Push(ctx, testClient(), testParams())
	require.NoError(t, err)

	_, err = svc.Consume(ctx, requestURI, "client-2")
	assert.ErrorIs(t, err, ErrNotFound)

	req, err := svc.Consume(ctx, requestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "client-1", req.ClientID)
}
