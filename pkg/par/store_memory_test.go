package par

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest(clientID string, ttl time.Duration) *Request {
	now := time.Now()
	return &Request{
		ID:         ksuid.New().String(),
		RequestURI: RequestURIPrefix + randomToken(requestURIBytes),
		ClientID:   clientID,
		Parameters: Parameters{
			ResponseType:        "code",
			RedirectURI:         "https://app.example.com/callback",
			CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			CodeChallengeMethod: "S256",
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest("client-1", time.Minute)
	require.NoError(t, store.Insert(ctx, req))

	// peek is idempotent
	got, err := store.Peek(ctx, req.RequestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, req.Parameters, got.Parameters)
	_, err = store.Peek(ctx, req.RequestURI, "client-1")
	require.NoError(t, err)

	got, err = store.Consume(ctx, req.RequestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, req.Parameters, got.Parameters)

	_, err = store.Consume(ctx, req.RequestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Peek(ctx, req.RequestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreOwnership(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest("client-1", time.Minute)
	require.NoError(t, store.Insert(ctx, req))

	_, err := store.Consume(ctx, req.RequestURI, "client-2")
	assert.ErrorIs(t, err, ErrNotFound)

	// the record survives the foreign attempt
	_, err = store.Consume(ctx, req.RequestURI, "client-1")
	assert.NoError(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	req := newTestRequest("client-1", -time.Second)
	require.NoError(t, store.Insert(ctx, req))

	_, err := store.Peek(ctx, req.RequestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// expiry is permanent once detected
	_, err = store.Consume(ctx, req.RequestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest("client-1", time.Minute)
	require.NoError(t, store.Insert(ctx, req))

	dup := newTestRequest("client-1", time.Minute)
	dup.RequestURI = req.RequestURI
	assert.ErrorIs(t, store.Insert(ctx, dup), ErrConflict)
}

func TestMemoryStoreConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newTestRequest("client-1", time.Minute)
	require.NoError(t, store.Insert(ctx, req))

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan *Request, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := store.Consume(ctx, req.RequestURI, "client-1"); err == nil {
				wins <- got
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one consumer must win")
}
