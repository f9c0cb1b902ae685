package par

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "par:request:"

// consumeScript checks ownership and deletes the record in a single
// server-side step, so two racing consumers cannot both win.
var consumeScript = valkey.NewLuaScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return false
end
if cjson.decode(v)['client_id'] ~= ARGV[1] then
  return false
end
redis.call('DEL', KEYS[1])
return v
`)

// ValkeyStore persists records as JSON values keyed by request URI. The
// key TTL matches the record expiry, so Valkey reaps expired records on
// its own; the lazy expiry check on lookup stays as a guard against
// clock skew between server and store.
type ValkeyStore struct {
	client valkey.Client
}

func NewValkeyStore(client valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) Insert(ctx context.Context, req *Request) error {
	ttl := time.Until(req.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("par: record expires in the past")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	cmd := s.client.B().Set().
		Key(valkeyKeyPrefix + req.RequestURI).
		Value(string(payload)).
		Nx().
		Px(ttl).
		Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return ErrConflict
		}
		return fmt.Errorf("store request: %w", err)
	}
	return nil
}

func (s *ValkeyStore) Peek(ctx context.Context, requestURI, clientID string) (*Request, error) {
	cmd := s.client.B().Get().Key(valkeyKeyPrefix + requestURI).Build()
	payload, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load request: %w", err)
	}
	req, err := decodeRequest(payload)
	if err != nil {
		return nil, err
	}
	if req.ClientID != clientID {
		return nil, ErrNotFound
	}
	if req.Expired(time.Now()) {
		// the key TTL normally reaps this; losing the delete is fine
		del := s.client.B().Del().Key(valkeyKeyPrefix + requestURI).Build()
		if err := s.client.Do(ctx, del).Error(); err != nil {
			slog.Warn("failed to delete expired request", "error", err, "request_uri", requestURI)
		}
		return nil, ErrNotFound
	}
	return req, nil
}

func (s *ValkeyStore) Consume(ctx context.Context, requestURI, clientID string) (*Request, error) {
	resp := consumeScript.Exec(ctx, s.client, []string{valkeyKeyPrefix + requestURI}, []string{clientID})
	payload, err := resp.ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("consume request: %w", err)
	}
	req, err := decodeRequest(payload)
	if err != nil {
		return nil, err
	}
	// the record is gone either way; an expired one is reported as absent
	if req.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return req, nil
}

func decodeRequest(payload string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}
