package par

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

func TestValkeyStoreInsert(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	req := newTestRequest("client-1", time.Minute)
	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == valkeyKeyPrefix+req.RequestURI
		})).
		Return(mock.Result(mock.ValkeyString("OK")))

	require.NoError(t, store.Insert(context.Background(), req))
}

func TestValkeyStoreInsertConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	req := newTestRequest("client-1", time.Minute)
	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET"
		})).
		Return(mock.Result(mock.ValkeyNil()))

	assert.ErrorIs(t, store.Insert(context.Background(), req), ErrConflict)
}

func TestValkeyStoreInsertRejectsExpired(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewValkeyStore(mock.NewClient(ctrl))

	req := newTestRequest("client-1", -time.Second)
	assert.Error(t, store.Insert(context.Background(), req))
}

func TestValkeyStoreConsume(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	req := newTestRequest("client-1", time.Minute)
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "EVALSHA" && cmd[3] == valkeyKeyPrefix+req.RequestURI && cmd[4] == "client-1"
		})).
		Return(mock.Result(mock.ValkeyString(string(payload))))

	got, err := store.Consume(context.Background(), req.RequestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, req.Parameters, got.Parameters)
	assert.Equal(t, req.ClientID, got.ClientID)
}

func TestValkeyStoreConsumeNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "EVALSHA"
		})).
		Return(mock.Result(mock.ValkeyNil()))

	_, err := store.Consume(context.Background(), RequestURIPrefix+"missing", "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValkeyStorePeek(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	req := newTestRequest("client-1", time.Minute)
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", valkeyKeyPrefix+req.RequestURI)).
		Return(mock.Result(mock.ValkeyString(string(payload)))).
		Times(2)

	got, err := store.Peek(context.Background(), req.RequestURI, "client-1")
	require.NoError(t, err)
	assert.Equal(t, req.Parameters, got.Parameters)

	// wrong owner reads the same key but is told nothing exists
	_, err = store.Peek(context.Background(), req.RequestURI, "client-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValkeyStorePeekExpiredDeletes(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	store := NewValkeyStore(client)

	// expired but still present, e.g. clock skew between server and store
	req := newTestRequest("client-1", -time.Second)
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", valkeyKeyPrefix+req.RequestURI)).
		Return(mock.Result(mock.ValkeyString(string(payload))))
	client.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", valkeyKeyPrefix+req.RequestURI)).
		Return(mock.Result(mock.ValkeyInt64(1)))

	_, err = store.Peek(context.Background(), req.RequestURI, "client-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
