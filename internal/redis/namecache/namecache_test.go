package namecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatrelay/internal/services/chatstore"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	chatstore.IChatStore
	names   map[string]string
	gets    int
	sets    int
	failSet error
}

func (s *stubStore) GetUsername(_ context.Context, device string) (string, bool, error) {
	s.gets++
	n, ok := s.names[device]
	return n, ok, nil
}

func (s *stubStore) SetUsername(_ context.Context, device, name string) error {
	s.sets++
	if s.failSet != nil {
		return s.failSet
	}
	s.names[device] = name
	return nil
}

func TestGetUsernameHitSkipsDatabase(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	next := &stubStore{names: map[string]string{}}
	cache := New(next, rdc, time.Minute)

	mock.ExpectGet("chat:user:dev-1").SetVal("alice")

	name, ok, err := cache.GetUsername(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Zero(t, next.gets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsernameMissPopulatesCache(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	next := &stubStore{names: map[string]string{"dev-1": "alice"}}
	cache := New(next, rdc, time.Minute)

	mock.ExpectGet("chat:user:dev-1").RedisNil()
	mock.ExpectSet("chat:user:dev-1", "alice", time.Minute).SetVal("OK")

	name, ok, err := cache.GetUsername(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.Equal(t, 1, next.gets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsernameUnknownDeviceIsNotCached(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	next := &stubStore{names: map[string]string{}}
	cache := New(next, rdc, time.Minute)

	mock.ExpectGet("chat:user:ghost").RedisNil()

	_, ok, err := cache.GetUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsernameRedisDownFallsBack(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	next := &stubStore{names: map[string]string{"dev-1": "alice"}}
	cache := New(next, rdc, time.Minute)

	mock.ExpectGet("chat:user:dev-1").SetErr(errors.New("dial tcp: refused"))
	mock.ExpectSet("chat:user:dev-1", "alice", time.Minute).SetErr(errors.New("dial tcp: refused"))

	name, ok, err := cache.GetUsername(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUsernameWritesThrough(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	next := &stubStore{names: map[string]string{}}
	cache := New(next, rdc, 5*time.Minute)

	mock.ExpectSet("chat:user:dev-9", "bob", 5*time.Minute).SetVal("OK")

	require.NoError(t, cache.SetUsername(context.Background(), "dev-9", "bob"))
	assert.Equal(t, "bob", next.names["dev-9"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUsernameDatabaseErrorSkipsCache(t *testing.T) {
	rdc, mock := redismock.NewClientMock()
	boom := errors.New("db down")
	next := &stubStore{names: map[string]string{}, failSet: boom}
	cache := New(next, rdc, time.Minute)

	err := cache.SetUsername(context.Background(), "dev-9", "bob")
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
