package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tompei-viewer/constants"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrSessionNotFound = errors.New("session not found")

// Store persists session state between requests.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, state *State) error
}

func decodeState(b []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	clone := state.Clone()
	return &clone, nil
}

// MemoryStore keeps serialized sessions in process memory. Like RedisStore,
// a session expires ttl after its last save.
type MemoryStore struct {
	sessions *expirable.LRU[string, []byte]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: expirable.NewLRU[string, []byte](constants.MemorySessionLimit, nil, ttl),
	}
}

func (store *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	b, found := store.sessions.Get(id)
	if !found {
		return nil, ErrSessionNotFound
	}
	return decodeState(b)
}

func (store *MemoryStore) Save(ctx context.Context, state *State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	store.sessions.Add(state.ID, b)
	return nil
}

func (store *MemoryStore) Len() int {
	return store.sessions.Len()
}

// RedisStore keeps sessions in Redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return constants.SessionPrefix + id
}

func (store *RedisStore) Get(ctx context.Context, id string) (*State, error) {
	b, err := store.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeState(b)
}

func (store *RedisStore) Save(ctx context.Context, state *State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return store.client.Set(ctx, sessionKey(state.ID), b, store.ttl).Err()
}
