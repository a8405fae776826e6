// Package redis persists session snapshots in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

var _ ports.SessionSnapshotStore = (*SnapshotStore)(nil)

// SnapshotStoreOptions configures a SnapshotStore.
type SnapshotStoreOptions struct {
	// Key identifies this client's session slot, e.g. "opsdesk:session:<device>".
	Key string
	// TTL bounds how long a saved session can be restored. Zero keeps it until deleted.
	TTL time.Duration
}

// SnapshotStore keeps the single active identity under one Redis key.
// Every save refreshes the TTL.
type SnapshotStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	now    func() time.Time
}

type snapshotEnvelope struct {
	Identity domainauth.Identity `json:"identity"`
	SavedAt  time.Time           `json:"saved_at"`
}

// NewSnapshotStore creates a Redis-backed session snapshot store.
func NewSnapshotStore(client redis.UniversalClient, opts SnapshotStoreOptions) *SnapshotStore {
	if client == nil {
		panic("redis client is required")
	}
	key := opts.Key
	if key == "" {
		key = "opsdesk:session:default"
	}
	return &SnapshotStore{client: client, key: key, ttl: opts.TTL, now: time.Now}
}

func (s *SnapshotStore) Save(ctx context.Context, id domainauth.Identity) error {
	if id.ID == "" {
		return errors.New("identity id cannot be empty")
	}
	data, err := json.Marshal(snapshotEnvelope{Identity: id, SavedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	if err = s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) (domainauth.Identity, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Identity{}, ports.ErrRecordNotFound
		}
		return domainauth.Identity{}, fmt.Errorf("redis get: %w", err)
	}

	var env snapshotEnvelope
	if err = json.Unmarshal(data, &env); err != nil {
		return domainauth.Identity{}, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	if env.Identity.ID == "" || !env.Identity.Role.Valid() {
		// Unusable snapshot; drop it so the next start does not trip over it.
		if delErr := s.Delete(ctx); delErr != nil {
			return domainauth.Identity{}, fmt.Errorf("discard invalid snapshot: %w", delErr)
		}
		return domainauth.Identity{}, ports.ErrRecordNotFound
	}
	return env.Identity, nil
}

func (s *SnapshotStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
