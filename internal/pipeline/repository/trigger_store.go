package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/pipeline/dto"

	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"
)

// TriggerStore maps idempotency keys to trigger outcomes inside a bounded
// retention window. Reserve is the dedupe point: the first caller for a key
// wins, everyone else gets the recorded outcome back.
type TriggerStore interface {
	// Reserve atomically claims key for ttl. It returns true when the claim
	// succeeded, or false plus the previously recorded outcome.
	Reserve(ctx context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) (bool, *dto.TriggerOutcome, error)
	// Record overwrites the outcome for an already-reserved key, keeping
	// the remaining ttl.
	Record(ctx context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) error
	// Get returns the recorded outcome, or nil when the key is unknown or
	// its window elapsed.
	Get(ctx context.Context, key string) (*dto.TriggerOutcome, error)
}

const triggerKeyPrefix = "pipeline:trigger:"

// NewRedisTriggerStore creates a TriggerStore backed by Redis SETNX + TTL.
func NewRedisTriggerStore(client *goredis.Client) TriggerStore {
	return &redisTriggerStore{client: client}
}

type redisTriggerStore struct {
	client *goredis.Client
}

func (s *redisTriggerStore) Reserve(ctx context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) (bool, *dto.TriggerOutcome, error) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return false, nil, fmt.Errorf("failed to marshal trigger outcome: %w", err)
	}

	ok, err := s.client.SetNX(ctx, triggerKeyPrefix+key, payload, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (s *redisTriggerStore) Record(ctx context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger outcome: %w", err)
	}
	return s.client.Set(ctx, triggerKeyPrefix+key, payload, goredis.KeepTTL).Err()
}

func (s *redisTriggerStore) Get(ctx context.Context, key string) (*dto.TriggerOutcome, error) {
	raw, err := s.client.Get(ctx, triggerKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var outcome dto.TriggerOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger outcome: %w", err)
	}
	return &outcome, nil
}

// NewMemoryTriggerStore creates an in-process TriggerStore. Used when Redis
// is not configured, and in tests.
func NewMemoryTriggerStore(defaultTTL time.Duration) TriggerStore {
	return &memoryTriggerStore{cache: gocache.New(defaultTTL, defaultTTL)}
}

type memoryTriggerStore struct {
	cache *gocache.Cache
}

func (s *memoryTriggerStore) Reserve(_ context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) (bool, *dto.TriggerOutcome, error) {
	cp := *outcome
	if err := s.cache.Add(key, &cp, ttl); err == nil {
		return true, nil, nil
	}
	if existing, ok := s.cache.Get(key); ok {
		prior := *(existing.(*dto.TriggerOutcome))
		return false, &prior, nil
	}
	// The prior entry expired between Add and Get; claim it now.
	s.cache.Set(key, &cp, ttl)
	return true, nil, nil
}

func (s *memoryTriggerStore) Record(_ context.Context, key string, outcome *dto.TriggerOutcome, ttl time.Duration) error {
	cp := *outcome
	s.cache.Set(key, &cp, ttl)
	return nil
}

func (s *memoryTriggerStore) Get(_ context.Context, key string) (*dto.TriggerOutcome, error) {
	if existing, ok := s.cache.Get(key); ok {
		prior := *(existing.(*dto.TriggerOutcome))
		return &prior, nil
	}
	return nil, nil
}
