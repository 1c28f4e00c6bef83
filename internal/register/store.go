package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store loads and saves registers. Get returns an empty register when none
// is stored.
type Store interface {
	Get(ctx context.Context, restaurantID, staffID uuid.UUID) (*Register, error)
	Save(ctx context.Context, r *Register) error
	Delete(ctx context.Context, restaurantID, staffID uuid.UUID) error
}

// RedisStore keeps registers as JSON values with a sliding TTL.
type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, TTL: ttl}
}

func (s *RedisStore) Key(restaurantID, staffID uuid.UUID) string {
	return "register:" + restaurantID.String() + ":" + staffID.String()
}

func (s *RedisStore) Get(ctx context.Context, restaurantID, staffID uuid.UUID) (*Register, error) {
	raw, err := s.Client.Get(ctx, s.Key(restaurantID, staffID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(restaurantID, staffID), nil
		}
		return nil, fmt.Errorf("get register: %w", err)
	}
	var r Register
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode register: %w", err)
	}
	return &r, nil
}

func (s *RedisStore) Save(ctx context.Context, r *Register) error {
	r.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode register: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key(r.RestaurantID, r.StaffID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("save register: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, restaurantID, staffID uuid.UUID) error {
	if err := s.Client.Del(ctx, s.Key(restaurantID, staffID)).Err(); err != nil {
		return fmt.Errorf("delete register: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store used by tests and single-node dev runs.
type MemoryStore struct {
	mu        sync.Mutex
	registers map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{registers: make(map[string][]byte)}
}

func memoryKey(restaurantID, staffID uuid.UUID) string {
	return restaurantID.String() + ":" + staffID.String()
}

func (s *MemoryStore) Get(_ context.Context, restaurantID, staffID uuid.UUID) (*Register, error) {
	s.mu.Lock()
	raw, ok := s.registers[memoryKey(restaurantID, staffID)]
	s.mu.Unlock()
	if !ok {
		return New(restaurantID, staffID), nil
	}
	var r Register
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *MemoryStore) Save(_ context.Context, r *Register) error {
	r.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.registers[memoryKey(r.RestaurantID, r.StaffID)] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, restaurantID, staffID uuid.UUID) error {
	s.mu.Lock()
	delete(s.registers, memoryKey(restaurantID, staffID))
	s.mu.Unlock()
	return nil
}
