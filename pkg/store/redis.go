// SPDX-FileCopyrightText: Copyright 2025 Trackdeck Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key, e.g. "trackdeck:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on a shared Redis, enabling multi-instance
// deployments where the callback may land on a different instance than the
// one that started the login.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) flowKey(state string) string {
	return s.keyPrefix + "flow:" + state
}

func (s *RedisStore) tokenKey(userID string) string {
	return s.keyPrefix + "token:" + userID
}

func (s *RedisStore) linkKey(userID string) string {
	return s.keyPrefix + "link:" + userID
}

// PutFlowState stores a flow state as a JSON document with FlowStateTTL.
// Redis expiry is the TTL enforcement; no sweep is needed.
func (s *RedisStore) PutFlowState(ctx context.Context, state string, fs *FlowState) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state: %w", err)
	}
	if err := s.client.Set(ctx, s.flowKey(state), data, FlowStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store flow state: %w", err)
	}
	return nil
}

// ConsumeFlowState atomically reads and deletes a flow state via GETDEL, so
// concurrent consumes of one token yield the state to exactly one caller
// even across instances.
func (s *RedisStore) ConsumeFlowState(ctx context.Context, state string) (*FlowState, error) {
	data, err := s.client.GetDel(ctx, s.flowKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume flow state: %w", err)
	}

	var fs FlowState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &fs, nil
}

// GetTokenRecord returns the user's token record.
func (s *RedisStore) GetTokenRecord(ctx context.Context, userID string) (*TokenRecord, error) {
	data, err := s.client.Get(ctx, s.tokenKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &rec, nil
}

// ReplaceTokenRecord overwrites the user's token record. Records carry no
// Redis TTL; the ExpiresAt inside refers to the access token, not the
// document, and the refresh token outlives it.
func (s *RedisStore) ReplaceTokenRecord(ctx context.Context, userID string, rec *TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}
	if err := s.client.Set(ctx, s.tokenKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store token record: %w", err)
	}
	return nil
}

// DeleteTokenRecord removes the user's token record. Idempotent.
func (s *RedisStore) DeleteTokenRecord(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}
	return nil
}

// GetLinkStatus returns the user's link status.
func (s *RedisStore) GetLinkStatus(ctx context.Context, userID string) (*LinkStatus, error) {
	data, err := s.client.Get(ctx, s.linkKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link status: %w", err)
	}

	var status LinkStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &status, nil
}

// PutLinkStatus stores the user's link status.
func (s *RedisStore) PutLinkStatus(ctx context.Context, userID string, status *LinkStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal link status: %w", err)
	}
	if err := s.client.Set(ctx, s.linkKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store link status: %w", err)
	}
	return nil
}

// DeleteLinkStatus removes the user's link status. Idempotent.
func (s *RedisStore) DeleteLinkStatus(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.linkKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete link status: %w", err)
	}
	return nil
}
