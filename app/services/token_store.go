package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/redis/go-redis/v9"
)

// RedisTokenStore shares provider tokens between replicas through redis
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (s *RedisTokenStore) key(provider Provider) string {
	return s.prefix + "token:" + string(provider)
}

func (s *RedisTokenStore) Load(ctx context.Context, provider Provider) (*BearerToken, error) {
	raw, err := s.client.Get(ctx, s.key(provider)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get token: %w", err)
	}
	var token BearerToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	return &token, nil
}

func (s *RedisTokenStore) Store(ctx context.Context, provider Provider, token *BearerToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(provider), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// DBTokenStore keeps one row per provider in provider_tokens
type DBTokenStore struct {
	repo repository.ProviderTokenRepository
}

func NewDBTokenStore(repo repository.ProviderTokenRepository) *DBTokenStore {
	return &DBTokenStore{repo: repo}
}

func (s *DBTokenStore) Load(ctx context.Context, provider Provider) (*BearerToken, error) {
	row, err := s.repo.ByProvider(ctx, string(provider))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &BearerToken{Value: row.AccessToken, ExpiresAt: row.ExpiresAt}, nil
}

func (s *DBTokenStore) Store(ctx context.Context, provider Provider, token *BearerToken) error {
	return s.repo.Upsert(ctx, &models.ProviderToken{
		Provider:    string(provider),
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt,
	})
}
