package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Session guarda o estado efêmero de um visitante. O carrinho vive aqui e
// morre junto com a sessão.
type Session struct {
	ID   string `json:"id"`
	Cart Cart   `json:"cart"`
}

// SessionStore define a interface do colaborador de sessão
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisSessionStore implementa SessionStore sobre Redis, um blob JSON por
// sessão com TTL fixo
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore cria uma nova instância de RedisSessionStore
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session failed: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
