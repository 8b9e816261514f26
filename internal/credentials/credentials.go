// Package credentials stores the access/refresh token pair the engine
// authenticates with. The store is an external collaborator of the
// engine; two implementations are provided: in-process memory and Redis.
package credentials

import (
	"context"
	"sync"

	"uniqsocial/client/internal/models"
)

// TokenStore persists one token pair. Tokens returns empty strings, not
// an error, when nothing is stored.
type TokenStore interface {
	Tokens(ctx context.Context) (models.TokenPair, error)
	SetTokens(ctx context.Context, tokens models.TokenPair) error
	Clear(ctx context.Context) error
}

// AccessTokenSource adapts a TokenStore to the single-method source the
// realtime transport asks for a fresh credential on every connect.
type AccessTokenSource struct {
	Store TokenStore
}

func (s AccessTokenSource) AccessToken(ctx context.Context) (string, error) {
	tokens, err := s.Store.Tokens(ctx)
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// MemoryTokenStore keeps tokens for the lifetime of the process.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens models.TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Tokens(ctx context.Context) (models.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, nil
}

func (s *MemoryTokenStore) SetTokens(ctx context.Context, tokens models.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = models.TokenPair{}
	return nil
}
