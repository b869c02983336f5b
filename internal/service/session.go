package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricelens-gateway/internal/cache"
	"pricelens-gateway/internal/model"

	"go.uber.org/zap"
)

const (
	// SessionPrefix is the prefix for all gateway session tokens.
	SessionPrefix = "pls_"

	// DefaultSessionTTL is used when no TTL is configured.
	DefaultSessionTTL = 1 * time.Hour

	sessionKeyPrefix = "session:"
)

// ErrInvalidSession is returned for unknown, malformed or expired tokens.
var ErrInvalidSession = errors.New("invalid or expired session")

// SessionService issues and validates opaque session tokens. Session data
// lives in the shared cache so every gateway instance sees the same sessions.
type SessionService struct {
	store  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSessionService creates a session service backed by store.
func NewSessionService(store cache.Cache, ttl time.Duration, logger *zap.Logger) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("session"),
		now:    time.Now,
	}
}

// TTL returns the session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create stores sess under a new token.
func (s *SessionService) Create(ctx context.Context, sess model.Session) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := SessionPrefix + hex.EncodeToString(tokenBytes)

	sess.CreatedAt = s.now()
	sess.ExpiresAt = sess.CreatedAt.Add(s.ttl)
	if err := s.put(ctx, token, sess); err != nil {
		return "", err
	}

	s.logger.Info("session created",
		zap.String("user_id", sess.UserID),
		zap.Bool("admin", sess.IsAdmin),
		zap.Time("expires_at", sess.ExpiresAt),
	)
	return token, nil
}

// Validate returns the session behind token.
func (s *SessionService) Validate(ctx context.Context, token string) (*model.Session, error) {
	if !strings.HasPrefix(token, SessionPrefix) || len(token) == len(SessionPrefix) {
		return nil, ErrInvalidSession
	}

	data, err := s.store.Get(ctx, s.key(token))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	if s.now().After(sess.ExpiresAt) {
		_ = s.store.Delete(ctx, s.key(token))
		return nil, ErrInvalidSession
	}
	return &sess, nil
}

// Replace stores sess under an existing token and extends its lifetime.
func (s *SessionService) Replace(ctx context.Context, token string, sess model.Session) (*model.Session, error) {
	sess.ExpiresAt = s.now().Add(s.ttl)
	if err := s.put(ctx, token, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Revoke deletes a session.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.store.Delete(ctx, s.key(token))
}

func (s *SessionService) put(ctx context.Context, token string, sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.store.Set(ctx, s.key(token), data, s.ttl); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SessionService) key(token string) string {
	return sessionKeyPrefix + token
}
