package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

// Service issues and resolves bearer tokens for user accounts.
type Service struct {
	broker *broker.Broker
	store  TokenStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(b *broker.Broker, store TokenStore, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{broker: b, store: store, ttl: ttl, logger: logger, now: time.Now}
}

// Login validates email/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	res, err := s.broker.Call(ctx, system.Users+"."+entity.ActionFind,
		map[string]any{"query": map[string]any{"email": email}, "limit": 1},
		&broker.Meta{Raw: true})
	if err != nil {
		return Session{}, err
	}
	users, _ := res.([]map[string]any)
	if len(users) == 0 {
		return Session{}, shared.ErrInvalidCredentials
	}
	user := users[0]
	hash, _ := user["password"].(string)
	if hash == "" {
		return Session{}, shared.ErrInvalidCredentials
	}
	if err := system.CheckPassword(hash, password); err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			s.logger.Warn("compare password", slog.Any("error", err))
		}
		return Session{}, shared.ErrInvalidCredentials
	}

	privileges, _ := fieldpath.Strings(user["privileges"])
	claims := Claims{UserID: storage.ID(user), Email: email, Privileges: privileges}
	session := Session{
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.ttl).UTC(),
		Claims:    claims,
	}
	if err := s.store.Save(ctx, session.Token, claims, s.ttl); err != nil {
		return Session{}, err
	}
	s.logger.Info("user logged in", slog.String("user", claims.UserID))
	return session, nil
}

// Resolve returns the decoded token for a bearer token.
func (s *Service) Resolve(ctx context.Context, token string) (map[string]any, error) {
	if token == "" {
		return nil, shared.ErrUnauthorized
	}
	claims, err := s.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	return claims.Token(), nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.Delete(ctx, token)
}
