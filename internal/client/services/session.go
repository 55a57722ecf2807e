package services

import (
	"context"
	"fmt"
	"time"

	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/metadata"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// SessionService is the auth boundary. Authentication itself is the server's
// concern; the client only exchanges credentials for a bearer token, keeps
// it durably, and reads the identity and expiry claims out of it.
type SessionService interface {
	// Login authenticates against the remote and persists the session.
	Login(ctx context.Context, email, password string) error

	// Token returns the stored bearer token, or "" when logged out.
	// It satisfies remote.TokenSource.
	Token(ctx context.Context) (string, error)

	// Identity returns the subject the session is scoped to.
	Identity(ctx context.Context) (string, error)

	// Expired reports whether the stored token has passed its expiry.
	Expired(ctx context.Context) (bool, error)

	// Logout drops the persisted session.
	Logout(ctx context.Context) error
}

type sessionService struct {
	api  remote.API
	meta metadata.Repository
}

func NewSessionService(api remote.API, meta metadata.Repository) SessionService {
	return &sessionService{api: api, meta: meta}
}

func (s *sessionService) Login(ctx context.Context, email, password string) error {
	token, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	identity, _, err := claimsOf(token)
	if err != nil {
		return fmt.Errorf("unusable session token: %w", err)
	}

	if err := s.meta.Set(ctx, metadata.KeySessionToken, []byte(token)); err != nil {
		return err
	}
	return s.meta.Set(ctx, metadata.KeyIdentity, []byte(identity))
}

func (s *sessionService) Token(ctx context.Context) (string, error) {
	raw, err := s.meta.Get(ctx, metadata.KeySessionToken)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *sessionService) Identity(ctx context.Context) (string, error) {
	raw, err := s.meta.Get(ctx, metadata.KeyIdentity)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", common.ErrUnauthorized
	}
	return string(raw), nil
}

func (s *sessionService) Expired(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return false, err
	}
	if token == "" {
		return true, nil
	}
	_, expiry, err := claimsOf(token)
	if err != nil {
		return true, err
	}
	if expiry.IsZero() {
		return false, nil
	}
	return time.Now().After(expiry), nil
}

func (s *sessionService) Logout(ctx context.Context) error {
	if err := s.meta.Delete(ctx, metadata.KeySessionToken); err != nil {
		return err
	}
	return s.meta.Delete(ctx, metadata.KeyIdentity)
}

// claimsOf extracts subject and expiry from a bearer token. The signature is
// not verified here: the server is the verifier, the client only needs the
// registered claims.
func claimsOf(token string) (subject string, expiry time.Time, err error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", time.Time{}, err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", time.Time{}, fmt.Errorf("token has no subject: %w", err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return "", time.Time{}, err
	}
	if exp == nil {
		return sub, time.Time{}, nil
	}
	return sub, exp.Time, nil
}
