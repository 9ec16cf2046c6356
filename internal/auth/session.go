package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"campus-portal/internal/policy"
)

const issuer = "campus-portal"

// Sessions issues signed session cookies whose only claim is the id of a
// server-side Session.
type Sessions struct {
	store  Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(store Store, secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long an issued session stays valid.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue stores a session for p and returns the signed token for the cookie.
func (s *Sessions) Issue(ctx context.Context, p policy.Principal) (string, error) {
	if p.Anonymous() {
		return "", errors.New("cannot issue a session for an anonymous principal")
	}
	now := s.now()
	sess := Session{
		ID:        uuid.NewString(),
		Principal: p,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		ID:        sess.ID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Resolve verifies the token and loads its session.
func (s *Sessions) Resolve(ctx context.Context, tokenString string) (Session, error) {
	id, err := s.sessionID(tokenString)
	if err != nil {
		return Session{}, err
	}
	return s.store.Get(ctx, id)
}

// Revoke deletes the session behind the token. Unknown tokens are ignored.
func (s *Sessions) Revoke(ctx context.Context, tokenString string) error {
	id, err := s.sessionID(tokenString)
	if err != nil {
		return nil
	}
	return s.store.Delete(ctx, id)
}

func (s *Sessions) sessionID(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if !token.Valid || claims.ID == "" {
		return "", ErrSessionNotFound
	}
	return claims.ID, nil
}
