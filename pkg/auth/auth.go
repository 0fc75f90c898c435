// Package auth resolves worker credentials to user identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("missing auth token")
	ErrMissingSecret = errors.New("missing signing secret")
)

type Authenticator interface {
	// CurrentUser returns the id of the user owning token.
	CurrentUser(ctx context.Context, token string) (string, error)
}

type anonymous struct{}

// NewAnonymous accepts every caller without identifying it.
func NewAnonymous() Authenticator {
	return anonymous{}
}

func (anonymous) CurrentUser(context.Context, string) (string, error) {
	return "", nil
}

type Config struct {
	Secret   string `env:"FEDCYCLE_AUTH_SECRET"   envDefault:""`
	Issuer   string `env:"FEDCYCLE_AUTH_ISSUER"   envDefault:""`
	Audience string `env:"FEDCYCLE_AUTH_AUDIENCE" envDefault:""`
}

type jwtAuthenticator struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewJWT verifies HS256 tokens signed with cfg.Secret. The subject claim
// is the user id.
func NewJWT(cfg Config) (Authenticator, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &jwtAuthenticator{
		secret: []byte(cfg.Secret),
		opts:   opts,
	}, nil
}

func (a *jwtAuthenticator) CurrentUser(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrUnauthorized, ErrMissingToken)
	}

	claims := jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...); err != nil {
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrUnauthorized, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", pkgerrors.ErrUnauthorized)
	}

	return claims.Subject, nil
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(cfg Config, subject string, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", ErrMissingSecret
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}
