package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

// Claims is the access token payload. Tokens are minted by the identity
// service; this service only verifies them.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	now    func() time.Time
}

func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs an HS256 access token for actor. Used by tooling and tests.
func (s *TokenService) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	issuedAt := s.now()
	claims := Claims{
		UserID: actor.ID.String(),
		Role:   actor.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate verifies the token signature and expiry and returns the actor it names.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.Actor, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrap.Error(ctx, ErrExpToken)
		}
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}
	if !parsed.Valid {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}
	role := types.Role(claims.Role)
	if !role.Valid() {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	return &models.Actor{ID: id, Role: role}, nil
}
