package identity

import (
	"context"
	"time"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const jwtIssuer = "campusfeed"

// Claims carried by tokens issued for the feed.
type Claims struct {
	UserId string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HMAC signed tokens with a shared secret.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) (*JWTProvider, error) {
	if secret == "" {
		return nil, errors.New("empty jwt secret")
	}
	return &JWTProvider{secret: []byte(secret)}, nil
}

func (p *JWTProvider) Identify(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, unauthorized("empty jwt token")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, unauthorized("invalid jwt token: %v", err)
	}

	userId := claims.UserId
	if userId == "" {
		userId = claims.Subject
	}
	if err := model.ValidateId(userId); err != nil {
		return nil, unauthorized("jwt token carries no valid user id")
	}
	return &model.Identity{
		UserId:      userId,
		DisplayName: claims.Name,
		AvatarUrl:   claims.Avatar,
		Role:        model.ParseRole(claims.Role),
	}, nil
}

// IssueToken signs a token for identity valid for ttl. Used by tooling and
// tests, production tokens come from the sign-in service.
func (p *JWTProvider) IssueToken(identity *model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserId: identity.UserId,
		Name:   identity.DisplayName,
		Avatar: identity.AvatarUrl,
		Role:   identity.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			Subject:   identity.UserId,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
