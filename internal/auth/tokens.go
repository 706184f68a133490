package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims описывает полезную нагрузку наших JWT.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens выпускает и проверяет access/refresh токены. У каждого вида свой
// секрет, поэтому refresh нельзя подсунуть вместо access.
type Tokens struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokens(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Pair содержит access и refresh токены одного пользователя.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

func (t *Tokens) Issue(userID uuid.UUID) (Pair, error) {
	access, err := t.sign(userID, t.accessTTL, t.accessSecret)
	if err != nil {
		return Pair{}, errors.Wrap(err, "sign access token")
	}
	refresh, err := t.sign(userID, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return Pair{}, errors.Wrap(err, "sign refresh token")
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tokens) ParseAccess(token string) (uuid.UUID, error) {
	return t.parse(token, t.accessSecret)
}

func (t *Tokens) ParseRefresh(token string) (uuid.UUID, error) {
	return t.parse(token, t.refreshSecret)
}

func (t *Tokens) sign(userID uuid.UUID, ttl time.Duration, secret []byte) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *Tokens) parse(token string, secret []byte) (uuid.UUID, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
