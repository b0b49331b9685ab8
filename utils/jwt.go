package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the typ claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrWrongTokenType is returned when a refresh token is presented as an access token or
// the other way round.
var ErrWrongTokenType = errors.New("wrong token type")

// Claims defines JWT claims used in the application.
type Claims struct {
	UserID    string `json:"uid"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what a login or refresh hands back to the client.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: now}
}

func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// IssuePair signs a fresh access and refresh token for the session.
func (t *TokenIssuer) IssuePair(userID, username, role, sessionID string) (TokenPair, error) {
	now := t.now()
	pair := TokenPair{
		RefreshID:        uuid.NewString(),
		AccessExpiresAt:  now.Add(t.accessTTL),
		RefreshExpiresAt: now.Add(t.refreshTTL),
	}
	var err error
	pair.AccessToken, err = t.sign(Claims{
		UserID: userID, Username: username, Role: role, SessionID: sessionID, Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.AccessExpiresAt),
		},
	})
	if err != nil {
		return TokenPair{}, err
	}
	pair.RefreshToken, err = t.sign(Claims{
		UserID: userID, SessionID: sessionID, Type: TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        pair.RefreshID,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(pair.RefreshExpiresAt),
		},
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (t *TokenIssuer) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Parse validates a JWT of the wanted type and returns its claims. Expiry surfaces as
// jwt.ErrTokenExpired.
func (t *TokenIssuer) Parse(tokenStr, wantType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Type != wantType {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, errors.New("incomplete token claims")
	}
	return claims, nil
}
