// Package auth mints and validates the JWT tokens that session agents use
// to call back into the control plane.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/playmesh/playmesh/internal/config"
)

var (
	// ErrInvalidToken is returned when a token fails validation
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token has expired
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the JWT claims carried by an agent token. The subject is the
// host ID the token was minted for.
type Claims struct {
	HostID string `json:"host_id"`
	jwt.RegisteredClaims
}

// Service signs and validates agent tokens with the shared HS256 secret.
type Service struct {
	secret     []byte
	expiration time.Duration
}

// NewService creates an agent token service from the security config.
func NewService(cfg *config.Config) *Service {
	return &Service{
		secret:     []byte(cfg.Security.AgentTokenSecret),
		expiration: cfg.Security.AgentTokenExpiration,
	}
}

// Mint generates a signed agent token bound to a host.
func (s *Service) Mint(hostID string) (string, error) {
	return GenerateAgentToken(string(s.secret), hostID, s.expiration)
}

// GenerateAgentToken signs an agent token for a host. Exposed as a function
// so the token CLI can mint without constructing a full service.
func GenerateAgentToken(secret, hostID string, expiration time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("agent token secret is required")
	}
	if hostID == "" {
		return "", fmt.Errorf("host ID is required")
	}

	now := time.Now()
	claims := Claims{
		HostID: hostID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "playmesh",
			Subject:   hostID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates an agent token, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.HostID == "" {
		claims.HostID = claims.Subject
	}
	return claims, nil
}
