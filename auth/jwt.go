package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"kvrelay/config"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "kvrelay"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// HasRole reports whether the claims grant role. Admin grants everything.
func (c *Claims) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if Role(r) == role || Role(r) == RoleAdmin {
			return true
		}
	}
	return false
}

// Validator is what the middleware needs from an AuthService.
type Validator interface {
	ValidateToken(token string) (*Claims, error)
}

type AuthService struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	tokenDuration time.Duration
}

// NewAuthService parses PEM keys. The private key may be empty on processes
// that only validate tokens.
func NewAuthService(cfg *config.AuthConfig) (*AuthService, error) {
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	svc := &AuthService{
		publicKey:     publicKey,
		tokenDuration: time.Duration(cfg.TokenDuration) * time.Second,
	}

	if cfg.PrivateKey != "" {
		svc.privateKey, err = jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	return svc, nil
}

func (a *AuthService) GenerateToken(subject string, roles []string) (string, error) {
	if a.privateKey == nil {
		return "", errors.New("no private key configured")
	}

	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.privateKey)
}

// ReplicatorToken signs a short-lived token for leader-to-replica requests.
func (a *AuthService) ReplicatorToken(node string) func() (string, error) {
	return func() (string, error) {
		return a.GenerateToken(node, []string{string(RoleReplicator)})
	}
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.publicKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
