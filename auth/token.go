package auth

import (
	"dm-lab/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "dm-lab"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and checks HS256 tokens with a shared secret.
type TokenService struct {
	secret   []byte
	duration time.Duration
}

func NewTokenService(secret string, duration time.Duration) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenService{secret: []byte(secret), duration: duration}, nil
}

// GenerateToken creates a signed JWT for a specific user.
func (s *TokenService) GenerateToken(userID string, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
// Every failure is an authentication error.
func (s *TokenService) ValidateToken(tokenString string) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, errors.Authentication("token is missing")
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, errors.Authentication("invalid or expired token")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.Authentication("invalid token claims")
	}
	return claims, nil
}

// Authenticate resolves the caller of a connection. When the client also
// announces a user id it has to match the token.
func (s *TokenService) Authenticate(tokenString, claimedUserID string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	if claimedUserID != "" && claimedUserID != claims.UserID {
		return "", errors.Authentication("token does not belong to user %s", claimedUserID)
	}
	return claims.UserID, nil
}
