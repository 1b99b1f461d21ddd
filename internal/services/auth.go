package services

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jacobtartabini/joincircl-sub004/internal/config"
	"github.com/jacobtartabini/joincircl-sub004/pkg/errors"
)

// AuthService resolves the authenticated user from bearer tokens issued by
// the main Circl auth flow.
type AuthService struct {
	config *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{config: cfg}
}

func (s *AuthService) ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.config.JWTPublicKey, nil
	})
}

// Identity is the caller resolved from a bearer token. Email is optional;
// when present it labels the otpauth enrollment URI.
type Identity struct {
	UserID string
	Email  string
}

func (s *AuthService) ResolveIdentity(tokenString string) (*Identity, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil || !token.Valid {
		return nil, errors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Unauthorized("invalid token claims")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, errors.Unauthorized("invalid user ID in token")
	}

	email, _ := claims["email"].(string)
	return &Identity{UserID: userID, Email: email}, nil
}
