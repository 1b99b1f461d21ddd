package config

import (
	"crypto/rsa"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Config struct {
	Port          string
	RedisAddr     string
	RedisPassword string

	// JWTPublicKey verifies bearer tokens issued by the main Circl auth
	// flow. This service never signs tokens itself.
	JWTPublicKey *rsa.PublicKey

	TOTPIssuer      string
	BackupCodeCount int

	CodeMaxFailures    int
	CodeLockoutSeconds int

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		TOTPIssuer:         getEnv("TOTP_ISSUER", "Circl"),
		BackupCodeCount:    8,
		CodeMaxFailures:    5,
		CodeLockoutSeconds: 300,
		ShutdownTimeout:    10 * time.Second,
	}

	publicKeyPath := getEnv("JWT_PUBLIC_KEY_PATH", "./keys/jwt_public.pem")

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}

	cfg.JWTPublicKey, err = jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
