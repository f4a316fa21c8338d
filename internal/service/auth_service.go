package service

import (
	"time"

	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/config"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// AuthService exchanges a configured integration API key for a short-lived
// service token.
type AuthService struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// IssueToken validates the presented key and returns a signed JWT.
func (s *AuthService) IssueToken(keyID, secret string) (string, time.Time, error) {
	if s.cfg.APIKeyHash == "" {
		return "", time.Time{}, apperrors.NewConfigurationError("AUTH_API_KEY_HASH not configured", nil)
	}
	if keyID != s.cfg.APIKeyID {
		return "", time.Time{}, apperrors.NewUnauthorized("unknown api key")
	}
	if err := auth.CompareAPIKey(s.cfg.APIKeyHash, secret); err != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid api key")
	}
	role, ok := auth.ParseRole(s.cfg.APIKeyRole)
	if !ok {
		return "", time.Time{}, apperrors.NewConfigurationError("invalid AUTH_API_KEY_ROLE", map[string]any{
			"role": s.cfg.APIKeyRole,
		})
	}
	return issue(s.tokens, keyID, role)
}

func issue(tokens *auth.TokenManager, keyID string, role auth.Role) (string, time.Time, error) {
	token, expiresAt, err := tokens.GenerateToken(keyID, role)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, expiresAt, nil
}
