package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for bearer tokens that fail verification.
	ErrInvalidToken = errors.New("application: invalid token")
	// ErrTokenExpired is returned for bearer tokens past their expiry.
	ErrTokenExpired = errors.New("application: token expired")
)

// TokenClaims are the claims carried by bearer tokens. Accounts live in an
// external service; it signs tokens with the shared secret.
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService verifies bearer tokens and resolves them to principals.
type AuthService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewAuthService constructs an AuthService for HS256 tokens signed with secret.
func NewAuthService(secret []byte, issuer string, ttl time.Duration, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(secret, issuer, ttl, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(secret []byte, issuer string, ttl time.Duration, now func() time.Time, logger *slog.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{secret: secret, issuer: issuer, ttl: ttl, now: now, logger: defaultLogger(logger)}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// IssueToken signs a token for the principal. Used by operators and tests;
// end-user tokens come from the account service.
func (s *AuthService) IssueToken(principal Principal) (string, error) {
	if s == nil {
		return "", fmt.Errorf("AuthService is nil")
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("token secret not configured")
	}
	if principal.UserID == "" || !validRole(principal.Role) {
		return "", ErrInvalidToken
	}
	now := s.now()
	claims := TokenClaims{
		Role: string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies a bearer token and returns its principal.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateToken", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "token validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID, "role", string(principal.Role)).DebugContext(ctx, "token validated")
	}()

	if trimmed == "" || len(s.secret) == 0 {
		err = ErrInvalidToken
		return
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	claims := &TokenClaims{}
	_, perr := jwt.ParseWithClaims(trimmed, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, options...)
	if perr != nil {
		if errors.Is(perr, jwt.ErrTokenExpired) {
			err = ErrTokenExpired
			return
		}
		err = fmt.Errorf("%w: %v", ErrInvalidToken, perr)
		return
	}

	role := Role(claims.Role)
	if claims.Subject == "" || !validRole(role) {
		err = ErrInvalidToken
		return
	}
	principal = Principal{UserID: claims.Subject, Role: role}
	return
}

func validRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}
