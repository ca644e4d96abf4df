package application_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/testfixtures"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	env := newTestEnv(t)
	auth := env.factory.NewAuthService("s3cret")
	principal := application.Principal{UserID: "teacher-7", Role: application.RoleTeacher}

	token, err := auth.IssueToken(principal)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	got, err := auth.ValidateToken(env.ctx, "  "+token+" ")
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if got != principal {
		t.Fatalf("expected %+v, got %+v", principal, got)
	}
}

func TestAuthService_ValidateTokenRejects(t *testing.T) {
	env := newTestEnv(t)
	auth := env.factory.NewAuthService("s3cret")
	token, err := auth.IssueToken(application.Principal{UserID: "student-1", Role: application.RoleStudent})
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	other := testfixtures.NewServiceFactory(testfixtures.WithClock(env.clock)).NewAuthService("different")
	if _, err := other.ValidateToken(env.ctx, token); !errors.Is(err, application.ErrInvalidToken) {
		t.Fatalf("expected signature mismatch to be rejected, got %v", err)
	}

	if _, err := auth.ValidateToken(env.ctx, ""); !errors.Is(err, application.ErrInvalidToken) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
	if _, err := auth.ValidateToken(env.ctx, "not-a-jwt"); !errors.Is(err, application.ErrInvalidToken) {
		t.Fatalf("expected garbage to be rejected, got %v", err)
	}

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, application.TokenClaims{
		Role: "janitor",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(env.clock.Now().Add(time.Hour)),
		},
	})
	signed, err := unknownRole.SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}
	if _, err := auth.ValidateToken(env.ctx, signed); !errors.Is(err, application.ErrInvalidToken) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	if _, err := auth.ValidateToken(env.ctx, token); !errors.Is(err, application.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestAuthService_IssueTokenRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	auth := env.factory.NewAuthService("s3cret")
	if _, err := auth.IssueToken(application.Principal{UserID: "x", Role: "guest"}); !errors.Is(err, application.ErrInvalidToken) {
		t.Fatalf("expected unknown role to be rejected, got %v", err)
	}
}
