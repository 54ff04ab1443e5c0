package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atriumhq/atrium/internal/auth"
	"github.com/atriumhq/atrium/internal/store"
	"github.com/atriumhq/atrium/pkg/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v, err := auth.NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier() error = %v", err)
	}

	tok := signToken(t, jwt.MapClaims{
		"sub":   "user-123",
		"email": "u@example.com",
		"name":  "Test User",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	p, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if p.Subject != "user-123" {
		t.Errorf("Subject = %q, want %q", p.Subject, "user-123")
	}
	if p.Email != "u@example.com" {
		t.Errorf("Email = %q, want %q", p.Email, "u@example.com")
	}
}

func TestVerify_RejectsBadSignature(t *testing.T) {
	v, _ := auth.NewJWTVerifier(testSecret)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, _ := other.SignedString([]byte("wrong-secret"))

	if _, err := v.Verify(context.Background(), signed); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RejectsExpired(t *testing.T) {
	v, _ := auth.NewJWTVerifier(testSecret)

	tok := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_RequiresSubject(t *testing.T) {
	v, _ := auth.NewJWTVerifier(testSecret)

	tok := signToken(t, jwt.MapClaims{"email": "nobody@example.com"})
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestGetOrCreate_FirstUserIsAdmin(t *testing.T) {
	s := store.NewMemoryStore(t.TempDir())
	t.Cleanup(func() { s.Close() })
	prov := auth.NewProvisioner(s)
	ctx := context.Background()

	first, err := prov.GetOrCreate(ctx, &auth.Principal{Subject: "u1", Email: "first@example.com"})
	if err != nil {
		t.Fatalf("GetOrCreate(first) error = %v", err)
	}
	if first.Role != models.RoleAdmin {
		t.Errorf("first user role = %q, want %q", first.Role, models.RoleAdmin)
	}

	second, err := prov.GetOrCreate(ctx, &auth.Principal{Subject: "u2", Email: "second@example.com"})
	if err != nil {
		t.Fatalf("GetOrCreate(second) error = %v", err)
	}
	if second.Role != models.RoleStandard {
		t.Errorf("second user role = %q, want %q", second.Role, models.RoleStandard)
	}
}

func TestGetOrCreate_ReturningUserKeepsRole(t *testing.T) {
	s := store.NewMemoryStore(t.TempDir())
	t.Cleanup(func() { s.Close() })
	prov := auth.NewProvisioner(s)
	ctx := context.Background()

	if _, err := prov.GetOrCreate(ctx, &auth.Principal{Subject: "u1"}); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	// Demote, then log in again: provisioning must not re-promote.
	if _, err := s.UpdateUserRole(ctx, "u1", models.RoleStandard); err != nil {
		t.Fatalf("UpdateUserRole() error = %v", err)
	}

	again, err := prov.GetOrCreate(ctx, &auth.Principal{Subject: "u1"})
	if err != nil {
		t.Fatalf("GetOrCreate(returning) error = %v", err)
	}
	if again.Role != models.RoleStandard {
		t.Errorf("returning user role = %q, want %q", again.Role, models.RoleStandard)
	}
}
