package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"nestmarket/internal/domain"
)

func TestJWTIssueAndParse(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	account := domain.Account{ID: "acc-1", Email: "a@x.com", Role: domain.RoleVendor}

	token, err := svc.Issue(account)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != account.ID || claims.Email != account.Email || claims.Role != account.Role {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Subject != account.ID {
		t.Fatalf("expected subject %s, got %s", account.ID, claims.Subject)
	}
}

func TestJWTExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Millisecond)
	token, err := svc.Issue(domain.Account{ID: "acc-1", Email: "a@x.com", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := svc.ParseToken(token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	issuer := NewJWTService("secret-a", time.Hour)
	verifier := NewJWTService("secret-b", time.Hour)

	token, err := issuer.Issue(domain.Account{ID: "acc-1", Email: "a@x.com", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.ParseToken(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}

func TestJWTGarbageToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := svc.ParseToken(token); !errors.Is(err, ErrJWTInvalid) {
			t.Fatalf("token %q: expected ErrJWTInvalid, got %v", token, err)
		}
	}
}

func TestJWTForeignIssuerRejected(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	now := time.Now().UTC()
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "acc-1",
		Email:  "a@x.com",
		Role:   domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "acc-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	token, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ParseToken(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for foreign issuer, got %v", err)
	}
}

func TestJWTSubjectMismatchRejected(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	now := time.Now().UTC()
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "acc-1",
		Email:  "a@x.com",
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "nestmarket",
			Subject:   "acc-2",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	token, err := forged.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := svc.ParseToken(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for subject mismatch, got %v", err)
	}
}
