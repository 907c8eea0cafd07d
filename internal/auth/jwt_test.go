package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vendfleet-backend/internal/config"
	"vendfleet-backend/internal/models"
)

func testManager(secret, issuer string) *JWTManager {
	cfg := &config.Config{}
	cfg.JWT.Secret = secret
	cfg.JWT.Issuer = issuer
	cfg.JWT.ExpirationHours = 1
	return NewJWTManager(cfg)
}

func TestGenerateAndValidate(t *testing.T) {
	m := testManager("s3cret", "vendfleet")
	actor := models.Actor{OrganizationID: "org-1", UserID: "u-1", Role: "approver"}

	token, err := m.GenerateToken(actor)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Actor() != actor {
		t.Errorf("Expected actor %+v, got %+v", actor, claims.Actor())
	}
}

func TestValidateRejects(t *testing.T) {
	m := testManager("s3cret", "vendfleet")
	actor := models.Actor{OrganizationID: "org-1", UserID: "u-1"}

	other, _ := testManager("different", "vendfleet").GenerateToken(actor)
	if _, err := m.ValidateToken(other); err == nil {
		t.Error("Expected error for token signed with another secret")
	}

	wrongIssuer, _ := testManager("s3cret", "someone-else").GenerateToken(actor)
	if _, err := m.ValidateToken(wrongIssuer); err == nil {
		t.Error("Expected error for foreign issuer")
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "u-1", OrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vendfleet",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, _ := expired.SignedString([]byte("s3cret"))
	if _, err := m.ValidateToken(signed); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}

	noOrg := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           "u-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "vendfleet"},
	})
	signed, _ = noOrg.SignedString([]byte("s3cret"))
	if _, err := m.ValidateToken(signed); !errors.Is(err, ErrIncompleteUser) {
		t.Errorf("Expected ErrIncompleteUser, got %v", err)
	}

	if _, err := m.GenerateToken(models.Actor{UserID: "u-1"}); !errors.Is(err, ErrIncompleteUser) {
		t.Errorf("Expected ErrIncompleteUser from GenerateToken, got %v", err)
	}
}
