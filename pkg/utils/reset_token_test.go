package utils

import (
	"testing"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/google/uuid"
)

func TestGenerateResetToken(t *testing.T) {
	configureJWTForTest(t, "test-secret", 1)

	userID := uuid.New()
	token, err := GenerateResetToken(userID, "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate reset token: %v", err)
	}

	claims, err := ValidateResetToken(token)
	if err != nil {
		t.Fatalf("failed to validate reset token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected userID %s, got %s", userID, claims.UserID)
	}
	if claims.Email != "test@example.com" {
		t.Fatalf("expected email test@example.com, got %s", claims.Email)
	}
	if claims.Type != resetTokenType {
		t.Fatalf("expected token type %s, got %s", resetTokenType, claims.Type)
	}
}

func TestResetAndAccessTokensAreNotInterchangeable(t *testing.T) {
	configureJWTForTest(t, "test-secret", 1)

	user := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Email: "a@example.com", Role: models.UserRoleUser}
	access, _, err := IssueAccessToken(user)
	if err != nil {
		t.Fatalf("failed generating access token: %v", err)
	}
	if _, err := ValidateResetToken(access); err == nil {
		t.Fatal("expected access token to be rejected as reset token")
	}

	reset, err := GenerateResetToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("failed generating reset token: %v", err)
	}
	if _, err := ParseAccessToken(reset); err == nil {
		t.Fatal("expected reset token to be rejected as access token")
	}
}

func TestConsumeResetToken(t *testing.T) {
	jti := uuid.New().String()
	if !ConsumeResetToken(jti) {
		t.Fatal("expected first consumption to succeed")
	}
	if ConsumeResetToken(jti) {
		t.Fatal("expected second consumption to fail")
	}
}
