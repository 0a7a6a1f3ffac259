package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
)

func newTestAuth(t *testing.T) (*AuthService, *InvitationService) {
	t.Helper()
	db := setupTestDB(t)
	invitations := NewInvitationService(db, time.Hour, 8)
	oauth := NewOAuthProviderService(oauthTestConfig())
	return NewAuthService(db, invitations, oauth, time.Hour), invitations
}

func TestSignUpConsumesInvitation(t *testing.T) {
	ctx := context.Background()
	auth, invitations := newTestAuth(t)
	inviter := createUser(t, auth.DB, "inviter@example.com")
	inv, err := invitations.Create(ctx, inviter.ID)
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	session, err := auth.SignUp(ctx, SignUpInput{
		Email:          "  New@Example.com ",
		Password:       "password123",
		FirstName:      "New",
		InvitationCode: inv.Code,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if session.User.Email != "new@example.com" || session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("unexpected session %+v", session)
	}

	claims, err := utils.ParseAccessToken(session.AccessToken)
	if err != nil || claims.UserID != session.User.ID {
		t.Fatalf("access token does not identify the user: %v", err)
	}

	var stored models.Invitation
	auth.DB.First(&stored, "id = ?", inv.ID)
	if stored.UsedByID == nil || *stored.UsedByID != session.User.ID {
		t.Fatal("expected invitation to be consumed by the new user")
	}

	exists, _ := auth.UserExists(ctx, "NEW@example.com")
	if !exists {
		t.Fatal("expected UserExists to match case-insensitively")
	}

	if _, err := auth.SignUp(ctx, SignUpInput{Email: "new@example.com", Password: "password123"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpWithInvalidInvitationLeavesNoUser(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth(t)

	_, err := auth.SignUp(ctx, SignUpInput{Email: "ghost@example.com", Password: "password123", InvitationCode: "BOGUS123"})
	if !errors.Is(err, ErrInvalidInvitation) {
		t.Fatalf("expected ErrInvalidInvitation, got %v", err)
	}
	exists, _ := auth.UserExists(ctx, "ghost@example.com")
	if exists {
		t.Fatal("user must not be created when the invitation is rejected")
	}
}

func TestLoginAndRefreshRotation(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth(t)
	createUser(t, auth.DB, "alice@example.com")

	if _, err := auth.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	session, err := auth.Login(ctx, "Alice@Example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := auth.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := auth.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}

	if err := auth.Logout(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := auth.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected logged out token to fail, got %v", err)
	}
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth(t)
	alice := createUser(t, auth.DB, "alice@example.com")

	session, err := auth.Login(ctx, alice.Email, "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	unknown, err := auth.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil || unknown != "" {
		t.Fatalf("expected empty token for unknown email, got %q err=%v", unknown, err)
	}

	token, err := auth.RequestPasswordReset(ctx, alice.Email)
	if err != nil || token == "" {
		t.Fatalf("request reset: %q err=%v", token, err)
	}
	if _, err := utils.ParseAccessToken(token); err == nil {
		t.Fatal("a reset token must not be accepted as an access token")
	}

	if err := auth.ResetPassword(ctx, token, "new-password-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := auth.ResetPassword(ctx, token, "new-password-2"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
	if err := auth.ResetPassword(ctx, "garbage", "x"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected garbage token to fail, got %v", err)
	}

	if _, err := auth.Login(ctx, alice.Email, "new-password-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := auth.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected refresh tokens to be revoked by reset, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	auth, _ := newTestAuth(t)
	alice := createUser(t, auth.DB, "alice@example.com")

	first := "  Alice "
	pw := "changed-pass"
	user, err := auth.UpdateUser(ctx, alice.ID, UpdateUserInput{FirstName: &first, Password: &pw})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.FirstName != "Alice" {
		t.Fatalf("expected trimmed first name, got %q", user.FirstName)
	}
	if _, err := auth.Login(ctx, alice.Email, pw); err != nil {
		t.Fatalf("expected new password to work: %v", err)
	}
}

func TestOAuthSignIn(t *testing.T) {
	ctx := context.Background()
	auth, invitations := newTestAuth(t)
	inviter := createUser(t, auth.DB, "inviter@example.com")

	if _, err := auth.BeginOAuth(ctx, "google", "BOGUS123"); !errors.Is(err, ErrInvalidInvitation) {
		t.Fatalf("expected ErrInvalidInvitation, got %v", err)
	}
	url, err := auth.BeginOAuth(ctx, "google", "")
	if err != nil || url == "" {
		t.Fatalf("begin oauth: %q err=%v", url, err)
	}

	inv, _ := invitations.Create(ctx, inviter.ID)
	profile := &OAuthProfile{Provider: "google", Email: "Oauth@Example.com", FirstName: "O", LastName: "Auth"}

	user, err := auth.FindOrCreateOAuthUser(ctx, profile, inv.Code)
	if err != nil {
		t.Fatalf("create oauth user: %v", err)
	}
	if user.Email != "oauth@example.com" || user.PasswordHash != "" {
		t.Fatalf("unexpected oauth user %+v", user)
	}

	// A returning user does not touch a second invitation.
	other, _ := invitations.Create(ctx, inviter.ID)
	again, err := auth.FindOrCreateOAuthUser(ctx, profile, other.Code)
	if err != nil || again.ID != user.ID {
		t.Fatalf("expected existing account, got %+v err=%v", again, err)
	}
	ok, _ := invitations.Validate(ctx, other.Code)
	if !ok {
		t.Fatal("invitation must stay unused for a returning user")
	}

	if _, err := auth.Login(ctx, user.Email, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("passwordless account must not log in with a password, got %v", err)
	}
}
