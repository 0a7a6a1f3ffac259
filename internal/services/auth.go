package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is what every successful sign-in returns to the client.
type Session struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         *models.User `json:"user"`
}

type SignUpInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	InvitationCode string
}

type UpdateUserInput struct {
	Password  *string
	FirstName *string
	LastName  *string
}

type AuthService struct {
	DB          *gorm.DB
	Invitations *InvitationService
	OAuth       *OAuthProviderService
	RefreshTTL  time.Duration
}

func NewAuthService(db *gorm.DB, invitations *InvitationService, oauth *OAuthProviderService, refreshTTL time.Duration) *AuthService {
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &AuthService{DB: db, Invitations: invitations, OAuth: oauth, RefreshTTL: refreshTTL}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) UserExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	return count > 0, err
}

// SignUp creates the account. A supplied invitation code is consumed in the same
// transaction, so an invalid code leaves no user behind.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         models.UserRoleUser,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrEmailTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if strings.TrimSpace(in.InvitationCode) != "" {
			return s.Invitations.Consume(tx, in.InvitationCode, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issueSession(ctx, &user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" || !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(ctx, &user)
}

// Refresh rotates the refresh token: the presented one is revoked and a new pair issued.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*Session, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rt models.RefreshToken
		if err := tx.Where("token_hash = ?", utils.HashToken(raw)).First(&rt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefreshToken
			}
			return err
		}
		now := time.Now().UTC()
		if rt.RevokedAt != nil || now.After(rt.ExpiresAt) {
			return ErrInvalidRefreshToken
		}

		result := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", rt.ID).
			Updates(map[string]interface{}{"revoked_at": now, "last_used_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvalidRefreshToken
		}

		if err := tx.First(&user, "id = ?", rt.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidRefreshToken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, &user)
}

func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", utils.HashToken(raw)).
		Update("revoked_at", time.Now().UTC()).Error
}

func (s *AuthService) UpdateUser(ctx context.Context, userID uuid.UUID, in UpdateUserInput) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.Password != nil {
		hash, err := utils.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = hash
	}
	if in.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*in.LastName)
	}

	if len(updates) > 0 {
		result := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	var user models.User
	if err := s.DB.WithContext(ctx).Preload("Dormitory").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RequestPasswordReset returns a reset token for a known email and "" for an unknown one.
// Callers must answer both cases identically.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return utils.GenerateResetToken(user.ID, user.Email)
}

// ResetPassword sets a new password using a single-use reset token and revokes every
// outstanding refresh token of the account.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := utils.ValidateResetToken(token)
	if err != nil {
		return ErrInvalidResetToken
	}
	if !utils.ConsumeResetToken(claims.ID) {
		return ErrInvalidResetToken
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).Where("id = ?", claims.UserID).Update("password_hash", hash)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvalidResetToken
		}
		return tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", claims.UserID).
			Update("revoked_at", time.Now().UTC()).Error
	})
}

// BeginOAuth checks the invitation before building the provider redirect.
func (s *AuthService) BeginOAuth(ctx context.Context, provider, invitationCode string) (string, error) {
	invitationCode = normalizeCode(invitationCode)
	if invitationCode != "" {
		ok, err := s.Invitations.Validate(ctx, invitationCode)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrInvalidInvitation
		}
	}
	return s.OAuth.AuthURL(provider, invitationCode)
}

func (s *AuthService) CompleteOAuth(ctx context.Context, provider, code, sealedState string) (*Session, error) {
	state, err := s.OAuth.OpenState(sealedState, provider)
	if err != nil {
		return nil, err
	}
	token, err := s.OAuth.ExchangeCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	profile, err := s.OAuth.GetUserInfo(ctx, provider, token)
	if err != nil {
		return nil, err
	}
	user, err := s.FindOrCreateOAuthUser(ctx, profile, state.InvitationCode)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, user)
}

// FindOrCreateOAuthUser links a provider identity to an account by email. Only a newly
// created account consumes the invitation code.
func (s *AuthService) FindOrCreateOAuthUser(ctx context.Context, profile *OAuthProfile, invitationCode string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", normalizeEmail(profile.Email)).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		user = models.User{
			Email:     normalizeEmail(profile.Email),
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
			Image:     profile.AvatarURL,
			Role:      models.UserRoleUser,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		logger.InfoWithUser(user.ID.String(), "oauth_user_created", map[string]interface{}{
			"provider": profile.Provider,
		})
		if invitationCode != "" {
			return s.Invitations.Consume(tx, invitationCode, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*Session, error) {
	access, expiresAt, err := utils.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	raw, err := utils.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rt := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(s.RefreshTTL),
	}
	if err := s.DB.WithContext(ctx).Create(&rt).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}
