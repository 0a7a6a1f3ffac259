package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvitationService struct {
	DB      *gorm.DB
	TTL     time.Duration
	CodeLen int
}

func NewInvitationService(db *gorm.DB, ttl time.Duration, codeLen int) *InvitationService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if codeLen <= 0 {
		codeLen = 8
	}
	return &InvitationService{DB: db, TTL: ttl, CodeLen: codeLen}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate reports whether code exists, is unused and has not expired.
func (s *InvitationService) Validate(ctx context.Context, code string) (bool, error) {
	code = normalizeCode(code)
	if code == "" {
		return false, nil
	}

	var inv models.Invitation
	err := s.DB.WithContext(ctx).Where("code = ?", code).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inv.Usable(time.Now().UTC()), nil
}

func (s *InvitationService) Create(ctx context.Context, invitedBy uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateInviteCode(s.CodeLen)
		if err != nil {
			return nil, err
		}
		inv = models.Invitation{
			Code:        code,
			InvitedByID: invitedBy,
			ExpiresAt:   time.Now().UTC().Add(s.TTL),
		}

		var clash int64
		if err := s.DB.WithContext(ctx).Model(&models.Invitation{}).Where("code = ?", code).Count(&clash).Error; err != nil {
			return nil, err
		}
		if clash > 0 {
			continue
		}
		if err := s.DB.WithContext(ctx).Create(&inv).Error; err != nil {
			return nil, err
		}
		return &inv, nil
	}
	return nil, errors.New("could not allocate a unique invitation code")
}

func (s *InvitationService) ListIssued(ctx context.Context, invitedBy uuid.UUID) ([]models.Invitation, error) {
	var out []models.Invitation
	err := s.DB.WithContext(ctx).Where("invited_by_id = ?", invitedBy).Order("created_at DESC").Find(&out).Error
	return out, err
}

// Consume marks code as used by userID inside tx. A code can only be consumed once.
func (s *InvitationService) Consume(tx *gorm.DB, code string, userID uuid.UUID) error {
	code = normalizeCode(code)

	var inv models.Invitation
	if err := tx.Where("code = ?", code).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidInvitation
		}
		return err
	}

	now := time.Now().UTC()
	if !inv.Usable(now) {
		return ErrInvalidInvitation
	}

	result := tx.Model(&models.Invitation{}).
		Where("id = ? AND used_by_id IS NULL", inv.ID).
		Updates(map[string]interface{}{"used_by_id": userID, "used_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidInvitation
	}
	return nil
}
