package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"gorm.io/gorm"
)

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewInvitationService(db, time.Hour, 8)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	carol := createUser(t, db, "carol@example.com")

	inv, err := svc.Create(ctx, alice.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(inv.Code) != 8 {
		t.Fatalf("expected 8 character code, got %q", inv.Code)
	}

	ok, err := svc.Validate(ctx, strings.ToLower(inv.Code))
	if err != nil || !ok {
		t.Fatalf("expected code to validate case-insensitively, ok=%v err=%v", ok, err)
	}

	consume := func(userID *models.User) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return svc.Consume(tx, inv.Code, userID.ID)
		})
	}
	if err := consume(bob); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := consume(carol); !errors.Is(err, ErrInvalidInvitation) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}

	ok, _ = svc.Validate(ctx, inv.Code)
	if ok {
		t.Fatal("used code must not validate")
	}

	issued, err := svc.ListIssued(ctx, alice.ID)
	if err != nil || len(issued) != 1 || issued[0].UsedByID == nil || *issued[0].UsedByID != bob.ID {
		t.Fatalf("unexpected issued list %+v err=%v", issued, err)
	}
}

func TestInvitationValidateRejects(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewInvitationService(db, time.Hour, 8)
	alice := createUser(t, db, "alice@example.com")

	expired := models.Invitation{Code: "EXPIRED1", InvitedByID: alice.ID, ExpiresAt: time.Now().UTC().Add(-time.Minute)}
	if err := db.Create(&expired).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, code := range []string{"", "   ", "NOPE0000", "EXPIRED1"} {
		ok, err := svc.Validate(ctx, code)
		if err != nil || ok {
			t.Errorf("expected %q to be invalid, ok=%v err=%v", code, ok, err)
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Consume(tx, "EXPIRED1", alice.ID)
	})
	if !errors.Is(err, ErrInvalidInvitation) {
		t.Fatalf("expected expired code to be rejected, got %v", err)
	}
}
