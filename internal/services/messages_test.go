package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
)

func TestMessageService(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	media := storage.NewMemoryStore()
	svc := NewMessageService(db, media, time.Minute)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	outsider := createUser(t, db, "eve@example.com")
	roomID := promotedRoom(t, db, alice, bob)

	t.Run("empty text is rejected", func(t *testing.T) {
		if _, err := svc.Send(ctx, alice.ID, roomID, "   ", models.MessageTypeText); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
	})

	t.Run("outsiders cannot post", func(t *testing.T) {
		if _, err := svc.Send(ctx, outsider.ID, roomID, "hi", models.MessageTypeText); !errors.Is(err, ErrNotChatroomMember) {
			t.Fatalf("expected ErrNotChatroomMember, got %v", err)
		}
	})

	t.Run("text messages are listed in order", func(t *testing.T) {
		if _, err := svc.Send(ctx, alice.ID, roomID, "first", ""); err != nil {
			t.Fatalf("send: %v", err)
		}
		if _, err := svc.Send(ctx, bob.ID, roomID, "second", models.MessageTypeText); err != nil {
			t.Fatalf("send: %v", err)
		}
		msgs, total, err := svc.List(ctx, bob.ID, roomID, utils.Page{Number: 1, Limit: 20})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 2 || msgs[0].Content != "first" || msgs[1].Content != "second" {
			t.Fatalf("unexpected messages total=%d %+v", total, msgs)
		}
	})

	t.Run("media keys must belong to the chatroom", func(t *testing.T) {
		foreign := lifecycle.MediaKey(lifecycle.MediaImage, uuid.NewString(), "a.png", time.Now(), "r1")
		if _, err := svc.Send(ctx, alice.ID, roomID, foreign, models.MessageTypeImage); !errors.Is(err, ErrInvalidMediaKey) {
			t.Fatalf("expected ErrInvalidMediaKey, got %v", err)
		}
		wrongKind := lifecycle.MediaKey(lifecycle.MediaAudio, roomID.String(), "a.webm", time.Now(), "r1")
		if _, err := svc.Send(ctx, alice.ID, roomID, wrongKind, models.MessageTypeImage); !errors.Is(err, ErrInvalidMediaKey) {
			t.Fatalf("expected kind mismatch to be rejected, got %v", err)
		}
	})

	t.Run("upload then persist the key then resolve a url", func(t *testing.T) {
		key := lifecycle.MediaKey(lifecycle.MediaImage, roomID.String(), "photo.jpg", time.Now(), "r2")
		if err := svc.UploadMedia(ctx, alice.ID, roomID, key, strings.NewReader("jpeg"), 4, "image/jpeg"); err != nil {
			t.Fatalf("upload: %v", err)
		}
		msg, err := svc.Send(ctx, alice.ID, roomID, key, models.MessageTypeImage)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if msg.Content != key {
			t.Fatalf("expected the key to be stored, got %q", msg.Content)
		}

		url, err := svc.MediaURL(ctx, bob.ID, key)
		if err != nil || !strings.HasPrefix(url, "memory://") {
			t.Fatalf("expected signed url, got %q err=%v", url, err)
		}
		if _, err := svc.MediaURL(ctx, outsider.ID, key); !errors.Is(err, ErrNotChatroomMember) {
			t.Fatalf("expected outsiders to be refused, got %v", err)
		}
	})

	t.Run("upload rejects keys for another chatroom", func(t *testing.T) {
		key := lifecycle.MediaKey(lifecycle.MediaImage, uuid.NewString(), "photo.jpg", time.Now(), "r3")
		err := svc.UploadMedia(ctx, alice.ID, roomID, key, strings.NewReader("x"), 1, "image/jpeg")
		if !errors.Is(err, ErrInvalidMediaKey) {
			t.Fatalf("expected ErrInvalidMediaKey, got %v", err)
		}
	})
}
