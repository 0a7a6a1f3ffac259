package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
)

func TestEventServiceTrackAsync(t *testing.T) {
	db := setupTestDB(t)
	svc := NewEventService(db, nil, nil, 10)
	alice := createUser(t, db, "alice@example.com")

	svc.TrackAsync(EventEntry{
		UserID:    &alice.ID,
		EventType: EventUserSignedIn,
		Metadata:  map[string]interface{}{"method": "password"},
		IPAddress: "127.0.0.1",
	})
	svc.Close()

	var events []models.Event
	db.Find(&events)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != EventUserSignedIn || events[0].Metadata["method"] != "password" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestEventServiceNotifications(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	notifications := NewNotificationService(db, NewHub(), nil)
	svc := NewEventService(db, nil, notifications, 10)
	defer svc.Close()

	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")
	carol := createUser(t, db, "carol@example.com")
	roomID := promotedRoom(t, db, alice, bob, carol)

	count := func(userID interface{}, kind string) int64 {
		var n int64
		db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", userID, kind).Count(&n)
		return n
	}

	t.Run("pool filled notifies every member", func(t *testing.T) {
		err := svc.Record(ctx, &models.Event{
			UserID:     &carol.ID,
			EventType:  EventPoolFilled,
			ChatroomID: &roomID,
			Metadata:   map[string]interface{}{"shop_name": "Migros"},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		for _, u := range []*models.User{alice, bob, carol} {
			if count(u.ID, "pool_filled") != 1 {
				t.Fatalf("expected pool_filled notification for %s", u.Email)
			}
		}
	})

	t.Run("ordered skips the actor", func(t *testing.T) {
		if err := svc.Record(ctx, &models.Event{UserID: &alice.ID, EventType: EventChatroomOrdered, ChatroomID: &roomID}); err != nil {
			t.Fatalf("record: %v", err)
		}
		if count(alice.ID, "order_placed") != 0 {
			t.Fatal("actor must not be notified")
		}
		if count(bob.ID, "order_placed") != 1 || count(carol.ID, "order_placed") != 1 {
			t.Fatal("expected other members to be notified")
		}
	})

	t.Run("member removal notifies only the target", func(t *testing.T) {
		err := svc.Record(ctx, &models.Event{
			UserID:     &alice.ID,
			EventType:  EventChatroomMemberGone,
			ChatroomID: &roomID,
			Metadata:   map[string]interface{}{"target_user_id": carol.ID.String()},
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if count(carol.ID, "member_removed") != 1 || count(bob.ID, "member_removed") != 0 {
			t.Fatal("expected only carol to be notified")
		}
	})

	t.Run("untracked events produce no notifications", func(t *testing.T) {
		before := int64(0)
		db.Model(&models.Notification{}).Count(&before)
		if err := svc.Record(ctx, &models.Event{UserID: &alice.ID, EventType: "page_view", ChatroomID: &roomID}); err != nil {
			t.Fatalf("record: %v", err)
		}
		after := int64(0)
		db.Model(&models.Notification{}).Count(&after)
		if before != after {
			t.Fatalf("expected no new notifications, %d -> %d", before, after)
		}
	})
}

func TestEventServiceExport(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	bucket := storage.NewMemoryStore()
	svc := NewEventService(db, bucket, nil, 10)
	defer svc.Close()

	for _, kind := range []string{"a", "b", "c"} {
		if err := svc.Record(ctx, &models.Event{EventType: kind}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := svc.Export(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 exported, got %d err=%v", n, err)
	}
	keys := bucket.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "events/") || !strings.HasSuffix(keys[0], ".ndjson") {
		t.Fatalf("unexpected export keys %v", keys)
	}

	rc, _, err := bucket.Open(ctx, keys[0])
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if lines := strings.Count(string(raw), "\n"); lines != 3 {
		t.Fatalf("expected 3 NDJSON lines, got %d", lines)
	}

	n, err = svc.Export(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing new to export, got %d err=%v", n, err)
	}

	var cursor models.EventExportCursor
	db.First(&cursor)
	if cursor.ExportedCount != 3 {
		t.Fatalf("expected cursor count 3, got %d", cursor.ExportedCount)
	}
}
