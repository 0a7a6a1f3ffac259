package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
)

func TestNotificationCreatePublishesAndPushes(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	hub := NewHub()
	sender := &fakeSender{}
	push := &PushService{DB: db, Sender: sender}
	svc := NewNotificationService(db, hub, push)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	if _, err := push.Subscribe(ctx, alice.ID, "https://push.example/a", "k", "a", ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	events, cancel := hub.Subscribe(alice.ID)
	defer cancel()
	others, cancelOthers := hub.Subscribe(bob.ID)
	defer cancelOthers()

	n := &models.Notification{UserID: alice.ID, Title: "Pool filled", Message: "go", Type: "pool_filled"}
	if err := svc.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != "insert" || ev.Table != "notifications" {
			t.Fatalf("unexpected event %+v", ev)
		}
		var record models.Notification
		if err := json.Unmarshal(ev.Record, &record); err != nil || record.ID != n.ID {
			t.Fatalf("unexpected record %s err=%v", string(ev.Record), err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a realtime insert")
	}

	select {
	case ev := <-others:
		t.Fatalf("bob must not receive alice's insert: %+v", ev)
	default:
	}

	waitFor(t, "push delivery", func() bool { return sender.count() == 1 })
}

func TestNotificationListAndRead(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := NewNotificationService(db, nil, nil)
	alice := createUser(t, db, "alice@example.com")
	bob := createUser(t, db, "bob@example.com")

	var ids []uuid.UUID
	for _, title := range []string{"one", "two", "three"} {
		n := &models.Notification{UserID: alice.ID, Title: title, Message: title, Type: "info"}
		if err := svc.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, n.ID)
		time.Sleep(2 * time.Millisecond)
	}

	unread, err := svc.Unread(ctx, alice.ID)
	if err != nil || len(unread) != 3 || unread[0].Title != "one" {
		t.Fatalf("expected unread oldest first, got %+v err=%v", unread, err)
	}

	list, total, err := svc.List(ctx, alice.ID, false, utils.Page{Number: 1, Limit: 2})
	if err != nil || total != 3 || len(list) != 2 || list[0].Title != "three" {
		t.Fatalf("expected newest first page, got total=%d %+v err=%v", total, list, err)
	}

	if err := svc.MarkRead(ctx, bob.ID, ids[0]); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for other user, got %v", err)
	}
	if err := svc.MarkRead(ctx, alice.ID, ids[0]); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, alice.ID, ids[0]); err != nil {
		t.Fatalf("marking twice should be a no-op: %v", err)
	}

	_, total, _ = svc.List(ctx, alice.ID, true, utils.Page{Number: 1, Limit: 20})
	if total != 2 {
		t.Fatalf("expected 2 unread, got %d", total)
	}

	n, err := svc.MarkAllRead(ctx, alice.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 marked, got %d err=%v", n, err)
	}
}
