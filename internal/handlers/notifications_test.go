package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
)

func TestNotificationEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "notes@example.com", "password123", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "other@example.com", "password123", models.UserRoleUser)

	svc := env.handlers.Notifications.Notifications
	ctx := context.Background()
	var created []models.Notification
	for _, title := range []string{"one", "two", "three"} {
		n := models.Notification{UserID: user.ID, Title: title, Message: title, Type: "test"}
		if err := svc.Create(ctx, &n); err != nil {
			t.Fatalf("failed creating notification: %v", err)
		}
		created = append(created, n)
		time.Sleep(2 * time.Millisecond)
	}

	resp := performRequest(t, env.app, http.MethodGet, "/api/notifications", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	items, _ := decodeJSONMap(t, resp)["data"].([]any)
	if len(items) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(items))
	}
	newest, _ := items[0].(map[string]any)
	if newest["title"] != "three" {
		t.Fatalf("expected newest first, got %v", newest["title"])
	}

	resp = performRequest(t, env.app, http.MethodPut, "/api/notifications/"+created[0].ID.String()+"/read", nil, authHeaders(otherToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.app, http.MethodPut, "/api/notifications/"+created[0].ID.String()+"/read", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/notifications?unread=true", nil, authHeaders(token))
	body := decodeJSONMap(t, resp)
	pagination, _ := body["pagination"].(map[string]any)
	if pagination["total"] != float64(2) {
		t.Fatalf("expected 2 unread, got %v", pagination["total"])
	}

	resp = performRequest(t, env.app, http.MethodPut, "/api/notifications/read-all", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	if updated, _ := dataMap(t, decodeJSONMap(t, resp))["updated"].(float64); updated != 2 {
		t.Fatalf("expected 2 marked read, got %v", updated)
	}
}

func TestNotificationStream(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "stream@example.com", "password123", models.UserRoleUser)
	other, _ := createTestUser(t, env.db, "quiet@example.com", "password123", models.UserRoleUser)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed listening: %v", err)
	}
	go func() {
		_ = env.app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = env.app.ShutdownWithTimeout(2 * time.Second)
	})

	base := "http://" + ln.Addr().String()

	unauth, err := http.Get(base + "/api/realtime/notifications")
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	unauth.Body.Close()
	if unauth.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", unauth.StatusCode)
	}

	resp, err := http.Get(base + "/api/realtime/notifications?access_token=" + token)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitFor(t, "stream subscription", func() bool {
		return env.hub.SubscriberCount(user.ID) == 1
	})

	svc := env.handlers.Notifications.Notifications
	ctx := context.Background()
	if err := svc.Create(ctx, &models.Notification{UserID: other.ID, Title: "not yours", Message: "x", Type: "test"}); err != nil {
		t.Fatalf("failed creating notification: %v", err)
	}
	mine := models.Notification{UserID: user.ID, Title: "Pool filled", Message: "go chat", Type: "pool_filled"}
	if err := svc.Create(ctx, &mine); err != nil {
		t.Fatalf("failed creating notification: %v", err)
	}

	events := make(chan [2]string, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var event string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && event != "":
				events <- [2]string{event, strings.TrimPrefix(line, "data: ")}
				return
			}
		}
	}()

	select {
	case got := <-events:
		if got[0] != "insert" {
			t.Fatalf("expected insert event, got %q", got[0])
		}
		var record models.Notification
		if err := json.Unmarshal([]byte(got[1]), &record); err != nil {
			t.Fatalf("failed decoding event data %q: %v", got[1], err)
		}
		if record.ID != mine.ID || record.Title != "Pool filled" {
			t.Fatalf("expected my notification, got %+v", record)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the insert event")
	}

	resp.Body.Close()
	waitFor(t, "stream teardown", func() bool {
		return env.hub.SubscriberCount(user.ID) == 0
	})
}
