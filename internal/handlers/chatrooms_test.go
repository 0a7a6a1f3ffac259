package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
)

type chatFixture struct {
	env        *testEnv
	chatroomID string
	admin      *models.User
	adminToken string
	member     *models.User
	memberTok  string
	outsider   string
}

func setupChatroom(t *testing.T) *chatFixture {
	t.Helper()

	env := setupTestEnv(t)
	shop := createTestShop(t, env.db, "Lidl", 40)
	admin, adminToken := createTestUser(t, env.db, "admin@example.com", "password123", models.UserRoleUser)
	member, memberToken := createTestUser(t, env.db, "member@example.com", "password123", models.UserRoleUser)
	_, outsiderToken := createTestUser(t, env.db, "outsider@example.com", "password123", models.UserRoleUser)

	createBasket(t, env, adminToken, shop, 15)
	promoted := createBasket(t, env, memberToken, shop, 30)
	chatroomID, _ := promoted["chatroom_id"].(string)
	if chatroomID == "" {
		t.Fatal("expected a chatroom")
	}

	return &chatFixture{
		env:        env,
		chatroomID: chatroomID,
		admin:      admin,
		adminToken: adminToken,
		member:     member,
		memberTok:  memberToken,
		outsider:   outsiderToken,
	}
}

func TestGetChatroomMembersOnly(t *testing.T) {
	f := setupChatroom(t)

	resp := performRequest(t, f.env.app, http.MethodGet, "/api/chatrooms/"+f.chatroomID, nil, authHeaders(f.outsider))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "not a member of this chatroom")

	resp = performRequest(t, f.env.app, http.MethodGet, "/api/chatrooms/not-a-uuid", nil, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performRequest(t, f.env.app, http.MethodGet, "/api/chatrooms/"+f.chatroomID, nil, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))
	members, _ := data["members"].([]any)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	for _, raw := range members {
		m, _ := raw.(map[string]any)
		user, _ := m["user"].(map[string]any)
		isAdmin, _ := m["isAdmin"].(bool)
		switch user["email"] {
		case "admin@example.com":
			if !isAdmin || m["status"] != "15 CHF order" {
				t.Fatalf("unexpected admin roster line %+v", m)
			}
		case "member@example.com":
			if isAdmin || m["status"] != "30 CHF order" {
				t.Fatalf("unexpected member roster line %+v", m)
			}
		default:
			t.Fatalf("unexpected member %+v", user)
		}
	}
}

func TestChatroomStateTransitions(t *testing.T) {
	f := setupChatroom(t)
	path := "/api/chatrooms/" + f.chatroomID + "/state"

	resp := performJSONRequest(t, f.env.app, http.MethodPut, path, map[string]any{"state": "ordered"}, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "only the chatroom admin can do this")

	steps := []struct {
		state  string
		status int
		stored models.ChatroomState
	}{
		{"bogus", http.StatusConflict, models.ChatroomStateWaiting},
		{"resolved", http.StatusConflict, models.ChatroomStateWaiting},
		{"ordered", http.StatusOK, models.ChatroomStateOrdered},
		{"waiting", http.StatusConflict, models.ChatroomStateOrdered},
		{"delivered", http.StatusOK, models.ChatroomStateResolved},
		{"ordered", http.StatusConflict, models.ChatroomStateResolved},
	}
	for _, step := range steps {
		resp := performJSONRequest(t, f.env.app, http.MethodPut, path, map[string]any{"state": step.state}, authHeaders(f.adminToken))
		assertStatus(t, resp, step.status)

		var room models.Chatroom
		f.env.db.First(&room, "id = ?", f.chatroomID)
		if room.State != step.stored {
			t.Fatalf("after %q expected state %s, got %s", step.state, step.stored, room.State)
		}
	}

	memberID := f.member.ID
	waitFor(t, "order notifications", func() bool {
		var count int64
		f.env.db.Model(&models.Notification{}).
			Where("user_id = ? AND type IN ?", memberID, []string{"order_placed", "order_delivered"}).
			Count(&count)
		return count == 2
	})
}

func TestChatroomBasketsStatus(t *testing.T) {
	f := setupChatroom(t)
	path := "/api/chatrooms/" + f.chatroomID + "/baskets"

	resp := performJSONRequest(t, f.env.app, http.MethodPut, path, map[string]any{"status": "in_pool"}, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, f.env.app, http.MethodPut, path, map[string]any{"status": "resolved"}, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, f.env.app, http.MethodPut, path, map[string]any{"status": "resolved"}, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusOK)
	if updated, _ := dataMap(t, decodeJSONMap(t, resp))["updated"].(float64); updated != 2 {
		t.Fatalf("expected 2 baskets updated, got %v", updated)
	}
}

func TestChatroomAdminAndMembers(t *testing.T) {
	f := setupChatroom(t)
	base := "/api/chatrooms/" + f.chatroomID

	resp := performRequest(t, f.env.app, http.MethodDelete, base+"/members/"+f.admin.ID.String(), nil, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, f.env.app, http.MethodPut, base+"/admin", map[string]any{"userID": "7b8c1f0e-0000-4000-8000-000000000009"}, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "target user is not an active member")

	resp = performJSONRequest(t, f.env.app, http.MethodPut, base+"/admin", map[string]any{"userID": f.member.ID.String()}, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, f.env.app, http.MethodDelete, base+"/members/"+f.member.ID.String(), nil, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, f.env.app, http.MethodDelete, base+"/members/"+f.admin.ID.String(), nil, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusOK)

	var m models.ChatMembership
	f.env.db.Where("chatroom_id = ? AND user_id = ?", f.chatroomID, f.admin.ID).First(&m)
	if m.LeftAt == nil {
		t.Fatal("expected removed member to have left_at set")
	}

	resp = performRequest(t, f.env.app, http.MethodGet, base, nil, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusForbidden)

	adminID := f.admin.ID
	waitFor(t, "member_removed notification", func() bool {
		var count int64
		f.env.db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", adminID, "member_removed").Count(&count)
		return count == 1
	})
}

func TestChatroomMessages(t *testing.T) {
	f := setupChatroom(t)
	path := "/api/chatrooms/" + f.chatroomID + "/messages"

	resp := performJSONRequest(t, f.env.app, http.MethodPost, path, map[string]any{"content": "   "}, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "message content is required")

	resp = performJSONRequest(t, f.env.app, http.MethodPost, path, map[string]any{"content": "hi"}, authHeaders(f.outsider))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, f.env.app, http.MethodPost, path, map[string]any{
		"content": "image/" + f.chatroomID + "x_1_abc_photo.png",
		"type":    "image",
	}, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusBadRequest)

	for _, text := range []string{"first", "second", "third"} {
		resp := performJSONRequest(t, f.env.app, http.MethodPost, path, map[string]any{"content": text}, authHeaders(f.adminToken))
		assertStatus(t, resp, http.StatusCreated)
	}

	resp = performRequest(t, f.env.app, http.MethodGet, path+"?page=1&limit=2", nil, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	messages, _ := body["data"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages on the first page, got %d", len(messages))
	}
	firstMsg, _ := messages[0].(map[string]any)
	if firstMsg["content"] != "first" {
		t.Fatalf("expected oldest message first, got %v", firstMsg["content"])
	}
	pagination, _ := body["pagination"].(map[string]any)
	if pagination["total"] != float64(3) || pagination["totalPages"] != float64(2) {
		t.Fatalf("unexpected pagination %+v", pagination)
	}
}

func TestChatroomMediaUploadAndResolve(t *testing.T) {
	f := setupChatroom(t)
	key := "image/" + f.chatroomID + "_1700000000000_ab12_photo.png"
	uploadPath := "/api/chatrooms/" + f.chatroomID + "/media"

	resp := performMultipartRequest(t, f.env.app, uploadPath, map[string]string{"key": "image/other_1_x_photo.png"}, "photo.png", "image/png", []byte("png"), authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performMultipartRequest(t, f.env.app, uploadPath, map[string]string{"key": key}, "", "", nil, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "file is required")

	resp = performMultipartRequest(t, f.env.app, uploadPath, map[string]string{"key": key}, "photo.png", "image/png", []byte("png"), authHeaders(f.outsider))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performMultipartRequest(t, f.env.app, uploadPath, map[string]string{"key": key}, "photo.png", "image/png", []byte("png"), authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusCreated)

	if keys := f.env.media.Keys(); len(keys) != 1 || keys[0] != key {
		t.Fatalf("expected media stored under %q, got %v", key, keys)
	}

	resp = performJSONRequest(t, f.env.app, http.MethodPost, "/api/chatrooms/"+f.chatroomID+"/messages", map[string]any{
		"content": key,
		"type":    "image",
	}, authHeaders(f.memberTok))
	assertStatus(t, resp, http.StatusCreated)
	if content, _ := dataMap(t, decodeJSONMap(t, resp))["content"].(string); content != key {
		t.Fatalf("expected the message to persist only the key, got %q", content)
	}

	resp = performRequest(t, f.env.app, http.MethodGet, "/api/media/url?key="+url.QueryEscape(key), nil, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusOK)
	signed, _ := dataMap(t, decodeJSONMap(t, resp))["url"].(string)
	if !strings.Contains(signed, "expires=") {
		t.Fatalf("expected a signed url, got %q", signed)
	}

	resp = performRequest(t, f.env.app, http.MethodGet, "/api/media/url?key="+url.QueryEscape(key), nil, authHeaders(f.outsider))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, f.env.app, http.MethodGet, "/api/media/url?key=banner.png", nil, authHeaders(f.adminToken))
	assertStatus(t, resp, http.StatusBadRequest)
}
