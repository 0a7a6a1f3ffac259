package handlers

import (
	"net/http"
	"testing"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
)

func createBasket(t *testing.T, env *testEnv, token string, shop *models.Shop, amount float64) map[string]any {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/create_basket_and_join_pool", map[string]any{
		"shop_id": shop.ID.String(),
		"amount":  amount,
		"link":    "https://shop.example.com/cart/1",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	return dataMap(t, decodeJSONMap(t, resp))
}

func TestCreateBasketPromotesFilledPool(t *testing.T) {
	env := setupTestEnv(t)
	shop := createTestShop(t, env.db, "Coop", 50)
	alice, aliceToken := createTestUser(t, env.db, "alice@example.com", "password123", models.UserRoleUser)
	bob, bobToken := createTestUser(t, env.db, "bob@example.com", "password123", models.UserRoleUser)

	first := createBasket(t, env, aliceToken, shop, 20)
	if _, ok := first["chatroom_id"]; ok {
		t.Fatalf("pool below minimum must not promote, got %+v", first)
	}
	poolID, _ := first["pool_id"].(string)

	resp := performRequest(t, env.app, http.MethodGet, "/api/pools/"+poolID, nil, nil)
	assertStatus(t, resp, http.StatusOK)
	progress, _ := dataMap(t, decodeJSONMap(t, resp))["progress"].(map[string]any)
	if progress["percentage"] != float64(40) || progress["remaining"] != float64(30) {
		t.Fatalf("unexpected progress %+v", progress)
	}

	second := createBasket(t, env, bobToken, shop, 35)
	if second["pool_id"] != poolID {
		t.Fatalf("expected the same open pool, got %v want %v", second["pool_id"], poolID)
	}
	chatroomID, _ := second["chatroom_id"].(string)
	if chatroomID == "" {
		t.Fatal("expected promotion once the minimum is reached")
	}

	var room models.Chatroom
	if err := env.db.First(&room, "id = ?", chatroomID).Error; err != nil {
		t.Fatalf("failed loading chatroom: %v", err)
	}
	if room.AdminID != alice.ID || room.State != models.ChatroomStateWaiting {
		t.Fatalf("expected earliest basket owner as admin in waiting state, got %+v", room)
	}

	var baskets []models.Basket
	env.db.Where("pool_id = ?", poolID).Find(&baskets)
	for _, b := range baskets {
		if b.Status != models.BasketStatusInChat || b.ChatroomID == nil || b.ChatroomID.String() != chatroomID {
			t.Fatalf("basket %s not moved into the chatroom: %+v", b.ID, b)
		}
	}

	for _, u := range []*models.User{alice, bob} {
		userID := u.ID
		waitFor(t, "pool_filled notification", func() bool {
			var count int64
			env.db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", userID, "pool_filled").Count(&count)
			return count == 1
		})
	}

	third := createBasket(t, env, aliceToken, shop, 10)
	if third["pool_id"] == poolID {
		t.Fatal("a promoted pool must not accept new baskets")
	}
}

func TestCreateBasketValidation(t *testing.T) {
	env := setupTestEnv(t)
	shop := createTestShop(t, env.db, "Coop", 50)
	_, token := createTestUser(t, env.db, "val@example.com", "password123", models.UserRoleUser)

	tests := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"zero amount", map[string]any{"shop_id": shop.ID.String(), "amount": 0}, http.StatusBadRequest},
		{"bad link", map[string]any{"shop_id": shop.ID.String(), "amount": 5, "link": "not a url"}, http.StatusBadRequest},
		{"unknown shop", map[string]any{"shop_id": "7b8c1f0e-0000-4000-8000-000000000000", "amount": 5}, http.StatusNotFound},
		{"unknown location", map[string]any{"shop_id": shop.ID.String(), "amount": 5, "location_id": "7b8c1f0e-0000-4000-8000-000000000001"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/create_basket_and_join_pool", tt.payload, authHeaders(token))
			assertStatus(t, resp, tt.status)
		})
	}

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/create_basket_and_join_pool", map[string]any{
		"shop_id": shop.ID.String(),
		"amount":  5,
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestBasketEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	shop := createTestShop(t, env.db, "Denner", 30)
	_, aliceToken := createTestUser(t, env.db, "alice@example.com", "password123", models.UserRoleUser)
	_, bobToken := createTestUser(t, env.db, "bob@example.com", "password123", models.UserRoleUser)

	waiting := createBasket(t, env, aliceToken, shop, 10)
	waitingID, _ := waiting["basket_id"].(string)

	resp := performRequest(t, env.app, http.MethodDelete, "/api/baskets/"+waitingID, nil, authHeaders(bobToken))
	assertStatus(t, resp, http.StatusNotFound)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/baskets/"+waitingID, nil, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusOK)

	var pool models.Pool
	env.db.First(&pool, "id = ?", waiting["pool_id"])
	if pool.CurrentAmount != 0 {
		t.Fatalf("expected pool amount recomputed to 0, got %v", pool.CurrentAmount)
	}

	inChat := createBasket(t, env, aliceToken, shop, 30)
	inChatID, _ := inChat["basket_id"].(string)

	resp = performRequest(t, env.app, http.MethodDelete, "/api/baskets/"+inChatID, nil, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusConflict)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/baskets/"+inChatID+"/ready", map[string]any{"isReady": true}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusOK)
	if ready, _ := dataMap(t, decodeJSONMap(t, resp))["isReady"].(bool); !ready {
		t.Fatal("expected basket marked ready")
	}

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/baskets/"+inChatID+"/delivered", map[string]any{}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/baskets/"+inChatID+"/delivered", map[string]any{"delivered": true}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusOK)

	env.db.Model(&models.Basket{}).Where("id = ?", inChatID).Update("status", models.BasketStatusResolved)
	createBasket(t, env, aliceToken, shop, 5)

	resp = performRequest(t, env.app, http.MethodGet, "/api/baskets", nil, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))
	active, _ := data["active"].([]any)
	resolved, _ := data["resolved"].([]any)
	if len(active) != 1 || len(resolved) != 1 {
		t.Fatalf("expected 1 active and 1 resolved basket, got %d and %d", len(active), len(resolved))
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/baskets", nil, authHeaders(bobToken))
	data = dataMap(t, decodeJSONMap(t, resp))
	if active, ok := data["active"].([]any); !ok || len(active) != 0 {
		t.Fatalf("expected an empty active list, got %#v", data["active"])
	}
}

func TestLeaveChatroomReassignsAdmin(t *testing.T) {
	env := setupTestEnv(t)
	shop := createTestShop(t, env.db, "Aldi", 40)
	_, aliceToken := createTestUser(t, env.db, "alice@example.com", "password123", models.UserRoleUser)
	bob, bobToken := createTestUser(t, env.db, "bob@example.com", "password123", models.UserRoleUser)

	createBasket(t, env, aliceToken, shop, 20)
	promoted := createBasket(t, env, bobToken, shop, 25)
	chatroomID, _ := promoted["chatroom_id"].(string)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/leave_chatroom", map[string]any{"chatroom_id": chatroomID}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusOK)
	if ok, _ := dataMap(t, decodeJSONMap(t, resp))["success"].(bool); !ok {
		t.Fatal("expected success=true")
	}

	var room models.Chatroom
	env.db.First(&room, "id = ?", chatroomID)
	if room.AdminID != bob.ID {
		t.Fatalf("expected admin to pass to bob, got %s", room.AdminID)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/leave_chatroom", map[string]any{"chatroom_id": chatroomID}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/leave_chatroom", map[string]any{"chatroom_id": chatroomID}, authHeaders(bobToken))
	assertStatus(t, resp, http.StatusOK)

	env.db.First(&room, "id = ?", chatroomID)
	if room.State != models.ChatroomStateResolved {
		t.Fatalf("expected empty chatroom resolved, got %s", room.State)
	}
}

func TestRPCPublicProcedures(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "exists@example.com", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/check_user_exists", map[string]any{"email": "Exists@example.com"}, nil)
	assertStatus(t, resp, http.StatusOK)
	if exists, _ := dataMap(t, decodeJSONMap(t, resp))["exists"].(bool); !exists {
		t.Fatal("expected existing user")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/check_user_exists", map[string]any{"email": "nobody@example.com"}, nil)
	if exists, _ := dataMap(t, decodeJSONMap(t, resp))["exists"].(bool); exists {
		t.Fatal("expected unknown user")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/validate_invitation", map[string]any{"code": ""}, nil)
	assertStatus(t, resp, http.StatusOK)
	if valid, _ := dataMap(t, decodeJSONMap(t, resp))["valid"].(bool); valid {
		t.Fatal("empty code must be invalid")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/rpc/track_event", map[string]any{
		"event_type": "user_signed_in",
		"metadata":   map[string]any{"method": "password"},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusAccepted)

	waitFor(t, "tracked event", func() bool {
		var count int64
		env.db.Model(&models.Event{}).Where("event_type = ?", "user_signed_in").Count(&count)
		return count == 1
	})
}
