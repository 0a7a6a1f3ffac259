package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newEnvelopeApp() *fiber.App {
	app := fiber.New()

	app.Get("/basket", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"basket_id": "b1", "pool_id": "p1"})
	})
	app.Get("/forbidden", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusForbidden, "only the chatroom admin can do this")
	})
	app.Get("/messages", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"hi", "who orders?"}, ParsePage(c, 50), 45)
	})
	app.Post("/baskets", func(c *fiber.Ctx) error {
		var req struct {
			ShopID string  `json:"shop_id" validate:"required"`
			Amount float64 `json:"amount" validate:"gt=0"`
		}
		if err := BindAndValidate(c, &req); err != nil {
			return nil
		}
		return Success(c, fiber.StatusOK, req.ShopID)
	})

	return app
}

func doEnvelope(t *testing.T, app *fiber.App, method, path, body string) (int, Envelope, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request to %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	encoded, _ := json.Marshal(raw)
	var env Envelope
	_ = json.Unmarshal(encoded, &env)
	return resp.StatusCode, env, raw
}

func TestEnvelope(t *testing.T) {
	app := newEnvelopeApp()

	t.Run("success carries data", func(t *testing.T) {
		status, env, raw := doEnvelope(t, app, http.MethodGet, "/basket", "")
		if status != fiber.StatusCreated || !env.Success {
			t.Fatalf("expected 201 success, got %d %+v", status, env)
		}
		data := raw["data"].(map[string]any)
		if data["basket_id"] != "b1" || data["pool_id"] != "p1" {
			t.Errorf("unexpected data %v", data)
		}
		if _, ok := raw["pagination"]; ok {
			t.Error("plain success must not carry pagination")
		}
	})

	t.Run("error carries the message only", func(t *testing.T) {
		status, env, raw := doEnvelope(t, app, http.MethodGet, "/forbidden", "")
		if status != fiber.StatusForbidden || env.Success {
			t.Fatalf("expected 403 failure, got %d %+v", status, env)
		}
		if env.Error != "only the chatroom admin can do this" {
			t.Errorf("unexpected error %q", env.Error)
		}
		if _, ok := raw["data"]; ok {
			t.Error("errors must not carry data")
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		status, env, _ := doEnvelope(t, app, http.MethodPost, "/baskets", `{"amount":0}`)
		if status != fiber.StatusBadRequest || env.Success || env.Error == "" {
			t.Fatalf("expected 400 with a message, got %d %+v", status, env)
		}
	})
}

func TestPaginated(t *testing.T) {
	app := newEnvelopeApp()

	tests := []struct {
		query     string
		wantPage  int
		wantLimit int
		wantPages int
	}{
		{"", 1, 50, 1},
		{"?page=2&limit=20", 2, 20, 3},
		{"?page=0&limit=-5", 1, 50, 1},
		{"?page=abc&limit=1000", 1, MaxPageLimit, 1},
		{"?limit=7", 1, 7, 7},
	}

	for _, tt := range tests {
		t.Run("query"+tt.query, func(t *testing.T) {
			_, env, _ := doEnvelope(t, app, http.MethodGet, "/messages"+tt.query, "")
			if env.Pagination == nil {
				t.Fatal("expected pagination metadata")
			}
			got := *env.Pagination
			if got.Page != tt.wantPage || got.Limit != tt.wantLimit || got.Total != 45 || got.TotalPages != tt.wantPages {
				t.Errorf("unexpected pagination %+v", got)
			}
		})
	}
}

func TestPageOffset(t *testing.T) {
	if off := (Page{Number: 3, Limit: 20}).Offset(); off != 40 {
		t.Errorf("expected offset 40, got %d", off)
	}
	if pages := (Page{Number: 1, Limit: 0}).TotalPages(10); pages != 0 {
		t.Errorf("expected 0 pages for a zero limit, got %d", pages)
	}
}
