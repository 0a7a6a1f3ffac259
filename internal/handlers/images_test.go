package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
)

// brokenStore fails every read with a non-404 error.
type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) Open(context.Context, string) (io.ReadCloser, storage.ObjectInfo, error) {
	return nil, storage.ObjectInfo{}, errors.New("connection reset by peer")
}

func TestImageProxy(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.images.Upload(context.Background(), "logos/coop.png", bytes.NewReader([]byte("PNGDATA")), 7, "image/png"); err != nil {
		t.Fatalf("failed seeding image: %v", err)
	}

	t.Run("serves stored object with immutable caching", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/images/logos/coop.png", nil, nil)
		assertStatus(t, resp, http.StatusOK)
		defer resp.Body.Close()

		if got := resp.Header.Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
			t.Fatalf("unexpected Cache-Control %q", got)
		}
		if got := resp.Header.Get("Content-Type"); got != "image/png" {
			t.Fatalf("unexpected Content-Type %q", got)
		}
		raw, _ := io.ReadAll(resp.Body)
		if string(raw) != "PNGDATA" {
			t.Fatalf("unexpected body %q", raw)
		}
	})

	t.Run("missing key is 404", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/images/logos/missing.png", nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "image not found")
	})

	t.Run("storage failure is 500", func(t *testing.T) {
		env.handlers.Images.Images = brokenStore{MemoryStore: env.images}
		defer func() { env.handlers.Images.Images = env.images }()

		resp := performRequest(t, env.app, http.MethodGet, "/api/images/logos/coop.png", nil, nil)
		assertStatus(t, resp, http.StatusInternalServerError)
		assertEnvelopeError(t, decodeJSONMap(t, resp), "failed loading image")
	})
}

func TestImageUpload(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "avatar@example.com", "password123", models.UserRoleUser)

	resp := performMultipartRequest(t, env.app, "/api/images", map[string]string{"folder": "avatars"}, "me.jpg", "image/jpeg", []byte("JPEG"), nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = performMultipartRequest(t, env.app, "/api/images", map[string]string{"folder": "secrets"}, "me.jpg", "image/jpeg", []byte("JPEG"), authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performMultipartRequest(t, env.app, "/api/images", map[string]string{"folder": "avatars"}, "notes.txt", "text/plain", []byte("hello"), authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performMultipartRequest(t, env.app, "/api/images", map[string]string{"folder": "avatars"}, "me.jpg", "image/jpeg", []byte("JPEG"), authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	imageURL, _ := dataMap(t, decodeJSONMap(t, resp))["url"].(string)
	if !strings.HasPrefix(imageURL, "/api/images/avatars/") || !strings.HasSuffix(imageURL, ".jpg") {
		t.Fatalf("unexpected image url %q", imageURL)
	}

	resp = performRequest(t, env.app, http.MethodGet, imageURL, nil, nil)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	signed, err := env.images.PresignedGetURL(context.Background(), strings.TrimPrefix(imageURL, "/api/images/"), time.Minute)
	if err != nil || signed == "" {
		t.Fatalf("expected stored object, got %q, %v", signed, err)
	}
}
