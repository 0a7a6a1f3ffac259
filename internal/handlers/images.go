package handlers

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const imageCacheControl = "public, max-age=31536000, immutable"

var imageFolders = map[string]bool{
	"avatars": true,
	"logos":   true,
}

// ImagesHandler proxies the public image bucket. Objects are immutable once written.
type ImagesHandler struct {
	Images storage.ObjectStore
}

func NewImagesHandler(images storage.ObjectStore) *ImagesHandler {
	return &ImagesHandler{Images: images}
}

func (h *ImagesHandler) Get(c *fiber.Ctx) error {
	key := strings.TrimPrefix(c.Params("*"), "/")
	if key == "" || strings.Contains(key, "..") {
		return utils.Error(c, fiber.StatusBadRequest, "invalid image path")
	}

	obj, info, err := h.Images.Open(c.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "image not found")
		}
		logger.Error("image_proxy_failed", err, map[string]interface{}{
			"key":        key,
			"request_id": middleware.RequestID(c),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading image")
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Set("Content-Type", contentType)
	c.Set("Cache-Control", imageCacheControl)
	return c.SendStream(obj, int(info.Size))
}

// Upload stores the original bytes under {folder}/{uuid}{ext} and returns the proxy URL.
func (h *ImagesHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	folder := strings.TrimSpace(c.FormValue("folder"))
	if !imageFolders[folder] {
		return utils.Error(c, fiber.StatusBadRequest, "folder must be avatars or logos")
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return utils.Error(c, fiber.StatusBadRequest, "file must be an image")
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	key := fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), ext)
	if err := h.Images.Upload(c.Context(), key, stream, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading image")
	}

	logger.InfoWithUser(currentUser.ID.String(), "image_uploaded", map[string]interface{}{
		"key":  key,
		"size": fileHeader.Size,
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"url": "/api/images/" + key})
}
