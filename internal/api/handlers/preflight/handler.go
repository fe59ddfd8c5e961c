package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/printforge/preflight/internal/api/respond"
	"github.com/printforge/preflight/internal/model"
	"github.com/printforge/preflight/internal/repository/upload"
)

// service defines the interface for preflight operations reachable over HTTP.
type service interface {
	EnqueueUpload(ctx context.Context, shopID uuid.UUID, storageKeys []string) (uuid.UUID, []uuid.UUID, error)
	Upload(ctx context.Context, id uuid.UUID) (model.Upload, error)
	Item(ctx context.Context, id uuid.UUID) (model.UploadItem, error)
}

// Handler provides the internal HTTP endpoints: enqueueing uploads for
// preflight and reading back item and order status.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// EnqueueRequest is the body of POST /api/preflight.
type EnqueueRequest struct {
	ShopID      uuid.UUID `json:"shopId" binding:"required"`
	StorageKeys []string  `json:"storageKeys" binding:"required"`
}

// Enqueue registers an upload and queues a preflight job per file.
func (h *Handler) Enqueue(c *ginext.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}
	if len(req.StorageKeys) == 0 {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("storageKeys must not be empty"))
		return
	}

	uploadID, itemIDs, err := h.service.EnqueueUpload(c.Request.Context(), req.ShopID, req.StorageKeys)
	if err != nil {
		if errors.Is(err, upload.ErrShopNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("shop not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to enqueue upload")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to enqueue upload"))
		return
	}

	respond.Created(c, map[string]interface{}{
		"uploadId": uploadID,
		"itemIds":  itemIDs,
	})
}

// GetUpload returns the order-level status and summary.
func (h *Handler) GetUpload(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	up, err := h.service.Upload(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, upload.ErrUploadNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("upload not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get upload")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get upload"))
		return
	}

	respond.OK(c, up)
}

// GetItem returns the per-item status and check results.
func (h *Handler) GetItem(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	item, err := h.service.Item(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, upload.ErrItemNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("item not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get item")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get item"))
		return
	}

	respond.OK(c, item)
}

// Health reports liveness.
func (h *Handler) Health(c *ginext.Context) {
	respond.OK(c, "ok")
}
