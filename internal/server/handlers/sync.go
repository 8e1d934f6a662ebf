package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quietlog/quietlog/internal/api"
	"github.com/quietlog/quietlog/internal/common"
	"github.com/quietlog/quietlog/internal/logging"
	"github.com/quietlog/quietlog/internal/server/middleware"
)

// SyncService is the replication surface the sync handlers need.
type SyncService interface {
	Push(ctx context.Context, userID string, records []api.SyncRecord) (*api.PushResponse, error)
	Changes(ctx context.Context, userID, since string) (*api.ChangesResponse, error)
}

// DeviceTracker records which device synced; nil-safe via the noop
// implementation in the router.
type DeviceTracker interface {
	Touch(ctx context.Context, userID, deviceID string) error
}

type SyncHandler struct {
	sync    SyncService
	devices DeviceTracker
	log     logging.Logger
}

func NewSyncHandler(sync SyncService, devices DeviceTracker, log logging.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, devices: devices, log: log}
}

func (h *SyncHandler) Push(c *gin.Context) {
	userID := middleware.UserID(c)

	var req api.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "malformed push request"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := h.sync.Push(c.Request.Context(), userID, req.Records)
	if err != nil {
		h.log.Error(c.Request.Context(), "push failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}
	middleware.CountPushedRecords(len(req.Records))

	if err := h.devices.Touch(c.Request.Context(), userID, req.DeviceID); err != nil {
		// bookkeeping only; the push itself succeeded
		h.log.Warn(c.Request.Context(), "device tracking failed", "error", err)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SyncHandler) Changes(c *gin.Context) {
	userID := middleware.UserID(c)
	since := c.Query("since")

	resp, err := h.sync.Changes(c.Request.Context(), userID, since)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error(c.Request.Context(), "changes failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
