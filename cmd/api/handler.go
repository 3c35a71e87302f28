package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"mailagent-backend/internal/agent/domain"

	"github.com/gin-gonic/gin"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// MonitorStatus is the slice of the Monitor the ops server reads
type MonitorStatus interface {
	ActiveUsers() []string
	IsActive(userID string) bool
	Trigger(userID string) bool
}

// ActivityLister reads a user's activity feed, newest first
type ActivityLister interface {
	ListActivities(ctx context.Context, userID string, limit int) ([]*domain.Activity, error)
}

// DeviceRegistrar stores FCM tokens that activity pushes go to
type DeviceRegistrar interface {
	SaveToken(ctx context.Context, userID, token, deviceInfo string) error
}

type Handler struct {
	monitor    MonitorStatus
	activities ActivityLister
	devices    DeviceRegistrar
	server     *http.Server
}

func NewHandler(monitor MonitorStatus, activities ActivityLister, devices DeviceRegistrar) *Handler {
	return &Handler{
		monitor:    monitor,
		activities: activities,
		devices:    devices,
	}
}

// Router builds the gin engine with every ops route registered
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, h)
	return r
}

// GetStatus reports how many users currently have a running monitor
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_users": len(h.monitor.ActiveUsers()),
	})
}

func (h *Handler) GetUserStatus(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"active":  h.monitor.IsActive(userID),
	})
}

// TriggerRun asks the user's monitor for an immediate pipeline run
func (h *Handler) TriggerRun(c *gin.Context) {
	userID := c.Param("userId")
	if !h.monitor.Trigger(userID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent is not active for this user"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"user_id": userID, "triggered": true})
}

// GetActivities returns the user's recent activity feed
func (h *Handler) GetActivities(c *gin.Context) {
	userID := c.Param("userId")

	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	activities, err := h.activities.ListActivities(c.Request.Context(), userID, limit)
	if err != nil {
		log.Printf("[API] Failed to list activities for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list activities"})
		return
	}
	if activities == nil {
		activities = []*domain.Activity{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

type registerDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// RegisterDevice adds or moves an FCM token to the user
func (h *Handler) RegisterDevice(c *gin.Context) {
	userID := c.Param("userId")

	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.devices.SaveToken(c.Request.Context(), userID, req.Token, req.DeviceInfo); err != nil {
		log.Printf("[API] Failed to save device token for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": userID, "registered": true})
}

// Start serves the ops routes until Shutdown is called
func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("[API] Ops server listening on %s", addr)
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Handler) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
