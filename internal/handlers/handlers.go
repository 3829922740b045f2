package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/internal/websocket"
	"github.com/callowcreation/sfs-api/pkg/auth"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// Queue is the rotation engine surface the handlers call.
type Queue interface {
	Insert(ctx context.Context, channelID, streamerID, posterID string, auto bool) (*models.ShoutoutEvent, error)
	Remove(ctx context.Context, channelID, streamerID, key string) (int, error)
	MoveUp(ctx context.Context, channelID, key string) error
	List(ctx context.Context, channelID string) ([]models.ShoutoutEvent, error)
}

// PinRegistry is the pin engine surface the handlers call.
type PinRegistry interface {
	Pin(ctx context.Context, channelID, pinnerID, key string) (*models.PinnedItem, error)
	Get(ctx context.Context, channelID string) (*models.PinnedItem, error)
	Release(ctx context.Context, channelID string) error
}

// Migrator is the legacy conversion surface the handlers call.
type Migrator interface {
	Status(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error)
	TriggerAsync(channelID string)
}

// SettingsService resolves and persists per-channel settings.
type SettingsService interface {
	Effective(ctx context.Context, channelID string) (models.Settings, error)
	Save(ctx context.Context, channelID string, settings *models.Settings) error
}

// ChannelDirectory tracks which channels use the extension.
type ChannelDirectory interface {
	Touch(ctx context.Context, channelID string) error
	ListIDs(ctx context.Context) ([]string, error)
}

var (
	logger   logging.Logger
	queue    Queue
	registry PinRegistry
	migrator Migrator
	settings SettingsService
	channels ChannelDirectory
	hub      *websocket.Hub
)

// Init wires the handlers to their collaborators.
func Init(log logging.Logger, q Queue, r PinRegistry, m Migrator, s SettingsService, ch ChannelDirectory, h *websocket.Hub) {
	logger = log
	queue = q
	registry = r
	migrator = m
	settings = s
	channels = ch
	hub = h
}

// guardChannel resolves the target channel from the path and rejects callers
// whose token was minted for a different channel.
func guardChannel(c *gin.Context) (string, bool) {
	channelID := c.Param("id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel id"})
		return "", false
	}
	identity := auth.IdentityFromContext(c)
	if identity.ChannelID != channelID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token is not valid for this channel"})
		return "", false
	}
	return channelID, true
}

// respondError maps engine errors onto HTTP statuses. Anything that is not a
// definite not-found or conflict is treated as transient: the caller may
// retry.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "A pinned item already exists"})
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed on backing store")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable", "retryable": true})
	}
}

// touchChannel records channel activity without blocking the request.
func touchChannel(channelID string) {
	go func() {
		if err := channels.Touch(context.Background(), channelID); err != nil {
			logger.WithError(err).WithField("channel_id", channelID).Warn("Failed to record channel activity")
		}
	}()
}

// GetShoutouts returns the channel's rotation, most recent first. Reads also
// kick a best-effort migration pass for channels still carrying legacy data.
func GetShoutouts(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}
	touchChannel(channelID)
	migrator.TriggerAsync(channelID)

	events, err := queue.List(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"broadcaster_id": channelID, "shoutouts": events})
}

// InsertShoutoutRequest is the body of PUT /api/shoutouts/:id.
type InsertShoutoutRequest struct {
	StreamerID string `json:"streamer_id" binding:"required"`
	PosterID   string `json:"poster_id"`
	Auto       bool   `json:"auto"`
}

// InsertShoutout records a shoutout at the head of the rotation.
func InsertShoutout(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	var req InsertShoutoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PosterID == "" {
		identity := auth.IdentityFromContext(c)
		req.PosterID = identity.UserID
		if req.PosterID == "" {
			req.PosterID = identity.OpaqueUserID
		}
	}
	touchChannel(channelID)

	ev, err := queue.Insert(c.Request.Context(), channelID, req.StreamerID, req.PosterID, req.Auto)
	if err != nil {
		respondError(c, err)
		return
	}
	if ev == nil {
		// Auto shoutout on a channel that has not opted in.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// RemoveShoutoutRequest is the body of DELETE /api/shoutouts/:id. Entries are
// matched by event key when given, otherwise by streamer.
type RemoveShoutoutRequest struct {
	StreamerID string `json:"streamer_id"`
	Key        string `json:"key"`
}

// RemoveShoutout evicts one entry from the rotation and reports its index.
func RemoveShoutout(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	var req RemoveShoutoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Key == "" && req.StreamerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "streamer_id or key is required"})
		return
	}

	idx, err := queue.Remove(c.Request.Context(), channelID, req.StreamerID, req.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": idx})
}

// MoveUpRequest is the body of PUT /api/shoutouts/:id/move-up.
type MoveUpRequest struct {
	Key string `json:"key" binding:"required"`
}

// MoveUpShoutout swaps an entry with its predecessor.
func MoveUpShoutout(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	var req MoveUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := queue.MoveUp(c.Request.Context(), channelID, req.Key); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetPin returns the channel's live pin.
func GetPin(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	pinned, err := registry.Get(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pinned)
}

// PinRequest is the body of PUT /api/shoutouts/:id/pin-item.
type PinRequest struct {
	Key      string `json:"key" binding:"required"`
	PinnerID string `json:"pinner_id"`
}

// PinShoutout holds an entry out of rotation. 409 while another pin is live.
func PinShoutout(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	var req PinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PinnerID == "" {
		identity := auth.IdentityFromContext(c)
		req.PinnerID = identity.UserID
		if req.PinnerID == "" {
			req.PinnerID = identity.OpaqueUserID
		}
	}

	pinned, err := registry.Pin(c.Request.Context(), channelID, req.PinnerID, req.Key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pinned)
}

// ReleasePin drops the live pin early.
func ReleasePin(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	if err := registry.Release(c.Request.Context(), channelID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMigrationStatus reports the channel's migration checkpoint.
func GetMigrationStatus(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	cp, err := migrator.Status(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// GetSettings returns the channel's effective settings.
func GetSettings(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	s, err := settings.Effective(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// SaveSettings replaces the channel's settings document.
func SaveSettings(c *gin.Context) {
	channelID, ok := guardChannel(c)
	if !ok {
		return
	}

	var s models.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := settings.Save(c.Request.Context(), channelID, &s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListChannelIDs returns every channel the extension has been active on.
// Bot-facing, behind service auth.
func ListChannelIDs(c *gin.Context) {
	ids, err := channels.ListIDs(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, ids)
}

// ChannelBehaviours reports the settings the chat bot acts on. Channels
// without saved settings get defaults, and an empty command list falls back
// to the standard commands.
func ChannelBehaviours(c *gin.Context) {
	channelID := c.Param("id")
	if channelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing channel id"})
		return
	}

	s, err := settings.Effective(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	commands := s.Commands
	if len(commands) == 0 {
		commands = models.DefaultSettings().Commands
	}
	c.JSON(http.StatusOK, gin.H{
		"broadcaster_id": channelID,
		"auto-shoutouts": s.AutoShoutouts,
		"badge-vip":      s.BadgeVIP,
		"commands":       commands,
	})
}

// ServeWS upgrades the request into a hub connection.
func ServeWS(c *gin.Context) {
	hub.ServeWS(c.Writer, c.Request)
}

// WSStats exposes hub statistics.
func WSStats(c *gin.Context) {
	c.JSON(http.StatusOK, hub.Stats())
}
