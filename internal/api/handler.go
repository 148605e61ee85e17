package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jalvrz/go-sos-relay/internal/connectivity"
	"github.com/jalvrz/go-sos-relay/internal/coordinator"
	"github.com/jalvrz/go-sos-relay/internal/models"
	"github.com/jalvrz/go-sos-relay/internal/queue"
	"github.com/jalvrz/go-sos-relay/internal/recording"
)

// Handler is the relay's on-device intake surface: the emergency form posts
// here and the coordinator takes it from there.
type Handler struct {
	coord *coordinator.Coordinator
	queue queue.Queue
	conn  coordinator.Connectivity
	rec   *recording.Store
}

func NewHandler(coord *coordinator.Coordinator, q queue.Queue, conn coordinator.Connectivity, rec *recording.Store) *Handler {
	return &Handler{
		coord: coord,
		queue: q,
		conn:  conn,
		rec:   rec,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/emergency-call", h.submit)
	r.GET("/api/pending", h.pending)
	r.GET("/api/status", h.status)
	r.POST("/api/drain", h.drain)
	r.POST("/api/recording/start", h.startRecording)
	r.POST("/api/recording/stop/:id", h.stopRecording)
	r.GET("/health", h.health)
}

type submitRequest struct {
	Name            string   `json:"name"`
	Phone           string   `json:"phone"`
	EmergencyType   string   `json:"emergency_type"`
	Description     string   `json:"description"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	LocationAddress string   `json:"location_address"`
	RecordingID     string   `json:"recording_id"`
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	report := &models.EmergencyReport{
		Name:            req.Name,
		Phone:           req.Phone,
		EmergencyType:   req.EmergencyType,
		Description:     req.Description,
		LocationAddress: req.LocationAddress,
		RecordingID:     req.RecordingID,
	}
	if req.Latitude != nil && req.Longitude != nil {
		report.Location = &models.Coordinates{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
		}
	}

	result, err := h.coord.Submit(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, models.ErrInvalidReport) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		// Storage failure: the one transient-looking error that must reach
		// the user, because the durable copy does not exist.
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	status := http.StatusOK
	if result.Status == coordinator.StatusQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{
		"success":  true,
		"local_id": result.LocalID,
		"status":   result.Status,
		"message":  result.Message,
	})
}

func (h *Handler) pending(c *gin.Context) {
	reports, err := h.queue.ListPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list pending reports"})
		return
	}

	type pendingReport struct {
		LocalID    string `json:"local_id"`
		Name       string `json:"name"`
		CreatedAt  string `json:"created_at"`
		State      string `json:"state"`
		RetryCount int    `json:"retry_count"`
	}
	out := make([]pendingReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, pendingReport{
			LocalID:    r.LocalID,
			Name:       r.Name,
			CreatedAt:  r.CreatedAt.Format(time.RFC3339Nano),
			State:      string(r.State),
			RetryCount: r.RetryCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pending": out,
		"total":   len(out),
	})
}

func (h *Handler) status(c *gin.Context) {
	depth, err := h.queue.Depth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read queue depth"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"online":      h.conn.State() == connectivity.Online,
		"queue_depth": depth,
		"delivered":   h.coord.Delivered(),
	})
}

// drain lets the user force a retry pass without waiting for a connectivity
// transition.
func (h *Handler) drain(c *gin.Context) {
	sent := h.coord.Drain(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"sent":    sent,
	})
}

func (h *Handler) startRecording(c *gin.Context) {
	sess, err := h.rec.Start()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to start recording"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"recording_id": sess.ID,
	})
}

func (h *Handler) stopRecording(c *gin.Context) {
	id, err := h.rec.Stop(c.Param("id"))
	if err != nil {
		if errors.Is(err, recording.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "recording not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to stop recording"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"recording_id": id,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
