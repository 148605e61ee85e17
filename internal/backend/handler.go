package backend

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jalvrz/go-sos-relay/internal/location"
	"github.com/jalvrz/go-sos-relay/internal/models"
	"github.com/jalvrz/go-sos-relay/internal/recording"
)

// Handler is the dispatch backend's API: idempotent report intake keyed on
// the client-assigned local id, plus recording lifecycle and reverse
// geocoding for the operators' board.
type Handler struct {
	log *CallLog
	geo *location.Provider
	rec *recording.Store
}

func NewHandler(log *CallLog, geo *location.Provider, rec *recording.Store) *Handler {
	return &Handler{
		log: log,
		geo: geo,
		rec: rec,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/emergency-call", h.receiveCall)
	r.GET("/api/calls", h.listCalls)
	r.POST("/api/location", h.resolveLocation)
	r.POST("/api/recording/start", h.startRecording)
	r.POST("/api/recording/stop/:id", h.stopRecording)
	r.GET("/api/health", h.health)
}

func (h *Handler) receiveCall(c *gin.Context) {
	var report models.EmergencyReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if err := report.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	inserted, err := h.log.Insert(c.Request.Context(), &report)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to record emergency call"})
		return
	}

	// A duplicate local id means the client retried after a lost ack.
	// Ack again; the original row already holds the call.
	msg := "Emergency call recorded"
	if !inserted {
		msg = "Emergency call already recorded"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
		"call_id": report.LocalID,
	})
}

func (h *Handler) listCalls(c *gin.Context) {
	calls, err := h.log.List(c.Request.Context(), 500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to fetch calls"})
		return
	}
	if calls == nil {
		calls = []CallRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"calls":   calls,
		"total":   len(calls),
	})
}

type locationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) resolveLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	loc, err := h.geo.Resolve(c.Request.Context(), req.Latitude, req.Longitude)
	if err != nil {
		// Geocoding is best effort: degrade to raw coordinates.
		loc = &location.Location{
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
			DisplayName: location.FallbackDisplayName(req.Latitude, req.Longitude),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"location": loc,
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
	if _, err := h.rec.Stop(c.Param("id")); err != nil {
		if errors.Is(err, recording.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Recording not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to stop recording"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Recording saved",
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
