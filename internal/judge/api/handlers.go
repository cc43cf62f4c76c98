package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/internal/judge/transport"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
	"github.com/0xguardapp/0xguard-engine/pkg/types"
)

const defaultEventLimit = 50

// Intake is the publish side of the claim transport. The server accepts
// attacks and claims over HTTP and hands them to the pump through it.
type Intake interface {
	PublishAttack(obs types.AttackObservation) error
	PublishClaim(submission transport.ClaimSubmission) error
}

type Handler struct {
	logger logging.Logger
	engine *judge.Engine
	intake Intake
}

func NewHandler(logger logging.Logger, engine *judge.Engine, intake Intake) *Handler {
	return &Handler{
		logger: logger,
		engine: engine,
		intake: intake,
	}
}

func (h *Handler) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) HandleHealth(c *gin.Context) {
	health := h.engine.CheckHealth(c.Request.Context())

	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

func (h *Handler) HandleEarnings(c *gin.Context) {
	submitter := c.Param("submitter")
	c.JSON(http.StatusOK, h.engine.Earnings(submitter))
}

func (h *Handler) HandleEvents(c *gin.Context) {
	eventType := types.AuditEventType(c.Param("type"))
	switch eventType {
	case types.EventAttack, types.EventVerification, types.EventPayout, types.EventSummary:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, gin.H{
		"type":   eventType,
		"events": h.engine.RecentEvents(eventType, limit),
	})
}

func (h *Handler) HandlePayouts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"payouts": h.engine.PayoutHistory()})
}

func (h *Handler) HandleProof(c *gin.Context) {
	auditID := c.Param("audit_id")

	if c.Query("refresh") == "true" {
		record, ok := h.engine.RefreshProof(c.Request.Context(), auditID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown audit id"})
			return
		}
		c.JSON(http.StatusOK, record)
		return
	}

	record, ok := h.engine.Proof(auditID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown audit id"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) HandleAttackIntake(c *gin.Context) {
	var obs types.AttackObservation
	if err := c.ShouldBindJSON(&obs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if obs.SubmitterID == "" || obs.TargetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submitter_id and target_id are required"})
		return
	}

	if err := h.intake.PublishAttack(obs); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) HandleClaimIntake(c *gin.Context) {
	var submission transport.ClaimSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if submission.SubmitterID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "submitter_id is required"})
		return
	}

	if err := h.intake.PublishClaim(submission); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "submitter_id": submission.SubmitterID})
}

func (h *Handler) HandleMetrics(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
