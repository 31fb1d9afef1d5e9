package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

// SessionTracker — интерфейс трекера сессий (для подмены в тестах).
type SessionTracker interface {
	Create(ctx context.Context, userID string) (model.Session, error)
	UpdateActivity(ctx context.Context, id string) (model.Session, error)
	End(ctx context.Context, id string) (model.Session, error)
	Get(ctx context.Context, id string) (model.Session, error)
	Summary(ctx context.Context) (model.SessionSummary, error)
	Leaderboard(ctx context.Context, limit int64) ([]model.LeaderboardEntry, error)
}

type SessionHandler struct {
	sessions SessionTracker
	log      *zap.Logger
}

func NewSessionHandler(sessions SessionTracker, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, log: log}
}

func (h *SessionHandler) respond(c *gin.Context, op string, s model.Session, err error, okStatus int) {
	switch {
	case err == nil:
		c.JSON(okStatus, s)
	case errors.Is(err, errs.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		h.log.Error(op+" failed", zap.Error(err), zap.String("request_id", RequestID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operationFailed})
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), req.UserID)
	h.respond(c, "create session", s, err, http.StatusCreated)
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, "get session", s, err, http.StatusOK)
}

func (h *SessionHandler) Activity(c *gin.Context) {
	s, err := h.sessions.UpdateActivity(c.Request.Context(), c.Param("id"))
	h.respond(c, "update activity", s, err, http.StatusOK)
}

func (h *SessionHandler) End(c *gin.Context) {
	s, err := h.sessions.End(c.Request.Context(), c.Param("id"))
	h.respond(c, "end session", s, err, http.StatusOK)
}

func (h *SessionHandler) Summary(c *gin.Context) {
	sum, err := h.sessions.Summary(c.Request.Context())
	if err != nil {
		h.log.Error("session summary failed", zap.Error(err), zap.String("request_id", RequestID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operationFailed})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *SessionHandler) Leaderboard(c *gin.Context) {
	var limit int64
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	top, err := h.sessions.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("leaderboard failed", zap.Error(err), zap.String("request_id", RequestID(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operationFailed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}
