package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"casechat-sync/internal/api"
	"casechat-sync/internal/engine"
	"casechat-sync/internal/models"
	"casechat-sync/internal/store"
)

// SyncService is the engine surface the local HTTP handlers consume.
type SyncService interface {
	Watch(ctx context.Context, caseID int64) (*engine.Session, error)
	Unwatch(caseID int64) bool
	Send(ctx context.Context, caseID int64, body string) (models.Message, error)
	Messages(caseID int64) []models.Message
	DayGroups(caseID int64) []store.DayGroup
	Pending(caseID int64) []models.PendingSend
	CaseStatus(caseID int64) (engine.SessionStatus, bool)
	Status() engine.Status
}

// SyncHandler exposes the reconciled conversation views over HTTP.
type SyncHandler struct {
	svc SyncService
}

// NewSyncHandler builds a SyncHandler.
func NewSyncHandler(svc SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// WatchCase activates (or re-references) the conversation view of a case.
func (h *SyncHandler) WatchCase(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	if _, err := h.svc.Watch(c.Request.Context(), caseID); err != nil {
		var fe *api.FetchError
		if errors.As(err, &fe) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "history load failed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not watch case"})
		return
	}

	status, _ := h.svc.CaseStatus(caseID)
	c.JSON(http.StatusOK, gin.H{"watching": true, "status": status})
}

// UnwatchCase releases one reference to a case view.
func (h *SyncHandler) UnwatchCase(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	if !h.svc.Unwatch(caseID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not watched"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCaseMessages returns the reconciled list plus optimistic entries.
func (h *SyncHandler) GetCaseMessages(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	if _, watched := h.svc.CaseStatus(caseID); !watched {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not watched"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": h.svc.Messages(caseID),
		"pending":  h.svc.Pending(caseID),
	})
}

// GetCaseMessagesGrouped returns the reconciled list partitioned by day.
func (h *SyncHandler) GetCaseMessagesGrouped(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	if _, watched := h.svc.CaseStatus(caseID); !watched {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not watched"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": h.svc.DayGroups(caseID)})
}

// PostCaseMessage submits a message through the optimistic send pipeline.
func (h *SyncHandler) PostCaseMessage(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}
	if _, watched := h.svc.CaseStatus(caseID); !watched {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not watched"})
		return
	}

	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), caseID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyBody):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message body is empty"})
		case errors.Is(err, store.ErrInvalidRecipient):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "recipient could not be resolved"})
		default:
			var se *api.SendError
			if errors.As(err, &se) {
				c.JSON(http.StatusBadGateway, gin.H{"error": "message delivery failed"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetCaseStatus reports the view status of one case.
func (h *SyncHandler) GetCaseStatus(c *gin.Context) {
	caseID, ok := parseCaseID(c)
	if !ok {
		return
	}

	status, watched := h.svc.CaseStatus(caseID)
	if !watched {
		c.JSON(http.StatusNotFound, gin.H{"error": "case not watched"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func parseCaseID(c *gin.Context) (int64, bool) {
	caseID, err := strconv.ParseInt(c.Param("case_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return 0, false
	}
	return caseID, true
}
