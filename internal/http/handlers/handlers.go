package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fixflow/backend/internal/coord"
	"github.com/fixflow/backend/internal/db"
	"github.com/fixflow/backend/internal/dedupe"
	"github.com/fixflow/backend/internal/service"
	"github.com/fixflow/backend/internal/triage"
	"github.com/fixflow/backend/internal/utils"
)

type Handler struct {
	Store       db.Store
	Engine      *triage.Engine
	Pipeline    *service.Pipeline
	Coordinator *coord.Coordinator
	Validator   *validator.Validate
	Logger      zerolog.Logger
	AdminKey    string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	body := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		body["error"].(gin.H)["details"] = details
	}
	c.JSON(status, body)
}

// writeDomainError maps core errors onto the response envelope. Conflicts
// carry decision-relevant information (retry against the next candidate or
// slot) so their codes are surfaced verbatim; everything unexpected
// degrades to a generic retry message.
func (h *Handler) writeDomainError(c *gin.Context, err error) {
	var missing triage.MissingContactInfoError
	switch {
	case errors.As(err, &missing):
		writeError(c, http.StatusUnprocessableEntity, "MISSING_CONTACT_INFO",
			"Contact information is required to submit a request", missing.Fields)
	case errors.Is(err, triage.ErrIncompleteConversation):
		writeError(c, http.StatusConflict, "INCOMPLETE_CONVERSATION",
			"The conversation has not gathered enough information yet", nil)
	case errors.Is(err, triage.ErrConversationClosed):
		writeError(c, http.StatusConflict, "CONVERSATION_CLOSED",
			"This conversation was already submitted", nil)
	case errors.Is(err, coord.ErrAlreadyAssigned):
		writeError(c, http.StatusConflict, "ALREADY_ASSIGNED",
			"Another contractor already holds this case", nil)
	case errors.Is(err, coord.ErrConflict), errors.Is(err, db.ErrVersionConflict):
		writeError(c, http.StatusConflict, "CONFLICT",
			"Another update won the race; retry with the next candidate", nil)
	case errors.Is(err, coord.ErrScheduleConflict):
		writeError(c, http.StatusConflict, "SCHEDULE_CONFLICT",
			"The contractor already has an appointment in that window", nil)
	case errors.Is(err, coord.ErrInvalidState):
		writeError(c, http.StatusConflict, "INVALID_STATE",
			"The case is past the point where this action applies", nil)
	case errors.Is(err, coord.ErrNotAssignee):
		writeError(c, http.StatusForbidden, "NOT_ASSIGNEE",
			"This contractor does not hold the case", nil)
	case errors.Is(err, coord.ErrStartInPast):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"Appointment start must be in the future", nil)
	case errors.Is(err, dedupe.ErrServiceUnavailable):
		writeError(c, http.StatusServiceUnavailable, "DUPLICATE_SERVICE_UNAVAILABLE",
			"Duplicate analysis is unavailable, please try again", nil)
	case errors.Is(err, db.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
	default:
		h.Logger.Error().Err(err).Msg("internal error")
		writeError(c, http.StatusInternalServerError, "INTERNAL",
			"Something went wrong, please try again", nil)
	}
}

// requesterID returns the authenticated caller identity, or a deterministic
// pseudo-id for anonymous public intake.
func requesterID(c *gin.Context) string {
	if uid := c.GetHeader("X-User-Id"); uid != "" {
		return uid
	}
	seed := c.ClientIP() + "|" + c.Request.UserAgent()
	return fmt.Sprintf("anon_%x", utils.HashStringToUint64(seed))
}
