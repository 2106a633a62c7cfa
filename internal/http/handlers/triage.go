package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type startTriageRequest struct {
	OrgID   string `json:"org_id" validate:"required"`
	Message string `json:"message" validate:"required,min=3"`
}

type continueTriageRequest struct {
	Message   string   `json:"message" validate:"required"`
	MediaRefs []string `json:"media_refs" validate:"omitempty,dive,url"`
}

type completeTriageRequest struct {
	Force bool `json:"force"`
}

// @Summary Start a triage conversation
// @Description First message of a maintenance intake dialogue
// @Tags triage
// @Accept json
// @Produce json
// @Param body body startTriageRequest true "initial message"
// @Success 200 {object} triage.TurnResult
// @Failure 400 {object} map[string]any
// @Router /api/triage/start [post]
func (h *Handler) StartTriage(c *gin.Context) {
	var req startTriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	result, err := h.Engine.Start(c.Request.Context(), requesterID(c), req.OrgID, req.Message)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Continue a triage conversation
// @Tags triage
// @Accept json
// @Produce json
// @Param id path string true "conversation id"
// @Param body body continueTriageRequest true "next message"
// @Success 200 {object} triage.TurnResult
// @Router /api/triage/{id}/message [post]
func (h *Handler) ContinueTriage(c *gin.Context) {
	var req continueTriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	result, err := h.Engine.Continue(c.Request.Context(), c.Param("id"), req.Message, req.MediaRefs)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Complete triage and create a case
// @Description Finalizes the dialogue, runs duplicate analysis and contractor ranking
// @Tags triage
// @Accept json
// @Produce json
// @Param id path string true "conversation id"
// @Success 200 {object} service.Result
// @Failure 422 {object} map[string]any "missing contact info"
// @Router /api/triage/{id}/complete [post]
func (h *Handler) CompleteTriage(c *gin.Context) {
	var req completeTriageRequest
	_ = c.ShouldBindJSON(&req)

	draft, err := h.Engine.Complete(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	result, err := h.Pipeline.SubmitDraft(c.Request.Context(), draft)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
