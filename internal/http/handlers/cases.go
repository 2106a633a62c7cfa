package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fixflow/backend/internal/db"
)

type acceptRequest struct {
	OrgID        string `json:"org_id" validate:"required"`
	ContractorID string `json:"contractor_id" validate:"required"`
}

type declineRequest struct {
	OrgID        string `json:"org_id" validate:"required"`
	ContractorID string `json:"contractor_id" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
}

type scheduleRequest struct {
	OrgID           string    `json:"org_id" validate:"required"`
	ContractorID    string    `json:"contractor_id" validate:"required"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0,lte=1440"`
}

type assignRequest struct {
	OrgID        string `json:"org_id" validate:"required"`
	ContractorID string `json:"contractor_id" validate:"required"`
	Reasoning    string `json:"reasoning" validate:"required,min=5"`
}

// @Summary List cases
// @Tags cases
// @Produce json
// @Param org_id query string true "organization id"
// @Success 200 {array} models.Case
// @Router /api/cases [get]
func (h *Handler) CasesList(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	cases, err := h.Store.ListCases(c.Request.Context(), orgID, db.CaseFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Building: c.Query("building"),
		Query:    c.Query("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": cases})
}

// @Summary Case details
// @Tags cases
// @Produce json
// @Param id path string true "case id"
// @Param org_id query string true "organization id"
// @Success 200 {object} models.Case
// @Router /api/cases/{id} [get]
func (h *Handler) CaseDetails(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", nil)
		return
	}

	kase, err := h.Store.GetCase(c.Request.Context(), orgID, c.Param("id"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	body := gin.H{"case": kase}
	if appt, err := h.Store.GetCaseAppointment(c.Request.Context(), kase.ID); err == nil {
		body["appointment"] = appt
	}
	c.JSON(http.StatusOK, body)
}

// @Summary Accept a case
// @Description First accept wins; a lost race returns CONFLICT and the caller retries with the next-ranked contractor
// @Tags cases
// @Accept json
// @Produce json
// @Param id path string true "case id"
// @Param body body acceptRequest true "contractor"
// @Success 200 {object} models.Case
// @Failure 409 {object} map[string]any "CONFLICT or ALREADY_ASSIGNED"
// @Router /api/cases/{id}/accept [post]
func (h *Handler) AcceptCase(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	kase, err := h.Coordinator.Accept(c.Request.Context(), req.OrgID, c.Param("id"), req.ContractorID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "case": kase})
}

// @Summary Decline a case
// @Tags cases
// @Accept json
// @Produce json
// @Param id path string true "case id"
// @Param body body declineRequest true "contractor and reason"
// @Success 200 {object} map[string]any
// @Router /api/cases/{id}/decline [post]
func (h *Handler) DeclineCase(c *gin.Context) {
	var req declineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	if err := h.Coordinator.Decline(c.Request.Context(), req.OrgID, c.Param("id"), req.ContractorID, req.Reason); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// @Summary Schedule a visit for an accepted case
// @Tags cases
// @Accept json
// @Produce json
// @Param id path string true "case id"
// @Param body body scheduleRequest true "slot"
// @Success 200 {object} models.Appointment
// @Failure 409 {object} map[string]any "SCHEDULE_CONFLICT"
// @Router /api/cases/{id}/schedule [post]
func (h *Handler) ScheduleCase(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	appt, err := h.Coordinator.Schedule(c.Request.Context(), req.OrgID, c.Param("id"),
		req.ContractorID, req.Start, req.DurationMinutes)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, appt)
}

// @Summary Manually assign a contractor (admin override)
// @Tags cases
// @Accept json
// @Produce json
// @Param id path string true "case id"
// @Param body body assignRequest true "contractor and audit reasoning"
// @Success 200 {object} models.Case
// @Router /api/cases/{id}/assign [post]
func (h *Handler) AssignCase(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	kase, err := h.Pipeline.ManualAssign(c.Request.Context(), req.OrgID, c.Param("id"),
		req.ContractorID, req.Reasoning)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, kase)
}
