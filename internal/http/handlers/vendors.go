package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fixflow/backend/internal/models"
)

type importVendorsRequest struct {
	OrgID          string          `json:"org_id" validate:"required"`
	Vendors        []models.Vendor `json:"vendors" validate:"required,min=1,dive"`
	GeocodeMissing bool            `json:"geocode_missing"`
}

// @Summary List contractors
// @Tags vendors
// @Produce json
// @Param org_id query string true "organization id"
// @Param category query string false "trade category filter"
// @Success 200 {array} models.Vendor
// @Router /api/vendors [get]
func (h *Handler) VendorsList(c *gin.Context) {
	orgID := c.Query("org_id")
	if orgID == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "org_id is required", nil)
		return
	}

	vendors, err := h.Store.ListVendors(c.Request.Context(), orgID, c.Query("category"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": vendors})
}

// @Summary Bulk import contractors (admin)
// @Description Loads contractor profiles from a JSON array, optionally geocoding addresses without coordinates
// @Tags vendors
// @Accept json
// @Produce json
// @Param body body importVendorsRequest true "vendor batch"
// @Success 200 {object} map[string]any
// @Router /api/admin/vendors/import [post]
func (h *Handler) VendorsImport(c *gin.Context) {
	var req importVendorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body", nil)
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Validation failed", err.Error())
		return
	}

	inserted, err := h.Pipeline.ImportVendors(c.Request.Context(), req.OrgID, req.Vendors, req.GeocodeMissing)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": inserted})
}
