package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/mediz-app/mediz-billing/internal/application/query"
	"github.com/mediz-app/mediz-billing/internal/interfaces/http/response"
)

// EntitlementHandler answers premium checks for other services
type EntitlementHandler struct {
	entitlement *query.EntitlementQuery
}

// NewEntitlementHandler creates a new entitlement handler
func NewEntitlementHandler(entitlement *query.EntitlementQuery) *EntitlementHandler {
	return &EntitlementHandler{entitlement: entitlement}
}

// GetEntitlement reports whether the user is premium
// @Summary Check premium entitlement
// @Tags entitlement
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {object} dto.EntitlementResponse
// @Router /v1/users/{id}/entitlement [get]
func (h *EntitlementHandler) GetEntitlement(c *gin.Context) {
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	res, err := h.entitlement.Execute(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}
