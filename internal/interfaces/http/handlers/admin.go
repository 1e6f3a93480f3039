package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/application/middleware"
	"github.com/mediz-app/mediz-billing/internal/application/query"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
	"github.com/mediz-app/mediz-billing/internal/interfaces/http/response"
)

// AdminCommands groups the back-office mutations
type AdminCommands struct {
	UpsertPlan         *command.UpsertPlanCommand
	DeactivatePlan     *command.DeactivatePlanCommand
	GrantSubscription  *command.GrantSubscriptionCommand
	UpdateSubscription *command.UpdateSubscriptionCommand
	DeleteSubscription *command.DeleteSubscriptionCommand
	RecalculatePeriods *command.RecalculatePeriodsCommand
}

// AdminQueries groups the back-office reads
type AdminQueries struct {
	Plans         *query.PlanQuery
	Subscriptions *query.SubscriptionQuery
	Stats         *query.PremiumStatsQuery
}

// AdminHandler handles admin endpoints
type AdminHandler struct {
	cmd AdminCommands
	qry AdminQueries
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cmd AdminCommands, qry AdminQueries) *AdminHandler {
	return &AdminHandler{cmd: cmd, qry: qry}
}

// UpsertPlan creates or overwrites a catalog plan
// @Summary Upsert plan
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body dto.UpsertPlanRequest true "Plan"
// @Success 200 {object} dto.PlanUpsertResponse
// @Success 201 {object} dto.PlanUpsertResponse
// @Router /v1/admin/plans [post]
func (h *AdminHandler) UpsertPlan(c *gin.Context) {
	var req dto.UpsertPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request format: "+err.Error())
		return
	}

	res, err := h.cmd.UpsertPlan.Execute(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	if res.Created {
		response.Created(c, res)
		return
	}
	response.OK(c, res)
}

// ListPlans returns the catalog
// @Summary List plans
// @Tags admin
// @Produce json
// @Security Bearer
// @Param active query bool false "Only active plans"
// @Success 200 {array} dto.PlanResponse
// @Router /v1/admin/plans [get]
func (h *AdminHandler) ListPlans(c *gin.Context) {
	plans, err := h.qry.Plans.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, plans)
}

// DeactivatePlan stops new grants against a plan
// @Summary Deactivate plan
// @Tags admin
// @Security Bearer
// @Param id path string true "Plan ID"
// @Success 204
// @Router /v1/admin/plans/{id}/deactivate [post]
func (h *AdminHandler) DeactivatePlan(c *gin.Context) {
	if err := h.cmd.DeactivatePlan.Execute(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}

// ListUserSubscriptions returns every subscription the user has held
// @Summary Subscription history
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Success 200 {array} dto.SubscriptionResponse
// @Router /v1/admin/users/{id}/subscriptions [get]
func (h *AdminHandler) ListUserSubscriptions(c *gin.Context) {
	subs, err := h.qry.Subscriptions.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, subs)
}

// ListActiveSubscriptions returns the user's entitling subscriptions
// @Summary Active subscriptions
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {array} dto.SubscriptionResponse
// @Router /v1/admin/users/{id}/subscriptions/active [get]
func (h *AdminHandler) ListActiveSubscriptions(c *gin.Context) {
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	subs, err := h.qry.Subscriptions.Active(c.Request.Context(), c.Param("id"), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, subs)
}

// GrantSubscription creates a subscription by hand
// @Summary Grant subscription to user
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param request body dto.GrantSubscriptionRequest true "Grant request"
// @Success 201 {object} dto.SubscriptionResponse
// @Router /v1/admin/users/{id}/subscriptions [post]
func (h *AdminHandler) GrantSubscription(c *gin.Context) {
	var req dto.GrantSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request format: "+err.Error())
		return
	}

	sub, err := h.cmd.GrantSubscription.Execute(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, dto.NewSubscriptionResponse(sub))
}

// UpdateSubscription edits plan, status or period of a subscription
// @Summary Update subscription
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "Subscription ID"
// @Param request body dto.UpdateSubscriptionRequest true "Changes"
// @Success 200 {object} dto.SubscriptionResponse
// @Router /v1/admin/subscriptions/{id} [put]
func (h *AdminHandler) UpdateSubscription(c *gin.Context) {
	var req dto.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request format: "+err.Error())
		return
	}

	sub, err := h.cmd.UpdateSubscription.Execute(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.NewSubscriptionResponse(sub))
}

// DeleteSubscription hard-deletes a subscription
// @Summary Delete subscription
// @Tags admin
// @Security Bearer
// @Param id path string true "Subscription ID"
// @Success 204
// @Router /v1/admin/subscriptions/{id} [delete]
func (h *AdminHandler) DeleteSubscription(c *gin.Context) {
	if err := h.cmd.DeleteSubscription.Execute(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}

// RecalculateUserPeriods repairs the period ends of every row the user holds.
// With async=true the work is queued for the worker instead.
// @Summary Recalculate user periods
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param async query bool false "Queue instead of running inline"
// @Success 200 {object} dto.RecalculateResponse
// @Success 202 {object} dto.RecalculateResponse
// @Router /v1/admin/users/{id}/subscriptions/recalculate [post]
func (h *AdminHandler) RecalculateUserPeriods(c *gin.Context) {
	ctx := c.Request.Context()
	actor := middleware.ActorID(c)

	if c.Query("async") == "true" {
		res, err := h.cmd.RecalculatePeriods.EnqueueForUser(ctx, actor, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		response.Send(c, http.StatusAccepted, res)
		return
	}

	res, err := h.cmd.RecalculatePeriods.ForUser(ctx, actor, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, res)
}

// RecalculateSubscriptionPeriod repairs a single row
// @Summary Recalculate subscription period
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "Subscription ID"
// @Success 200 {object} service.PeriodCorrection
// @Router /v1/admin/subscriptions/{id}/recalculate [post]
func (h *AdminHandler) RecalculateSubscriptionPeriod(c *gin.Context) {
	correction, err := h.cmd.RecalculatePeriods.ForSubscription(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, correction)
}

// EnqueuePeriodSweep queues a full drift sweep on the worker
// @Summary Enqueue period drift sweep
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 202 {object} dto.EnqueuedResponse
// @Router /v1/admin/maintenance/period-sweep [post]
func (h *AdminHandler) EnqueuePeriodSweep(c *gin.Context) {
	res, err := h.cmd.RecalculatePeriods.EnqueueSweep(c.Request.Context(), middleware.ActorID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Send(c, http.StatusAccepted, res)
}

// PremiumStats returns the distinct premium user count
// @Summary Premium stats
// @Tags admin
// @Produce json
// @Security Bearer
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {object} dto.PremiumStatsResponse
// @Router /v1/admin/stats/premium [get]
func (h *AdminHandler) PremiumStats(c *gin.Context) {
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	stats, err := h.qry.Stats.Premium(c.Request.Context(), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, stats)
}

// ConsistencyStats returns the premium count validation report
// @Summary Consistency report
// @Tags admin
// @Produce json
// @Security Bearer
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {object} service.ConsistencyReport
// @Router /v1/admin/stats/consistency [get]
func (h *AdminHandler) ConsistencyStats(c *gin.Context) {
	asOf, ok := asOfParam(c)
	if !ok {
		return
	}
	report, err := h.qry.Stats.Consistency(c.Request.Context(), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, report)
}

// asOfParam parses the optional as_of query parameter. A zero time means now.
func asOfParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("as_of")
	if raw == "" {
		return time.Time{}, true
	}
	asOf, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.BadRequest(c, "as_of must be an RFC3339 timestamp")
		return time.Time{}, false
	}
	return asOf.UTC(), true
}

// fail writes the error response and reports unexpected failures.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, command.ErrJobsUnavailable):
		response.ServiceUnavailable(c, err.Error())
		return
	case errors.Is(err, asynq.ErrDuplicateTask):
		response.Conflict(c, err.Error())
		return
	}

	response.FromDomainError(c, err)
	if c.Writer.Status() >= http.StatusInternalServerError {
		logging.CaptureError(logging.GetLogger(c), "Admin request failed", err, map[string]string{
			"route": c.FullPath(),
		})
		return
	}
	logging.GetLogger(c).Info("Admin request rejected", zap.Error(err))
}
