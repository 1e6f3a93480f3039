package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/external/billing"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/metrics"
	"github.com/mediz-app/mediz-billing/internal/interfaces/http/response"
)

const (
	outcomeIgnored    = "ignored"
	unknownEventType  = "unknown"
	journalCloseGrace = 2 * time.Second
)

// WebhookHandler receives provider deliveries, journals them and hands the
// normalized event to the reconciler.
type WebhookHandler struct {
	stripe     *billing.StripeAdapter
	hotmart    *billing.HotmartAdapter
	journal    repository.WebhookEventRepository
	reconciler *service.Reconciler
	timeout    time.Duration
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	stripe *billing.StripeAdapter,
	hotmart *billing.HotmartAdapter,
	journal repository.WebhookEventRepository,
	reconciler *service.Reconciler,
	timeout time.Duration,
) *WebhookHandler {
	return &WebhookHandler{
		stripe:     stripe,
		hotmart:    hotmart,
		journal:    journal,
		reconciler: reconciler,
		timeout:    timeout,
	}
}

// StripeWebhook handles Stripe subscription events
// @Summary Stripe webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookAck
// @Router /webhook/stripe [post]
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	if h.stripe == nil || !h.stripe.Configured() {
		response.ServiceUnavailable(c, "Stripe webhooks are not configured")
		return
	}
	h.process(c, entity.ProviderStripe, billing.StripeBodyLimit, func(body []byte) (*billing.Delivery, error) {
		return h.stripe.Parse(body, c.GetHeader(billing.StripeSignatureHeader))
	})
}

// HotmartWebhook handles Hotmart purchase and subscription events
// @Summary Hotmart webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookAck
// @Router /webhook/hotmart [post]
func (h *WebhookHandler) HotmartWebhook(c *gin.Context) {
	if h.hotmart == nil || !h.hotmart.Configured() {
		response.ServiceUnavailable(c, "Hotmart webhooks are not configured")
		return
	}
	h.process(c, entity.ProviderHotmart, billing.HotmartBodyLimit, func(body []byte) (*billing.Delivery, error) {
		return h.hotmart.Parse(body, c.GetHeader(billing.HotmartTokenHeader))
	})
}

func (h *WebhookHandler) process(c *gin.Context, provider entity.Provider, limit int64, parse func([]byte) (*billing.Delivery, error)) {
	start := time.Now()
	eventType := unknownEventType
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(string(provider), eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(string(provider), eventType).Observe(time.Since(start).Seconds())
	}()

	logger := logging.GetLogger(c).With(zap.String("provider", string(provider)))

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			response.Error(c, status, "PAYLOAD_TOO_LARGE", "Webhook body exceeds limit")
			return
		}
		status = http.StatusBadRequest
		response.BadRequest(c, "Failed to read body")
		return
	}

	delivery, err := parse(body)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidSignature) {
			status = http.StatusUnauthorized
			logger.Warn("Webhook signature rejected", zap.Error(err))
			response.Unauthorized(c, "Invalid signature")
			return
		}
		status = http.StatusBadRequest
		logger.Warn("Webhook payload rejected", zap.Error(err))
		response.BadRequest(c, "Invalid event body")
		return
	}
	eventType = delivery.EventType
	logger = logger.With(zap.String("event_id", delivery.EventID), zap.String("event_type", delivery.EventType))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if fresh, err := h.journal.Record(ctx, delivery.JournalEntry(start)); err != nil {
		logger.Error("Failed to journal webhook delivery", zap.Error(err))
	} else if !fresh {
		logger.Info("Redelivered webhook, processing again")
	}

	outcome, err := h.reconcile(ctx, delivery)
	metrics.ReconcileOutcomes.WithLabelValues(string(provider), outcome).Inc()
	h.markProcessed(c.Request.Context(), delivery, err, logger)

	if err != nil && !domainErrors.IsBenignSkip(err) {
		status = http.StatusInternalServerError
		logging.CaptureError(logger, "Webhook reconciliation failed", err, map[string]string{
			"provider":   string(provider),
			"event_type": delivery.EventType,
			"event_id":   delivery.EventID,
		})
		response.InternalError(c, "Failed to process event")
		return
	}

	logger.Info("Webhook processed", zap.String("outcome", outcome))
	c.JSON(status, dto.WebhookAck{Received: true, Outcome: outcome})
}

func (h *WebhookHandler) reconcile(ctx context.Context, d *billing.Delivery) (string, error) {
	var err error
	switch d.Action {
	case billing.ActionApply:
		_, err = h.reconciler.ApplySubscriptionEvent(ctx, *d.Subscription)
	case billing.ActionCancel:
		_, err = h.reconciler.ApplySubscriptionCancelled(ctx, *d.Cancellation)
	default:
		return outcomeIgnored, nil
	}
	return service.OutcomeOf(err), err
}

// markProcessed runs on a detached context so a timed-out reconciliation
// still leaves its error in the journal.
func (h *WebhookHandler) markProcessed(parent context.Context, d *billing.Delivery, procErr error, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), journalCloseGrace)
	defer cancel()

	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	if err := h.journal.MarkProcessed(ctx, d.Provider, d.EventID, msg); err != nil {
		logger.Warn("Failed to mark webhook processed", zap.Error(err))
	}
}
