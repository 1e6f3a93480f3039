package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
)

const testStripeSecret = "whsec_test_123"

func signStripe(t *testing.T, payload string) *webhook.SignedPayload {
	t.Helper()
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
}

func stripeEvent(id, eventType string, created int64, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`, id, eventType, created, object)
}

func TestStripeAdapter_Parse(t *testing.T) {
	adapter := NewStripeAdapter(testStripeSecret)

	t.Run("Subscription updated maps to apply", func(t *testing.T) {
		obj := `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active",
			"cancel_at_period_end":false,"current_period_start":1704067200,"current_period_end":1706745600,
			"items":{"data":[{"price":{"id":"price_monthly"}}]}}`
		signed := signStripe(t, stripeEvent("evt_1", "customer.subscription.updated", 1704067300, obj))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)

		assert.Equal(t, ActionApply, d.Action)
		assert.Equal(t, "evt_1", d.EventID)
		require.NotNil(t, d.Subscription)
		assert.Equal(t, entity.ProviderStripe, d.Subscription.Provider)
		assert.Equal(t, "sub_1", d.Subscription.ExternalSubscriptionID)
		assert.Equal(t, "price_monthly", d.Subscription.ExternalPlanID)
		assert.Equal(t, "cus_1", d.Subscription.CustomerRef)
		assert.Equal(t, int64(1704067200), d.Subscription.PeriodStartEpochSeconds)
		assert.Equal(t, int64(1706745600), d.Subscription.PeriodEndEpochSeconds)
		assert.Equal(t, time.Unix(1704067300, 0).UTC(), d.Subscription.OccurredAt)
	})

	t.Run("Item level period used when top level missing", func(t *testing.T) {
		obj := `{"id":"sub_2","customer":"cus_2","status":"trialing","start_date":1700000000,
			"items":{"data":[{"current_period_start":1704067200,"current_period_end":1706745600,"price":{"id":"price_y"}}]}}`
		signed := signStripe(t, stripeEvent("evt_2", "customer.subscription.created", 1704067300, obj))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, int64(1704067200), d.Subscription.PeriodStartEpochSeconds)
		assert.Equal(t, int64(1706745600), d.Subscription.PeriodEndEpochSeconds)
	})

	t.Run("Start date fallback leaves end to the plan", func(t *testing.T) {
		obj := `{"id":"sub_3","customer":"cus_3","status":"active","start_date":1700000000,
			"items":{"data":[{"price":{"id":"price_y"}}]}}`
		signed := signStripe(t, stripeEvent("evt_3", "customer.subscription.created", 1704067300, obj))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), d.Subscription.PeriodStartEpochSeconds)
		assert.Zero(t, d.Subscription.PeriodEndEpochSeconds)
	})

	t.Run("Update without a period carries no start", func(t *testing.T) {
		obj := `{"id":"sub_3","customer":"cus_3","status":"active","start_date":1600000000,
			"items":{"data":[{"price":{"id":"price_y"}}]}}`
		signed := signStripe(t, stripeEvent("evt_3b", "customer.subscription.updated", 1704067300, obj))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, ActionApply, d.Action)
		assert.Zero(t, d.Subscription.PeriodStartEpochSeconds)
		assert.Zero(t, d.Subscription.PeriodEndEpochSeconds)
	})

	t.Run("Subscription deleted maps to cancel", func(t *testing.T) {
		signed := signStripe(t, stripeEvent("evt_4", "customer.subscription.deleted", 1704067300, `{"id":"sub_1","status":"canceled"}`))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, ActionCancel, d.Action)
		require.NotNil(t, d.Cancellation)
		assert.Equal(t, "sub_1", d.Cancellation.ExternalSubscriptionID)
		assert.Equal(t, "canceled", d.Cancellation.RawStatus)
	})

	t.Run("Untracked type ignored", func(t *testing.T) {
		signed := signStripe(t, stripeEvent("evt_5", "invoice.paid", 1704067300, `{"id":"in_1"}`))

		d, err := adapter.Parse(signed.Payload, signed.Header)
		require.NoError(t, err)
		assert.Equal(t, ActionIgnore, d.Action)
		assert.Nil(t, d.Subscription)
	})

	t.Run("Bad signature rejected", func(t *testing.T) {
		signed := signStripe(t, stripeEvent("evt_6", "customer.subscription.updated", 1, `{"id":"sub_1"}`))

		_, err := NewStripeAdapter("whsec_other").Parse(signed.Payload, signed.Header)
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	})

	t.Run("Missing signature rejected", func(t *testing.T) {
		_, err := adapter.Parse([]byte(`{}`), "")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	})
}
