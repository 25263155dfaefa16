package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/api"
	"github.com/classkeep/license-api/config"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
)

// maxWebhookBody bounds webhook payload reads
const maxWebhookBody = int64(65536)

// Payment exported for testing purposes
type Payment struct {
	Subscriptions licensing.Subscriptions
}

// PaymentEventHandler applies a renewal or failure event in the native
// format. The caller (an internal billing worker or a verified webhook
// relay) vouches for the event's authenticity.
func (p Payment) PaymentEventHandler(w http.ResponseWriter, r *http.Request) {
	var ev models.PaymentEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if ev.LicenseCode == "" || ev.Outcome == "" {
		config.ErrorStatus("licenseCode and outcome are required", http.StatusBadRequest, w, nil)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := p.Subscriptions.ApplyPaymentEvent(ctx, ev); err != nil {
		if errors.Is(err, licensing.ErrLicenseNotFound) {
			config.ErrorStatus("license not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to apply payment event", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "payment event applied"}`))
}

// StripeWebhookHandler translates stripe billing events into license
// transitions. Signature verification runs when STRIPE_WEBHOOK_SECRET is
// configured; events that don't concern licensing are acknowledged and
// dropped.
func (p Payment) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		config.ErrorStatus("failed to read webhook payload", http.StatusServiceUnavailable, w, err)
		return
	}

	var event stripe.Event
	endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if endpointSecret != "" {
		event, err = webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), endpointSecret)
		if err != nil {
			config.ErrorStatus("webhook signature verification failed", http.StatusBadRequest, w, err)
			return
		}
	} else {
		zap.S().Warn("STRIPE_WEBHOOK_SECRET not set, skipping signature verification")
		if err := json.Unmarshal(payload, &event); err != nil {
			config.ErrorStatus("failed to parse webhook JSON", http.StatusBadRequest, w, err)
			return
		}
	}

	ev, ok := paymentEventFromStripe(event)
	if !ok {
		// not a billing event this service acts on
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "event ignored"}`))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := p.Subscriptions.ApplyPaymentEvent(ctx, ev); err != nil {
		if errors.Is(err, licensing.ErrLicenseNotFound) {
			// Acknowledge so stripe stops retrying an event we can never apply
			zap.S().Warnw("stripe event references unknown license", "event", event.ID)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"message": "license not found, event dropped"}`))
			return
		}
		config.ErrorStatus("failed to apply stripe event", http.StatusInternalServerError, w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "stripe event applied"}`))
}

// paymentEventFromStripe maps the stripe event types this engine cares about
// onto the native payment event form. The license code rides in the stripe
// object's metadata under "license_code".
func paymentEventFromStripe(event stripe.Event) (models.PaymentEvent, bool) {
	switch event.Type {
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			zap.S().Errorw("failed to parse invoice from stripe event", "event", event.ID, "error", err)
			return models.PaymentEvent{}, false
		}
		code := invoice.Metadata["license_code"]
		if code == "" {
			return models.PaymentEvent{}, false
		}
		outcome := models.PaymentOutcomeSuccess
		amount := float64(invoice.AmountPaid) / 100
		if event.Type == "invoice.payment_failed" {
			outcome = models.PaymentOutcomeFailure
			amount = float64(invoice.AmountDue) / 100
		}
		return models.PaymentEvent{
			TransactionID: invoice.ID,
			Amount:        amount,
			Outcome:       outcome,
			LicenseCode:   code,
		}, true
	default:
		return models.PaymentEvent{}, false
	}
}
