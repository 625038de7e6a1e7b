// Package webhook ingests asynchronous payment-provider events and converges
// order state to what the synchronous checkout path would have produced. The
// provider delivers at least once; the event log caps processing at once.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/logging"
	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/payments"
	"github.com/tiendamx/shop-backend/internal/service/checkout"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

type Service struct {
	DB       *gorm.DB
	Checkout *checkout.Service
	Secret   string
}

type Result struct {
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type"`
	Processed        bool   `json:"processed"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	Error            string `json:"error,omitempty"`
}

// HandleEvent verifies, deduplicates and dispatches one delivered event.
// The returned error is non-nil only for signature failures; processing
// failures are recorded on the log entry and folded into the Result so the
// transport can still acknowledge the delivery.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, sigHeader string) (*Result, error) {
	event, err := payments.VerifyEvent(payload, sigHeader, s.Secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	l := logging.FromContext(ctx).With("op", "webhook", "event_id", event.ID, "event_type", event.Type)
	l.Info("event_received")

	entry, already, err := s.recordEvent(ctx, event, payload)
	if err != nil {
		return &Result{EventID: event.ID, EventType: string(event.Type), Error: err.Error()}, nil
	}
	if already {
		l.Warn("event_already_processed")
		return &Result{EventID: event.ID, EventType: string(event.Type), AlreadyProcessed: true}, nil
	}

	procErr := s.process(ctx, event)

	now := time.Now()
	if procErr != nil {
		l.Error("event_processing_failed", "error", procErr)
		s.DB.WithContext(ctx).Model(entry).Updates(map[string]any{
			"status":        models.WebhookStatusFailed,
			"error_message": procErr.Error(),
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
		return &Result{EventID: event.ID, EventType: string(event.Type), Error: procErr.Error()}, nil
	}

	s.DB.WithContext(ctx).Model(entry).Updates(map[string]any{
		"status":       models.WebhookStatusSuccess,
		"processed":    true,
		"processed_at": &now,
	})
	l.Info("event_processed")
	return &Result{EventID: event.ID, EventType: string(event.Type), Processed: true}, nil
}

// recordEvent writes the pending log row before any side effect runs, so a
// crash mid-processing leaves an auditable, retryable trace. A row already
// marked processed short-circuits the whole delivery.
func (s *Service) recordEvent(ctx context.Context, event stripe.Event, payload []byte) (*models.WebhookEvent, bool, error) {
	var existing models.WebhookEvent
	err := s.DB.WithContext(ctx).Where("event_id = ?", event.ID).First(&existing).Error
	if err == nil {
		if existing.Processed {
			return &existing, true, nil
		}
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	entry := models.WebhookEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		Status:     models.WebhookStatusPending,
		Payload:    payload,
		ReceivedAt: time.Unix(event.Created, 0),
	}
	if err := s.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, false, err
	}
	return &entry, false, nil
}

func (s *Service) process(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventPaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case EventPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		logging.FromContext(ctx).Warn("event_unhandled", "event_type", event.Type)
		return nil
	}
}

// handleCheckoutCompleted creates the paid order for a hosted checkout. The
// session ID doubles as a secondary idempotency key: if an order already
// references it, this is a redelivery and nothing happens.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("cannot parse checkout session: %w", err)
	}
	if sess.Metadata == nil {
		return errors.New("checkout session has no metadata")
	}

	userID, err := metaUint(sess.Metadata, "userID")
	if err != nil {
		return err
	}
	shippingID, err := metaUint(sess.Metadata, "shippingAddressID")
	if err != nil {
		return err
	}
	billingID, err := metaUint(sess.Metadata, "billingAddressID")
	if err != nil {
		return err
	}
	cartID, err := metaUint(sess.Metadata, "cartID")
	if err != nil {
		return err
	}

	var existing models.Order
	err = s.DB.WithContext(ctx).Where("stripe_session_id = ?", sess.ID).First(&existing).Error
	if err == nil {
		logging.FromContext(ctx).Warn("order_exists_for_session", "order_id", existing.ID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	sessionID := sess.ID
	params := checkout.PaidOrderParams{
		UserID:            userID,
		CartID:            cartID,
		ShippingAddressID: shippingID,
		BillingAddressID:  billingID,
		CustomerNote:      sess.Metadata["customerNote"],
		Currency:          string(sess.Currency),
		SessionID:         &sessionID,
		Snapshot:          checkout.DecodeSnapshot(sess.Metadata["cartSnapshot"]),
		PaidAt:            time.Now(),
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		intentID := sess.PaymentIntent.ID
		params.IntentID = &intentID
	}

	_, err = s.Checkout.CreatePaidOrder(ctx, params)
	return err
}

// handlePaymentSucceeded marks an existing order paid, or synthesizes the
// order fresh from intent metadata for the direct-intent flow. Idempotent on
// the payment-intent ID.
func (s *Service) handlePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("cannot parse payment intent: %w", err)
	}

	l := logging.FromContext(ctx).With("intent_id", pi.ID)

	var existing models.Order
	err := s.DB.WithContext(ctx).Where("stripe_payment_intent_id = ?", pi.ID).First(&existing).Error
	if err == nil {
		if existing.PaidAt == nil {
			now := time.Now()
			return s.DB.WithContext(ctx).Model(&existing).Updates(map[string]any{
				"status":  models.OrderStatusPaid,
				"paid_at": &now,
			}).Error
		}
		l.Info("order_already_paid", "order_id", existing.ID)
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if pi.Metadata == nil || pi.Metadata["userID"] == "" || pi.Metadata["cartID"] == "" {
		l.Warn("intent_missing_metadata")
		return nil
	}

	userID, err := metaUint(pi.Metadata, "userID")
	if err != nil {
		return err
	}
	shippingID, err := metaUint(pi.Metadata, "shippingAddressID")
	if err != nil {
		return err
	}
	billingID, err := metaUint(pi.Metadata, "billingAddressID")
	if err != nil {
		return err
	}
	cartID, err := metaUint(pi.Metadata, "cartID")
	if err != nil {
		return err
	}

	intentID := pi.ID
	_, err = s.Checkout.CreatePaidOrder(ctx, checkout.PaidOrderParams{
		UserID:            userID,
		CartID:            cartID,
		ShippingAddressID: shippingID,
		BillingAddressID:  billingID,
		CustomerNote:      pi.Metadata["customerNote"],
		Currency:          string(pi.Currency),
		IntentID:          &intentID,
		Snapshot:          checkout.DecodeSnapshot(pi.Metadata["cartSnapshot"]),
		PaidAt:            time.Now(),
	})
	return err
}

// handlePaymentFailed cancels the order referencing the failed intent and
// attaches the provider's reason. Without a matching order it is a no-op.
func (s *Service) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("cannot parse payment intent: %w", err)
	}

	var order models.Order
	err := s.DB.WithContext(ctx).Where("stripe_payment_intent_id = ?", pi.ID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	reason := "unknown error"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}

	logging.FromContext(ctx).Warn("payment_failed", "order_id", order.ID, "reason", reason)
	return s.DB.WithContext(ctx).Model(&order).Updates(map[string]any{
		"status":     models.OrderStatusCancelled,
		"admin_note": "payment failed: " + reason,
	}).Error
}

func metaUint(meta map[string]string, key string) (uint, error) {
	raw := meta[key]
	if raw == "" {
		return 0, fmt.Errorf("metadata field %s missing", key)
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("metadata field %s invalid: %q", key, raw)
	}
	return uint(v), nil
}
