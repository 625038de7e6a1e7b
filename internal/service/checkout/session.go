package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/logging"
	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/payments"
)

// SnapshotLine is one cart line frozen into session metadata at
// session-creation time, so later cart edits cannot change what the
// confirmed order contains.
type SnapshotLine struct {
	VariantID uint    `json:"v"`
	Name      string  `json:"n"`
	SKU       string  `json:"s"`
	Price     float64 `json:"p"`
	Quantity  uint    `json:"q"`
}

const metaSnapshotKey = "cartSnapshot"

func EncodeSnapshot(items []models.CartItem) (string, error) {
	snap := make([]SnapshotLine, 0, len(items))
	for _, it := range items {
		snap = append(snap, SnapshotLine{
			VariantID: it.ProductVariantID,
			Name:      it.ProductVariant.Product.Name,
			SKU:       it.ProductVariant.SKU,
			Price:     it.ProductVariant.Price,
			Quantity:  it.Quantity,
		})
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSnapshot(raw string) []SnapshotLine {
	if raw == "" {
		return nil
	}
	var snap []SnapshotLine
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil
	}
	return snap
}

type CheckoutInput struct {
	ShippingAddressID uint   `json:"shipping_address_id"`
	BillingAddressID  uint   `json:"billing_address_id"`
	CustomerNote      string `json:"customer_note"`
	SuccessURL        string `json:"success_url"`
	CancelURL         string `json:"cancel_url"`
}

type SessionResult struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
	ExpiresAt  string `json:"expires_at"`
}

// CreateCheckoutSession validates cart, addresses and stock, then opens a
// hosted-payment session. Nothing local is mutated except lazily attaching a
// gateway customer to the user: the order itself is created by the ingester
// once payment is confirmed. Stock is not reserved in the meantime.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, in CheckoutInput) (*SessionResult, error) {
	l := logging.FromContext(ctx).With("op", "create_checkout_session", "user_id", userID)

	cart, user, err := s.validateForPayment(ctx, userID, in.ShippingAddressID, in.BillingAddressID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	items := make([]payments.LineItem, 0, len(cart.Items)+1)
	var subtotal float64
	for _, it := range cart.Items {
		v := it.ProductVariant
		subtotal += v.Price * float64(it.Quantity)
		li := payments.LineItem{
			Quantity: int64(it.Quantity),
			Currency: Currency,
		}
		if v.StripePriceID != nil {
			li.PriceID = *v.StripePriceID
		} else {
			li.Name = v.Product.Name
			li.Description = fmt.Sprintf("SKU %s", v.SKU)
			li.UnitAmount = toCents(v.Price)
		}
		items = append(items, li)
	}
	if subtotal < FreeShippingThreshold {
		items = append(items, payments.LineItem{
			Name:       "Envío estándar",
			UnitAmount: toCents(ShippingFee),
			Currency:   Currency,
			Quantity:   1,
		})
	}

	snapshot, err := EncodeSnapshot(cart.Items)
	if err != nil {
		return nil, err
	}

	successURL := in.SuccessURL
	if successURL == "" {
		successURL = s.FrontendURL + "/orders/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := in.CancelURL
	if cancelURL == "" {
		cancelURL = s.FrontendURL + "/cart"
	}

	sess, err := s.Gateway.CreateCheckoutSession(ctx, payments.SessionParams{
		CustomerID: customerID,
		LineItems:  items,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata: map[string]string{
			"userID":            fmt.Sprint(userID),
			"shippingAddressID": fmt.Sprint(in.ShippingAddressID),
			"billingAddressID":  fmt.Sprint(in.BillingAddressID),
			"customerNote":      in.CustomerNote,
			"cartID":            fmt.Sprint(cart.ID),
			metaSnapshotKey:     snapshot,
		},
	})
	if err != nil {
		l.Error("checkout_session_failed", "error", err)
		return nil, err
	}

	l.Info("checkout_session_created", "session_id", sess.ID)
	return &SessionResult{
		SessionID:  sess.ID,
		SessionURL: sess.URL,
		ExpiresAt:  sess.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

type IntentResult struct {
	PaymentIntentID string  `json:"payment_intent_id"`
	ClientSecret    string  `json:"client_secret"`
	Amount          int64   `json:"amount"`
	Currency        string  `json:"currency"`
	Subtotal        float64 `json:"subtotal"`
	Tax             float64 `json:"tax"`
	Shipping        float64 `json:"shipping"`
	Total           float64 `json:"total"`
}

// CreatePaymentIntent backs the direct-intent (mobile SDK) flow. Same
// deferred-mutation contract as CreateCheckoutSession.
func (s *Service) CreatePaymentIntent(ctx context.Context, userID uint, in CheckoutInput) (*IntentResult, error) {
	l := logging.FromContext(ctx).With("op", "create_payment_intent", "user_id", userID)

	cart, user, err := s.validateForPayment(ctx, userID, in.ShippingAddressID, in.BillingAddressID)
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	_, subtotal := snapshotLines(cart.Items)
	tax, shipping, total := Totals(subtotal)

	snapshot, err := EncodeSnapshot(cart.Items)
	if err != nil {
		return nil, err
	}

	intent, err := s.Gateway.CreatePaymentIntent(ctx, payments.IntentParams{
		CustomerID:   customerID,
		Amount:       toCents(total),
		Currency:     Currency,
		Description:  fmt.Sprintf("Orden de %d items - Usuario %s", len(cart.Items), user.Email),
		ReceiptEmail: user.Email,
		Metadata: map[string]string{
			"userID":            fmt.Sprint(userID),
			"shippingAddressID": fmt.Sprint(in.ShippingAddressID),
			"billingAddressID":  fmt.Sprint(in.BillingAddressID),
			"customerNote":      in.CustomerNote,
			"cartID":            fmt.Sprint(cart.ID),
			metaSnapshotKey:     snapshot,
		},
	})
	if err != nil {
		l.Error("payment_intent_failed", "error", err)
		return nil, err
	}

	l.Info("payment_intent_created", "intent_id", intent.ID)
	return &IntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Subtotal:        subtotal,
		Tax:             tax,
		Shipping:        shipping,
		Total:           total,
	}, nil
}

func (s *Service) validateForPayment(ctx context.Context, userID, shippingID, billingID uint) (*models.Cart, *models.User, error) {
	db := s.DB.WithContext(ctx)

	cart, err := loadCart(db, userID)
	if err != nil {
		return nil, nil, err
	}
	if cart == nil || len(cart.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}
	if err := validateAddresses(db, userID, shippingID, billingID); err != nil {
		return nil, nil, err
	}
	if err := validateLines(cart.Items); err != nil {
		return nil, nil, err
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	return cart, &user, nil
}

// ensureCustomer lazily creates the gateway customer record and persists its
// ID on the user. One-time per user.
func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	id, err := s.Gateway.CreateCustomer(ctx, payments.CustomerParams{
		Email:  user.Email,
		Name:   fmt.Sprintf("%s %s", user.Name, user.LastName),
		Phone:  user.PhoneNumber,
		UserID: user.ID,
	})
	if err != nil {
		return "", err
	}

	if err := s.DB.WithContext(ctx).Model(user).Update("stripe_customer_id", id).Error; err != nil {
		return "", err
	}
	user.StripeCustomerID = &id
	return id, nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
