package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Client wraps the Stripe SDK behind plain structs so the services never
// touch stripe types directly.
type Client struct {
	api *client.API
}

func NewClient(secretKey string) (*Client, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("payments: stripe secret key is not configured")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Client{api: api}, nil
}

type CustomerParams struct {
	Email  string
	Name   string
	Phone  string
	UserID uint
}

func (c *Client) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
		Name:  stripe.String(p.Name),
	}
	if p.Phone != "" {
		params.Phone = stripe.String(p.Phone)
	}
	params.Context = ctx
	params.AddMetadata("userID", fmt.Sprint(p.UserID))

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("payments: create customer: %w", err)
	}
	return cust.ID, nil
}

type LineItem struct {
	PriceID     string
	Name        string
	Description string
	UnitAmount  int64
	Currency    string
	Quantity    int64
}

type SessionParams struct {
	CustomerID string
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		item := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
		}
		if li.PriceID != "" {
			item.Price = stripe.String(li.PriceID)
		} else {
			item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(li.Currency),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(li.Name),
					Description: stripe.String(li.Description),
				},
			}
		}
		items = append(items, item)
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(p.CustomerID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  items,
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		BillingAddressCollection: stripe.String(
			string(stripe.CheckoutSessionBillingAddressCollectionRequired),
		),
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}
	return &Session{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

type IntentParams struct {
	CustomerID   string
	Amount       int64
	Currency     string
	Description  string
	ReceiptEmail string
	Metadata     map[string]string
}

type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
}

func (c *Client) CreatePaymentIntent(ctx context.Context, p IntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		Customer: stripe.String(p.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: create payment intent: %w", err)
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// VerifyEvent checks the shared-secret signature over the raw payload and
// returns the typed event. The caller must treat an error here differently
// from a processing error: a bad signature is rejected with a non-2xx.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, secret)
}
