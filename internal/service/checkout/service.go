// Package checkout converts a user's cart into a priced, stock-reserved
// order. Both checkout paths end here: the synchronous one through
// CreateOrderFromCart, and the hosted-payment one through CreatePaidOrder,
// driven later by the webhook ingester.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/mykafka"
	"github.com/tiendamx/shop-backend/internal/payments"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidShippingAddress = errors.New("invalid shipping address")
	ErrInvalidBillingAddress  = errors.New("invalid billing address")
	ErrOrderNotFound          = errors.New("order not found")
	ErrNotOwner               = errors.New("order does not belong to this user")
	ErrAlreadyCancelled       = errors.New("order is already cancelled")
	ErrOrderShipped           = errors.New("order already shipped, cannot cancel")
	ErrOrderDelivered         = errors.New("order already delivered, cannot cancel")
	ErrStatusLocked           = errors.New("order status can no longer change")
	ErrUnknownStatus          = errors.New("unknown order status")
	ErrUserNotFound           = errors.New("user not found")
	ErrCartMismatch           = errors.New("cart does not belong to this user")
)

// StockError reports which line failed the stock check.
type StockError struct {
	ProductName string
	SKU         string
	Available   int
	Requested   uint
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): available %d, requested %d",
		e.ProductName, e.SKU, e.Available, e.Requested)
}

// InactiveError reports a line whose variant or product was deactivated.
type InactiveError struct {
	ProductName string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductName)
}

// Gateway is the slice of the payment provider the orchestrator needs.
// *payments.Client satisfies it.
type Gateway interface {
	CreateCustomer(ctx context.Context, p payments.CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, p payments.SessionParams) (*payments.Session, error)
	CreatePaymentIntent(ctx context.Context, p payments.IntentParams) (*payments.Intent, error)
}

type Service struct {
	DB          *gorm.DB
	Gateway     Gateway
	Producer    *mykafka.Producer
	FrontendURL string
}

func (s *Service) publish(ctx context.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = s.Producer.PublishEvent(ctx, "order_events", key, event)
}

// loadCart returns the cart with line items and their variant+product
// relations, or nil when the user has no cart yet.
func loadCart(tx *gorm.DB, userID uint) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Preload("Items.ProductVariant.Product").
		Where("user_id = ?", userID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func validateAddresses(tx *gorm.DB, userID, shippingID, billingID uint) error {
	var shipping models.Address
	if err := tx.First(&shipping, shippingID).Error; err != nil || shipping.UserID != userID {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return ErrInvalidShippingAddress
	}
	var billing models.Address
	if err := tx.First(&billing, billingID).Error; err != nil || billing.UserID != userID {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return ErrInvalidBillingAddress
	}
	return nil
}

// validateLines checks every cart line against live stock and active flags.
func validateLines(items []models.CartItem) error {
	for _, it := range items {
		v := it.ProductVariant
		if !v.IsActive || !v.Product.IsActive {
			return &InactiveError{ProductName: v.Product.Name}
		}
		if v.Stock < int(it.Quantity) {
			return &StockError{
				ProductName: v.Product.Name,
				SKU:         v.SKU,
				Available:   v.Stock,
				Requested:   it.Quantity,
			}
		}
	}
	return nil
}

// decrementStock reserves stock for one line inside the order transaction.
// The stock >= quantity guard makes the update fail under concurrent
// depletion instead of driving stock negative.
func decrementStock(tx *gorm.DB, variantID uint, quantity uint) error {
	res := tx.Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var v models.ProductVariant
		if err := tx.Preload("Product").First(&v, variantID).Error; err != nil {
			return &StockError{SKU: fmt.Sprint(variantID), Requested: quantity}
		}
		return &StockError{
			ProductName: v.Product.Name,
			SKU:         v.SKU,
			Available:   v.Stock,
			Requested:   quantity,
		}
	}
	return nil
}
