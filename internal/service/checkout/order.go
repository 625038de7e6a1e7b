package checkout

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/logging"
	"github.com/tiendamx/shop-backend/internal/models"
)

type CreateOrderInput struct {
	ShippingAddressID uint   `json:"shipping_address_id"`
	BillingAddressID  uint   `json:"billing_address_id"`
	CustomerNote      string `json:"customer_note"`
}

// CreateOrderFromCart validates the cart against live stock and the actor's
// addresses, then atomically creates the order snapshot, reserves stock and
// drains the cart. Any precondition failure aborts with no side effects.
func (s *Service) CreateOrderFromCart(ctx context.Context, userID uint, in CreateOrderInput) (*models.Order, error) {
	l := logging.FromContext(ctx).With("op", "create_order", "user_id", userID)

	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := loadCart(tx, userID)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		if err := validateAddresses(tx, userID, in.ShippingAddressID, in.BillingAddressID); err != nil {
			return err
		}
		if err := validateLines(cart.Items); err != nil {
			return err
		}

		lines, subtotal := snapshotLines(cart.Items)
		tax, shipping, total := Totals(subtotal)

		order = models.Order{
			UserID:            userID,
			ShippingAddressID: in.ShippingAddressID,
			BillingAddressID:  in.BillingAddressID,
			Status:            models.OrderStatusPending,
			SubtotalAmount:    subtotal,
			TaxAmount:         tax,
			ShippingAmount:    shipping,
			TotalAmount:       total,
			Currency:          Currency,
			PaymentMethod:     "pending",
			CustomerNote:      in.CustomerNote,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		order.Items = lines

		for _, li := range lines {
			if err := decrementStock(tx, li.ProductVariantID, li.Quantity); err != nil {
				return err
			}
		}

		return tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		l.Warn("create_order_failed", "reason", err.Error())
		return nil, err
	}

	l.Info("order_created", "order_id", order.ID, "total", order.TotalAmount)
	s.publish(ctx, fmt.Sprint(userID), map[string]any{
		"type":    "order_created",
		"userID":  userID,
		"orderID": order.ID,
		"status":  order.Status,
		"total":   order.TotalAmount,
	})
	return &order, nil
}

// PaidOrderParams describes an order finalized by a confirmed payment.
// Snapshot, when present, is the cart state captured at session-creation
// time; otherwise the live cart is read (legacy sessions).
type PaidOrderParams struct {
	UserID            uint
	CartID            uint
	ShippingAddressID uint
	BillingAddressID  uint
	CustomerNote      string
	Currency          string
	SessionID         *string
	IntentID          *string
	Snapshot          []SnapshotLine
	PaidAt            time.Time
}

// CreatePaidOrder runs the same atomic creation as CreateOrderFromCart but
// with status paid, a payment-confirmation timestamp and the provider's
// session/intent identifiers as secondary idempotency keys.
func (s *Service) CreatePaidOrder(ctx context.Context, p PaidOrderParams) (*models.Order, error) {
	l := logging.FromContext(ctx).With("op", "create_paid_order", "user_id", p.UserID)

	currency := p.Currency
	if currency == "" {
		currency = Currency
	}

	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Preload("Items.ProductVariant.Product").First(&cart, p.CartID).Error; err != nil {
			return fmt.Errorf("cart %d not found: %w", p.CartID, err)
		}
		if cart.UserID != p.UserID {
			return ErrCartMismatch
		}

		lines := linesFromSnapshot(p.Snapshot)
		var subtotal float64
		if lines == nil {
			if len(cart.Items) == 0 {
				return ErrEmptyCart
			}
			lines, subtotal = snapshotLines(cart.Items)
		} else {
			for _, li := range lines {
				subtotal += li.Subtotal
			}
			subtotal = round2(subtotal)
		}

		tax, shipping, total := Totals(subtotal)
		paidAt := p.PaidAt

		order = models.Order{
			UserID:                p.UserID,
			ShippingAddressID:     p.ShippingAddressID,
			BillingAddressID:      p.BillingAddressID,
			Status:                models.OrderStatusPaid,
			SubtotalAmount:        subtotal,
			TaxAmount:             tax,
			ShippingAmount:        shipping,
			TotalAmount:           total,
			Currency:              currency,
			PaymentMethod:         "card",
			StripeSessionID:       p.SessionID,
			StripePaymentIntentID: p.IntentID,
			PaidAt:                &paidAt,
			CustomerNote:          p.CustomerNote,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return err
		}
		order.Items = lines

		for _, li := range lines {
			if err := decrementStock(tx, li.ProductVariantID, li.Quantity); err != nil {
				return err
			}
		}

		return tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
	})
	if err != nil {
		l.Warn("create_paid_order_failed", "reason", err.Error())
		return nil, err
	}

	l.Info("paid_order_created", "order_id", order.ID, "total", order.TotalAmount)
	s.publish(ctx, fmt.Sprint(p.UserID), map[string]any{
		"type":    "order_paid",
		"userID":  p.UserID,
		"orderID": order.ID,
		"total":   order.TotalAmount,
	})
	return &order, nil
}

// CancelOrder sets the order to cancelled and restores the reserved stock.
// Orders already shipped or delivered need the (unimplemented) returns path
// instead, since physical fulfillment has started.
func (s *Service) CancelOrder(ctx context.Context, actorID, orderID uint, isAdmin bool) (*models.Order, error) {
	l := logging.FromContext(ctx).With("op", "cancel_order", "order_id", orderID)

	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, ErrOrderNotFound
	}
	if !isAdmin && order.UserID != actorID {
		return nil, ErrNotOwner
	}
	switch order.Status {
	case models.OrderStatusCancelled:
		return nil, ErrAlreadyCancelled
	case models.OrderStatusDelivered:
		return nil, ErrOrderDelivered
	case models.OrderStatusShipped:
		return nil, ErrOrderShipped
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Order{}).Where("id = ?", orderID).
			Update("status", models.OrderStatusCancelled).Error; err != nil {
			return err
		}
		for _, it := range order.Items {
			res := tx.Model(&models.ProductVariant{}).
				Where("id = ?", it.ProductVariantID).
				UpdateColumn("stock", gorm.Expr("stock + ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatusCancelled

	l.Info("order_cancelled", "user_id", order.UserID)
	s.publish(ctx, fmt.Sprint(order.UserID), map[string]any{
		"type":    "order_cancelled",
		"userID":  order.UserID,
		"orderID": order.ID,
	})
	return &order, nil
}

type UpdateStatusInput struct {
	Status                string     `json:"status"`
	AdminNote             string     `json:"admin_note"`
	TrackingNumber        string     `json:"tracking_number"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
	ActualDeliveryDate    *time.Time `json:"actual_delivery_date"`
}

var validStatuses = map[string]bool{
	models.OrderStatusPending:    true,
	models.OrderStatusPaid:       true,
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
	models.OrderStatusRefunded:   true,
}

// UpdateOrderStatus is the admin transition. cancelled and refunded are
// absorbing: once there, the status never changes again.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uint, in UpdateStatusInput) (*models.Order, error) {
	if !validStatuses[in.Status] {
		return nil, ErrUnknownStatus
	}

	var order models.Order
	if err := s.DB.WithContext(ctx).First(&order, orderID).Error; err != nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == models.OrderStatusCancelled && in.Status != models.OrderStatusCancelled {
		return nil, ErrStatusLocked
	}
	if order.Status == models.OrderStatusRefunded && in.Status != models.OrderStatusRefunded {
		return nil, ErrStatusLocked
	}

	updates := map[string]any{"status": in.Status}
	if in.AdminNote != "" {
		updates["admin_note"] = in.AdminNote
	}
	if in.TrackingNumber != "" {
		updates["tracking_number"] = in.TrackingNumber
	}
	if in.EstimatedDeliveryDate != nil {
		updates["estimated_delivery_date"] = in.EstimatedDeliveryDate
	}
	if in.ActualDeliveryDate != nil {
		updates["actual_delivery_date"] = in.ActualDeliveryDate
	}
	if in.Status == models.OrderStatusDelivered && in.ActualDeliveryDate == nil {
		now := time.Now()
		updates["actual_delivery_date"] = &now
	}

	if err := s.DB.WithContext(ctx).Model(&order).Updates(updates).Error; err != nil {
		return nil, err
	}

	s.publish(ctx, fmt.Sprint(order.UserID), map[string]any{
		"type":    "order_status_updated",
		"userID":  order.UserID,
		"orderID": order.ID,
		"status":  in.Status,
	})
	return &order, nil
}

// snapshotLines copies name, SKU and price-at-purchase out of the live
// catalog rows so the order stays accurate after catalog edits.
func snapshotLines(items []models.CartItem) ([]models.OrderItem, float64) {
	lines := make([]models.OrderItem, 0, len(items))
	var subtotal float64
	for _, it := range items {
		v := it.ProductVariant
		lineSubtotal := round2(v.Price * float64(it.Quantity))
		subtotal += lineSubtotal
		lines = append(lines, models.OrderItem{
			ProductVariantID: v.ID,
			ProductName:      v.Product.Name,
			VariantSKU:       v.SKU,
			PriceAtPurchase:  v.Price,
			Quantity:         it.Quantity,
			Subtotal:         lineSubtotal,
		})
	}
	return lines, round2(subtotal)
}

func linesFromSnapshot(snap []SnapshotLine) []models.OrderItem {
	if len(snap) == 0 {
		return nil
	}
	lines := make([]models.OrderItem, 0, len(snap))
	for _, s := range snap {
		lines = append(lines, models.OrderItem{
			ProductVariantID: s.VariantID,
			ProductName:      s.Name,
			VariantSKU:       s.SKU,
			PriceAtPurchase:  s.Price,
			Quantity:         s.Quantity,
			Subtotal:         round2(s.Price * float64(s.Quantity)),
		})
	}
	return lines
}
