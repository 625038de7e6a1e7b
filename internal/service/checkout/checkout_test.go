package checkout_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/config"
	"github.com/tiendamx/shop-backend/internal/models"
	"github.com/tiendamx/shop-backend/internal/mykafka"
	"github.com/tiendamx/shop-backend/internal/payments"
	"github.com/tiendamx/shop-backend/internal/service/checkout"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

// stubGateway records every call so tests can inspect what the orchestrator
// sent to the payment provider.
type stubGateway struct {
	customers      int
	sessionParams  *payments.SessionParams
	intentParams   *payments.IntentParams
	failOnCustomer bool
}

func (g *stubGateway) CreateCustomer(_ context.Context, _ payments.CustomerParams) (string, error) {
	if g.failOnCustomer {
		return "", fmt.Errorf("provider unavailable")
	}
	g.customers++
	return fmt.Sprintf("cus_test_%d", g.customers), nil
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, p payments.SessionParams) (*payments.Session, error) {
	g.sessionParams = &p
	return &payments.Session{
		ID:        "cs_test_123",
		URL:       "https://checkout.example.com/cs_test_123",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (g *stubGateway) CreatePaymentIntent(_ context.Context, p payments.IntentParams) (*payments.Intent, error) {
	g.intentParams = &p
	return &payments.Intent{
		ID:           "pi_test_123",
		ClientSecret: "pi_test_123_secret",
		Amount:       p.Amount,
		Currency:     p.Currency,
	}, nil
}

func newService(db *gorm.DB) (*checkout.Service, *stubGateway) {
	gw := &stubGateway{}
	return &checkout.Service{
		DB:          db,
		Gateway:     gw,
		Producer:    &mykafka.Producer{},
		FrontendURL: "https://shop.example.com",
	}, gw
}

type fixture struct {
	User     models.User
	Shipping models.Address
	Billing  models.Address
	Cart     models.Cart
	Variants []models.ProductVariant
}

// seedCart creates one user with addresses and a cart holding one line per
// (price, quantity, stock) triple.
func seedCart(t *testing.T, db *gorm.DB, lines ...[3]int) *fixture {
	t.Helper()

	f := &fixture{}
	f.User = models.User{Email: fmt.Sprintf("%s@test.mx", t.Name()), PasswordHash: "x", Name: "Test"}
	require.NoError(t, db.Create(&f.User).Error)

	f.Shipping = models.Address{
		UserID: f.User.ID, FirstName: "Test", Street: "Av. Reforma 1",
		City: "CDMX", State: "CDMX", PostalCode: "06600", CountryCode: "MX",
	}
	require.NoError(t, db.Create(&f.Shipping).Error)
	f.Billing = models.Address{
		UserID: f.User.ID, FirstName: "Test", Street: "Av. Juárez 2",
		City: "CDMX", State: "CDMX", PostalCode: "06600", CountryCode: "MX",
	}
	require.NoError(t, db.Create(&f.Billing).Error)

	f.Cart = models.Cart{UserID: f.User.ID}
	require.NoError(t, db.Create(&f.Cart).Error)

	for i, ln := range lines {
		prod := models.Product{Name: fmt.Sprintf("Playera %d", i+1), IsActive: true}
		require.NoError(t, db.Create(&prod).Error)
		variant := models.ProductVariant{
			ProductID: prod.ID,
			SKU:       fmt.Sprintf("%s-SKU-%d", t.Name(), i+1),
			Price:     float64(ln[0]),
			Stock:     ln[2],
			IsActive:  true,
		}
		require.NoError(t, db.Create(&variant).Error)
		f.Variants = append(f.Variants, variant)
		require.NoError(t, db.Create(&models.CartItem{
			CartID:           f.Cart.ID,
			ProductVariantID: variant.ID,
			Quantity:         uint(ln[1]),
		}).Error)
	}
	return f
}

func TestTotals(t *testing.T) {
	cases := []struct {
		subtotal, tax, shipping, total float64
	}{
		{598, 95.68, 0, 693.68},
		{500, 80, 0, 580},
		{499.99, 80, 99, 678.99},
		{100, 16, 99, 215},
	}
	for _, tc := range cases {
		tax, shipping, total := checkout.Totals(tc.subtotal)
		require.Equal(t, tc.tax, tax, "tax for %v", tc.subtotal)
		require.Equal(t, tc.shipping, shipping, "shipping for %v", tc.subtotal)
		require.Equal(t, tc.total, total, "total for %v", tc.subtotal)
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{249, 2, 5}) // subtotal 498, below free shipping

	order, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
		CustomerNote:      "dejar en portería",
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, 498.0, order.SubtotalAmount)
	require.Equal(t, 79.68, order.TaxAmount)
	require.Equal(t, 99.0, order.ShippingAmount)
	require.Equal(t, 676.68, order.TotalAmount)
	require.Equal(t, "mxn", order.Currency)
	require.Len(t, order.Items, 1)
	require.Equal(t, "Playera 1", order.Items[0].ProductName)
	require.Equal(t, 249.0, order.Items[0].PriceAtPurchase)

	var variant models.ProductVariant
	require.NoError(t, db.First(&variant, f.Variants[0].ID).Error)
	require.Equal(t, 3, variant.Stock)

	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", f.Cart.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)

	user := models.User{Email: "empty@test.mx", PasswordHash: "x", Name: "Test"}
	require.NoError(t, db.Create(&user).Error)

	_, err := svc.CreateOrderFromCart(context.Background(), user.ID, checkout.CreateOrderInput{
		ShippingAddressID: 1, BillingAddressID: 1,
	})
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestCreateOrderForeignAddressRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{100, 1, 5})

	other := models.User{Email: "other@test.mx", PasswordHash: "x", Name: "Other"}
	require.NoError(t, db.Create(&other).Error)
	foreign := models.Address{
		UserID: other.ID, FirstName: "Other", Street: "Calle 1",
		City: "GDL", State: "JAL", PostalCode: "44100",
	}
	require.NoError(t, db.Create(&foreign).Error)

	_, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: foreign.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.ErrorIs(t, err, checkout.ErrInvalidShippingAddress)
}

// A stock failure on any line must leave no order, no stock change and an
// intact cart.
func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{100, 2, 10}, [3]int{200, 5, 3})

	_, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	var stockErr *checkout.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 3, stockErr.Available)
	require.Equal(t, uint(5), stockErr.Requested)

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.Zero(t, orders)

	var first models.ProductVariant
	require.NoError(t, db.First(&first, f.Variants[0].ID).Error)
	require.Equal(t, 10, first.Stock)

	var items int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", f.Cart.ID).Count(&items).Error)
	require.Equal(t, int64(2), items)
}

func TestCreateOrderInactiveProductRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{100, 1, 5})

	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", f.Variants[0].ProductID).
		Update("is_active", false).Error)

	_, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	var inactiveErr *checkout.InactiveError
	require.ErrorAs(t, err, &inactiveErr)
}

// The snapshot captured at session-creation time wins over later cart edits.
func TestCreatePaidOrderUsesSnapshot(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{250, 2, 10})

	snapshot := []checkout.SnapshotLine{{
		VariantID: f.Variants[0].ID,
		Name:      "Playera 1",
		SKU:       f.Variants[0].SKU,
		Price:     250,
		Quantity:  2,
	}}

	// The customer sneaks in a third unit after the session was created.
	require.NoError(t, db.Model(&models.CartItem{}).
		Where("cart_id = ?", f.Cart.ID).
		Update("quantity", 3).Error)

	sessionID := "cs_test_snap"
	order, err := svc.CreatePaidOrder(context.Background(), checkout.PaidOrderParams{
		UserID:            f.User.ID,
		CartID:            f.Cart.ID,
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
		Currency:          "mxn",
		SessionID:         &sessionID,
		Snapshot:          snapshot,
		PaidAt:            time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	require.Equal(t, 500.0, order.SubtotalAmount)
	require.Equal(t, 580.0, order.TotalAmount) // free shipping at 500
	require.Len(t, order.Items, 1)
	require.Equal(t, uint(2), order.Items[0].Quantity)

	var variant models.ProductVariant
	require.NoError(t, db.First(&variant, f.Variants[0].ID).Error)
	require.Equal(t, 8, variant.Stock)

	var remaining int64
	require.NoError(t, db.Model(&models.CartItem{}).Where("cart_id = ?", f.Cart.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestCreatePaidOrderForeignCartRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{100, 1, 5})

	other := models.User{Email: "intruder@test.mx", PasswordHash: "x", Name: "Other"}
	require.NoError(t, db.Create(&other).Error)

	_, err := svc.CreatePaidOrder(context.Background(), checkout.PaidOrderParams{
		UserID:            other.ID,
		CartID:            f.Cart.ID,
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
		PaidAt:            time.Now(),
	})
	require.ErrorIs(t, err, checkout.ErrCartMismatch)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{150, 4, 10})

	order, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.NoError(t, err)

	var variant models.ProductVariant
	require.NoError(t, db.First(&variant, f.Variants[0].ID).Error)
	require.Equal(t, 6, variant.Stock)

	cancelled, err := svc.CancelOrder(context.Background(), f.User.ID, order.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	require.NoError(t, db.First(&variant, f.Variants[0].ID).Error)
	require.Equal(t, 10, variant.Stock)
}

func TestCancelOrderRestrictions(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{150, 1, 10})

	order, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.NoError(t, err)

	other := models.User{Email: "stranger@test.mx", PasswordHash: "x", Name: "Other"}
	require.NoError(t, db.Create(&other).Error)
	_, err = svc.CancelOrder(context.Background(), other.ID, order.ID, false)
	require.ErrorIs(t, err, checkout.ErrNotOwner)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", models.OrderStatusShipped).Error)
	_, err = svc.CancelOrder(context.Background(), f.User.ID, order.ID, false)
	require.ErrorIs(t, err, checkout.ErrOrderShipped)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", models.OrderStatusDelivered).Error)
	_, err = svc.CancelOrder(context.Background(), f.User.ID, order.ID, false)
	require.ErrorIs(t, err, checkout.ErrOrderDelivered)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", models.OrderStatusCancelled).Error)
	_, err = svc.CancelOrder(context.Background(), f.User.ID, order.ID, false)
	require.ErrorIs(t, err, checkout.ErrAlreadyCancelled)
}

func TestUpdateOrderStatus(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{150, 1, 10})

	order, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(context.Background(), order.ID, checkout.UpdateStatusInput{Status: "teleported"})
	require.ErrorIs(t, err, checkout.ErrUnknownStatus)

	_, err = svc.UpdateOrderStatus(context.Background(), order.ID, checkout.UpdateStatusInput{
		Status:         models.OrderStatusShipped,
		TrackingNumber: "MX123456789",
	})
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(context.Background(), order.ID, checkout.UpdateStatusInput{
		Status: models.OrderStatusDelivered,
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, order.ID).Error)
	require.Equal(t, models.OrderStatusDelivered, stored.Status)
	require.Equal(t, "MX123456789", stored.TrackingNumber)
	require.NotNil(t, stored.ActualDeliveryDate)
}

func TestUpdateOrderStatusAbsorbing(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newService(db)
	f := seedCart(t, db, [3]int{150, 1, 10})

	order, err := svc.CreateOrderFromCart(context.Background(), f.User.ID, checkout.CreateOrderInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.NoError(t, err)

	_, err = svc.CancelOrder(context.Background(), f.User.ID, order.ID, false)
	require.NoError(t, err)

	for _, next := range []string{
		models.OrderStatusPending,
		models.OrderStatusPaid,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusRefunded,
	} {
		_, err = svc.UpdateOrderStatus(context.Background(), order.ID, checkout.UpdateStatusInput{Status: next})
		require.ErrorIs(t, err, checkout.ErrStatusLocked, "transition to %s", next)
	}
}

func TestCreateCheckoutSessionMetadata(t *testing.T) {
	db := newTestDB(t)
	svc, gw := newService(db)
	f := seedCart(t, db, [3]int{199, 2, 5}) // subtotal 398, shipping line expected

	res, err := svc.CreateCheckoutSession(context.Background(), f.User.ID, checkout.CheckoutInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
		CustomerNote:      "timbre roto",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_test_123", res.SessionID)
	require.NotEmpty(t, res.SessionURL)

	require.NotNil(t, gw.sessionParams)
	meta := gw.sessionParams.Metadata
	require.Equal(t, fmt.Sprint(f.User.ID), meta["userID"])
	require.Equal(t, fmt.Sprint(f.Cart.ID), meta["cartID"])
	require.Equal(t, "timbre roto", meta["customerNote"])

	snap := checkout.DecodeSnapshot(meta["cartSnapshot"])
	require.Len(t, snap, 1)
	require.Equal(t, 199.0, snap[0].Price)
	require.Equal(t, uint(2), snap[0].Quantity)

	// product line plus the flat shipping line
	require.Len(t, gw.sessionParams.LineItems, 2)
	require.Equal(t, "Envío estándar", gw.sessionParams.LineItems[1].Name)
	require.Equal(t, int64(9900), gw.sessionParams.LineItems[1].UnitAmount)

	// no order yet and no stock reserved
	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.Zero(t, orders)
	var variant models.ProductVariant
	require.NoError(t, db.First(&variant, f.Variants[0].ID).Error)
	require.Equal(t, 5, variant.Stock)

	// the gateway customer is created once and persisted
	var user models.User
	require.NoError(t, db.First(&user, f.User.ID).Error)
	require.NotNil(t, user.StripeCustomerID)
	require.Equal(t, 1, gw.customers)
}

func TestCreatePaymentIntentAmounts(t *testing.T) {
	db := newTestDB(t)
	svc, gw := newService(db)
	f := seedCart(t, db, [3]int{300, 2, 5}) // subtotal 600, free shipping

	res, err := svc.CreatePaymentIntent(context.Background(), f.User.ID, checkout.CheckoutInput{
		ShippingAddressID: f.Shipping.ID,
		BillingAddressID:  f.Billing.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 600.0, res.Subtotal)
	require.Equal(t, 96.0, res.Tax)
	require.Equal(t, 0.0, res.Shipping)
	require.Equal(t, 696.0, res.Total)
	require.Equal(t, int64(69600), res.Amount)

	require.NotNil(t, gw.intentParams)
	require.Equal(t, int64(69600), gw.intentParams.Amount)
	require.NotEmpty(t, gw.intentParams.Metadata["cartSnapshot"])
}
