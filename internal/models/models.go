package models

import (
	"time"
)

type User struct {
	ID               uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email            string  `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash     string  `gorm:"not null"                 json:"-"`
	Name             string  `gorm:"not null"                 json:"name"`
	LastName         string  `json:"last_name"`
	PhoneNumber      string  `json:"phone_number"`
	Role             string  `gorm:"not null;default:user"    json:"role"`
	StripeCustomerID *string `gorm:"uniqueIndex"              json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"uniqueIndex;not null" json:"-"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	Role      string `json:"role"`
	JTI       string `json:"jti"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type Address struct {
	ID                uint   `gorm:"primaryKey"     json:"id"`
	UserID            uint   `gorm:"index;not null" json:"user_id"`
	FirstName         string `gorm:"not null"       json:"first_name"`
	LastName          string `json:"last_name"`
	Street            string `gorm:"not null"       json:"street"`
	Neighborhood      string `json:"neighborhood"`
	City              string `gorm:"not null"       json:"city"`
	State             string `gorm:"not null"       json:"state"`
	PostalCode        string `gorm:"not null"       json:"postal_code"`
	CountryCode       string `gorm:"not null;default:MX" json:"country_code"`
	IsDefaultShipping bool   `gorm:"default:false"  json:"is_default_shipping"`
	IsDefaultBilling  bool   `gorm:"default:false"  json:"is_default_billing"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey"       json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type Gender struct {
	ID   uint   `gorm:"primaryKey"       json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type Size struct {
	ID    uint   `gorm:"primaryKey"       json:"id"`
	Label string `gorm:"uniqueIndex;not null" json:"label"`
}

type Color struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null"   json:"name"`
	HexCode string `json:"hex_code"`
}

type Product struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"not null"                 json:"name"`
	Description string `json:"description"`
	CategoryID  uint   `gorm:"index"                    json:"category_id"`
	GenderID    uint   `gorm:"index"                    json:"gender_id"`
	IsActive    bool   `gorm:"default:true"             json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Category Category         `json:"category,omitempty"`
	Gender   Gender           `json:"gender,omitempty"`
	Variants []ProductVariant `json:"variants,omitempty"`
	Images   []ProductImage   `json:"images,omitempty"`
}

type ProductVariant struct {
	ID            uint    `gorm:"primaryKey"           json:"id"`
	ProductID     uint    `gorm:"index;not null"       json:"product_id"`
	SizeID        uint    `json:"size_id"`
	ColorID       uint    `json:"color_id"`
	SKU           string  `gorm:"uniqueIndex;not null" json:"sku"`
	Price         float64 `gorm:"not null"             json:"price"`
	Stock         int     `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	IsActive      bool    `gorm:"default:true"         json:"is_active"`
	StripePriceID *string `json:"-"`

	Product Product `json:"-"`
	Size    Size    `json:"size,omitempty"`
	Color   Color   `json:"color,omitempty"`
}

type ProductImage struct {
	ID        uint   `gorm:"primaryKey"     json:"id"`
	ProductID uint   `gorm:"index;not null" json:"product_id"`
	ImageURL  string `gorm:"not null"       json:"image_url"`
	IsMain    bool   `gorm:"default:false"  json:"is_main"`
}

type Cart struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Items []CartItem `json:"items,omitempty"`
}

// CartItem is unique per (cart, variant): re-adding the same variant must
// increment quantity, never create a second row.
type CartItem struct {
	ID               uint      `gorm:"primaryKey"                                   json:"id"`
	CartID           uint      `gorm:"not null;uniqueIndex:idx_cart_variant"        json:"cart_id"`
	ProductVariantID uint      `gorm:"not null;uniqueIndex:idx_cart_variant"        json:"product_variant_id"`
	Quantity         uint      `gorm:"not null;default:1;check:quantity > 0"        json:"quantity"`
	AddedAt          time.Time `gorm:"autoCreateTime"                               json:"added_at"`

	ProductVariant ProductVariant `json:"product_variant,omitempty"`
}

const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

type Order struct {
	ID                    uint    `gorm:"primaryKey"            json:"id"`
	UserID                uint    `gorm:"index;not null"        json:"user_id"`
	ShippingAddressID     uint    `gorm:"not null"              json:"shipping_address_id"`
	BillingAddressID      uint    `gorm:"not null"              json:"billing_address_id"`
	Status                string  `gorm:"not null;default:pending" json:"status"`
	SubtotalAmount        float64 `gorm:"not null"              json:"subtotal_amount"`
	TaxAmount             float64 `gorm:"not null"              json:"tax_amount"`
	ShippingAmount        float64 `gorm:"not null"              json:"shipping_amount"`
	TotalAmount           float64 `gorm:"not null"              json:"total_amount"`
	Currency              string  `gorm:"not null;default:mxn"  json:"currency"`
	PaymentMethod         string  `json:"payment_method"`
	StripeSessionID       *string `gorm:"uniqueIndex"           json:"-"`
	StripePaymentIntentID *string `gorm:"uniqueIndex"           json:"-"`
	PaidAt                *time.Time `json:"paid_at"`
	TrackingNumber        string     `json:"tracking_number"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
	ActualDeliveryDate    *time.Time `json:"actual_delivery_date"`
	CustomerNote          string     `json:"customer_note"`
	AdminNote             string     `json:"admin_note"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	Items           []OrderItem `json:"items,omitempty"`
	ShippingAddress Address     `gorm:"foreignKey:ShippingAddressID" json:"shipping_address,omitempty"`
	BillingAddress  Address     `gorm:"foreignKey:BillingAddressID"  json:"billing_address,omitempty"`
}

// OrderItem snapshots the purchased line at order-creation time, so later
// catalog edits never rewrite order history.
type OrderItem struct {
	ID               uint    `gorm:"primaryKey"     json:"id"`
	OrderID          uint    `gorm:"index;not null" json:"order_id"`
	ProductVariantID uint    `gorm:"not null"       json:"product_variant_id"`
	ProductName      string  `gorm:"not null"       json:"product_name"`
	VariantSKU       string  `gorm:"not null"       json:"variant_sku"`
	PriceAtPurchase  float64 `gorm:"not null"       json:"price_at_purchase"`
	Quantity         uint    `gorm:"not null"       json:"quantity"`
	Subtotal         float64 `gorm:"not null"       json:"subtotal"`
	DiscountAmount   float64 `gorm:"default:0"      json:"discount_amount"`
}

const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// WebhookEvent is the idempotency ledger for payment-provider events: one row
// per delivered event ID, created before any side effect runs.
type WebhookEvent struct {
	ID           uint       `gorm:"primaryKey"           json:"id"`
	EventID      string     `gorm:"uniqueIndex;not null" json:"event_id"`
	EventType    string     `gorm:"not null"             json:"event_type"`
	Status       string     `gorm:"not null;default:pending" json:"status"`
	Processed    bool       `gorm:"default:false"        json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at"`
	ErrorMessage string     `json:"error_message"`
	RetryCount   int        `gorm:"default:0"            json:"retry_count"`
	Payload      []byte     `json:"-"`
	ReceivedAt   time.Time  `json:"received_at"`
}

type Favorite struct {
	ID        uint      `gorm:"primaryKey"                          json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_product" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_user_product" json:"product_id"`
	CreatedAt time.Time `json:"created_at"`

	Product Product `json:"product,omitempty"`
}
