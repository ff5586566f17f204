package database

import "time"

// ProductStatus drives the public status page display
type ProductStatus string

const (
	ProductActive      ProductStatus = "active"      // Undetected / Working
	ProductInactive    ProductStatus = "inactive"    // Detected / Not working
	ProductMaintenance ProductStatus = "maintenance" // Updating
)

// Product represents a storefront product
type Product struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	Game         string        `json:"game"`
	Description  string        `json:"description"`
	Image        string        `json:"image"`
	Status       ProductStatus `json:"status"`
	DisplayOrder int           `json:"display_order"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ProductVariant is a duration/price option of a product. Stock is not
// stored on the variant; it is derived from the license pools at read time.
type ProductVariant struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	Duration     string    `json:"duration"`
	PriceCents   int64     `json:"price_cents"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// LicenseStatus is the lifecycle state of an inventoried license key
type LicenseStatus string

const (
	LicenseUnused  LicenseStatus = "unused"
	LicenseActive  LicenseStatus = "active"
	LicensePending LicenseStatus = "pending" // placeholder for a sale with no stock
	LicenseRevoked LicenseStatus = "revoked"
)

// License is a pre-generated credential handed to a customer on purchase.
// A nil ProductID and VariantID means general stock; a nil VariantID with a
// ProductID set means product-wide stock.
type License struct {
	ID            string        `json:"id"`
	LicenseKey    string        `json:"license_key"`
	ProductID     *string       `json:"product_id"`
	VariantID     *string       `json:"variant_id"`
	ProductName   *string       `json:"product_name"`
	Status        LicenseStatus `json:"status"`
	CustomerEmail *string       `json:"customer_email"`
	OrderID       *string       `json:"order_id"`
	AssignedAt    *time.Time    `json:"assigned_at"`
	ExpiresAt     *time.Time    `json:"expires_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderRefunded  OrderStatus = "refunded"
	OrderDisputed  OrderStatus = "disputed"
	OrderExpired   OrderStatus = "expired"
)

// Order is a snapshot of a purchase. BillingAddress and Metadata hold
// JSON-encoded strings in plain TEXT columns, matching the historical
// storage format.
type Order struct {
	ID                  string      `json:"id"`
	OrderNumber         string      `json:"order_number"`
	CustomerEmail       string      `json:"customer_email"`
	CustomerName        *string     `json:"customer_name"`
	AmountCents         int64       `json:"amount_cents"`
	Currency            string      `json:"currency"`
	Status              OrderStatus `json:"status"`
	PaymentMethod       *string     `json:"payment_method"`
	PaymentIntentID     *string     `json:"payment_intent_id"`
	StripeSessionID     *string     `json:"stripe_session_id"`
	CouponCode          *string     `json:"coupon_code"`
	CouponDiscountCents *int64      `json:"coupon_discount_cents"`
	BillingAddress      *string     `json:"billing_address"`
	Metadata            *string     `json:"metadata"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// OrderItem is one purchased line of an order
type OrderItem struct {
	ID             int64     `json:"id"`
	OrderID        string    `json:"order_id"`
	ProductID      *string   `json:"product_id"`
	VariantID      *string   `json:"variant_id"`
	ProductName    string    `json:"product_name"`
	Duration       *string   `json:"duration"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionStatus is the lifecycle state of a provider checkout session
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionFailed    SessionStatus = "failed"
)

// CheckoutSession binds a provider checkout session to an order
type CheckoutSession struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	Provider        string        `json:"provider"`
	OrderID         *string       `json:"order_id"`
	Status          SessionStatus `json:"status"`
	AmountCents     int64         `json:"amount_cents"`
	Currency        string        `json:"currency"`
	CustomerEmail   *string       `json:"customer_email"`
	PaymentIntentID *string       `json:"payment_intent_id"`
	PaidAt          *time.Time    `json:"paid_at"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// DiscountType distinguishes percentage coupons from flat-amount ones
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed" // DiscountValue is cents
)

// Coupon is an admin-managed discount code. Codes are stored uppercase.
type Coupon struct {
	ID            string       `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	MaxUses       *int         `json:"max_uses"`
	CurrentUses   int          `json:"current_uses"`
	IsActive      bool         `json:"is_active"`
	ExpiresAt     *time.Time   `json:"expires_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Webhook is an admin-configured outbound notification target
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TeamMemberStatus is the invite lifecycle state of a team member
type TeamMemberStatus string

const (
	TeamPending TeamMemberStatus = "pending"
	TeamActive  TeamMemberStatus = "active"
)

// TeamMember is an admin dashboard user
type TeamMember struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Name         *string          `json:"name"`
	PasswordHash string           `json:"-"`
	Role         string           `json:"role"`
	Permissions  []string         `json:"permissions"`
	Status       TeamMemberStatus `json:"status"`
	LastLoginAt  *time.Time       `json:"last_login_at"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// AuditEvent is a recorded admin login/logout event
type AuditEvent struct {
	ID              string    `json:"id"`
	EventType       string    `json:"event_type"` // login or logout
	ActorRole       string    `json:"actor_role"`
	ActorIdentifier string    `json:"actor_identifier"`
	IPAddress       *string   `json:"ip_address"`
	UserAgent       *string   `json:"user_agent"`
	CreatedAt       time.Time `json:"created_at"`
}
