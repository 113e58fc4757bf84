package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Packaging string          `json:"packaging"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Address is copied into the order at checkout. Later edits to the user's
// address book never touch placed orders.
type Address struct {
	FullName    string `json:"full_name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phone_number"`
}

func (a Address) Validate() error {
	required := []struct {
		field, value string
	}{
		{"full_name", a.FullName},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
		{"phone_number", a.PhoneNumber},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: missing %s", ErrAddressInvalid, r.field)
		}
	}
	return nil
}

// LineItem is a snapshot taken at order-creation time. The catalog price or
// name may change afterwards; the order keeps what was actually charged.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Packaging   string          `json:"packaging,omitempty"`
}

// Order is immutable once placed except for the status fields, waybill and
// delivered timestamp.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Items           []LineItem      `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Discount        decimal.Decimal `json:"discount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ShippingStatus  ShippingStatus  `json:"shipping_status"`
	WaybillNumber   string          `json:"waybill_number,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
}

// Reconciled reports whether final_price = subtotal + shipping_fee - discount.
func (o Order) Reconciled() bool {
	return o.Subtotal.Add(o.ShippingFee).Sub(o.Discount).Equal(o.FinalPrice)
}

// TotalUnits is the summed quantity across all line items.
func (o Order) TotalUnits() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
