// Package billing defines the document-generator boundary: the exact order
// snapshot an invoice is rendered from. Rendering beyond the default JSON
// artifact is an external concern.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shoply/orders/internal/orders"
)

// Invoice is the read-only view handed to a Generator. Amounts are rendered
// as fixed two-decimal strings so the artifact is stable.
type Invoice struct {
	InvoiceNumber string               `json:"invoice_number"`
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	IssuedAt      time.Time            `json:"issued_at"`
	BillTo        orders.Address       `json:"bill_to"`
	Lines         []InvoiceLine        `json:"lines"`
	Subtotal      string               `json:"subtotal"`
	ShippingFee   string               `json:"shipping_fee"`
	Discount      string               `json:"discount"`
	Total         string               `json:"total"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

type InvoiceLine struct {
	ProductID   string `json:"product_id"`
	Description string `json:"description"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Amount      string `json:"amount"`
}

// FromOrder builds the invoice snapshot. The same order always yields the
// same invoice apart from the issue timestamp.
func FromOrder(o orders.Order, issuedAt time.Time) Invoice {
	lines := make([]InvoiceLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, InvoiceLine{
			ProductID:   it.ProductID,
			Description: it.ProductName,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Quantity:    it.Quantity,
			Amount:      it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).StringFixed(2),
		})
	}
	return Invoice{
		InvoiceNumber: "INV-" + o.ID,
		OrderID:       o.ID,
		UserID:        o.UserID,
		IssuedAt:      issuedAt,
		BillTo:        o.ShippingAddress,
		Lines:         lines,
		Subtotal:      o.Subtotal.StringFixed(2),
		ShippingFee:   o.ShippingFee.StringFixed(2),
		Discount:      o.Discount.StringFixed(2),
		Total:         o.FinalPrice.StringFixed(2),
		PaymentStatus: o.PaymentStatus,
	}
}

// Generator produces a byte artifact from an invoice snapshot.
type Generator interface {
	Render(ctx context.Context, inv Invoice) ([]byte, error)
	ContentType() string
}

// JSONGenerator is the built-in renderer; a PDF renderer can replace it
// behind the same interface.
type JSONGenerator struct{}

var _ Generator = JSONGenerator{}

func (JSONGenerator) Render(_ context.Context, inv Invoice) ([]byte, error) {
	b, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}
	return b, nil
}

func (JSONGenerator) ContentType() string { return "application/json" }
