package orders

import "fmt"

type ShippingStatus string

const (
	ShippingNotYetShipped ShippingStatus = "not_yet_shipped"
	ShippingProcessing    ShippingStatus = "processing"
	ShippingShipped       ShippingStatus = "shipped"
	ShippingDelivered     ShippingStatus = "delivered"
	ShippingCancelled     ShippingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Cancellation is only reachable while stock is still reserved and the parcel
// has not left, so shipped/delivered orders cannot be cancelled.
var validNextShipping = map[ShippingStatus]map[ShippingStatus]bool{
	ShippingNotYetShipped: {ShippingProcessing: true, ShippingCancelled: true},
	ShippingProcessing:    {ShippingShipped: true, ShippingCancelled: true},
	ShippingShipped:       {ShippingDelivered: true},
	ShippingDelivered:     {},
	ShippingCancelled:     {},
}

var validNextPayment = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:  {PaymentPaid: true, PaymentFailed: true},
	PaymentPaid:     {PaymentRefunded: true},
	PaymentFailed:   {},
	PaymentRefunded: {},
}

func CanTransitionShipping(from, to ShippingStatus) bool {
	return validNextShipping[from][to]
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validNextPayment[from][to]
}

func ToShippingStatus(s string) (ShippingStatus, error) {
	status := ShippingStatus(s)
	if _, ok := validNextShipping[status]; !ok {
		return "", fmt.Errorf("invalid shipping status %q", s)
	}
	return status, nil
}

func ToPaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if _, ok := validNextPayment[status]; !ok {
		return "", fmt.Errorf("invalid payment status %q", s)
	}
	return status, nil
}
