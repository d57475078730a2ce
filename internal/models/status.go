package models

import "fmt"

type OrderStatus string

// remember to add new statuses to validOrderStatuses
const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:        {},
	OrderStatusConfirmed:      {},
	OrderStatusPreparing:      {},
	OrderStatusOutForDelivery: {},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: invalid order status %q", ErrValidation, s)
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodUPI            PaymentMethod = "upi"
)

var validPaymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodCashOnDelivery: {},
	PaymentMethodCard:           {},
	PaymentMethodUPI:            {},
}

// ToPaymentMethod parses s; an empty value defaults to cash on delivery.
func ToPaymentMethod(s string) (PaymentMethod, error) {
	if s == "" {
		return PaymentMethodCashOnDelivery, nil
	}
	method := PaymentMethod(s)
	if _, ok := validPaymentMethods[method]; ok {
		return method, nil
	}
	return "", fmt.Errorf("%w: invalid payment method %q", ErrValidation, s)
}
