// Package provider describes the payment provider the verification engine
// queries for order status and the merchant checkout it starts.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned when the provider cannot resolve an order by id.
// Some merchant checkout order types are never queryable this way.
var ErrOrderNotFound = errors.New("provider: order not found")

// ErrNotConfigured is returned when the provider credentials are missing.
var ErrNotConfigured = errors.New("provider: not configured")

// OrderDetails is the provider's view of one order.
type OrderDetails struct {
	OrderId               string
	MerchantRecognitionId string
	StatusCode            string
	Status                string
	Successful            bool
	ActualAmount          decimal.NullDecimal
	ExpectedAmount        decimal.NullDecimal
	TxHash                string
}

// Amount prefers the settled amount and falls back to the expected one.
func (d *OrderDetails) Amount() decimal.NullDecimal {
	if d.ActualAmount.Valid {
		return d.ActualAmount
	}
	return d.ExpectedAmount
}

type OrderStatusClient interface {
	GetOrderStatus(ctx context.Context, orderId string) (*OrderDetails, error)
}

type CheckoutRequest struct {
	MerchantRecognitionId string
	Email                 string
	FullName              string
	FiatType              string
	LogoURL               string
}

type CheckoutSession struct {
	Token       string
	RedirectURL string
	ClientKey   string
	GrossAmount int64
	Currency    string
}

type CheckoutClient interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Client is the full provider surface used by the service layer.
type Client interface {
	OrderStatusClient
	CheckoutClient
}
