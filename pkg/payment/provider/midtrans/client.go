// Package midtrans implements the payment provider on top of the Midtrans
// Core API (status lookup) and Snap (checkout).
//
// The merchant order_id sent to Midtrans is our recognition id; the
// transaction_id Midtrans assigns is the Order ID the user copies from the
// receipt and later submits as evidence.
package midtrans

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"course-subscription-be/internal/config"
	"course-subscription-be/pkg/payment/provider"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

type Client struct {
	core       coreapi.Client
	snap       snap.Client
	cfg        config.MidtransConfig
	price      decimal.Decimal
	timeout    time.Duration
	configured bool
}

var _ provider.Client = (*Client)(nil)

func New(cfg config.MidtransConfig, billing config.BillingConfig) *Client {
	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}

	c := &Client{
		cfg:        cfg,
		price:      billing.PriceUsdc,
		timeout:    cfg.Timeout,
		configured: cfg.ServerKey != "",
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	c.core.New(cfg.ServerKey, env)
	c.snap.New(cfg.ServerKey, env)
	return c
}

// GetOrderStatus looks up a transaction by the Midtrans transaction id (or
// merchant order id; the API accepts both).
func (c *Client) GetOrderStatus(ctx context.Context, orderId string) (*provider.OrderDetails, error) {
	if !c.configured {
		return nil, provider.ErrNotConfigured
	}

	type result struct {
		resp *coreapi.TransactionStatusResponse
		err  *midtrans.Error
	}
	done := make(chan result, 1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	go func() {
		resp, err := c.core.CheckTransaction(orderId)
		done <- result{resp: resp, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("midtrans status lookup: %w", ctx.Err())
	case r = <-done:
	}

	if r.err != nil {
		if r.err.StatusCode == http.StatusNotFound {
			return nil, provider.ErrOrderNotFound
		}
		return nil, fmt.Errorf("midtrans status lookup: %s", r.err.GetMessage())
	}
	if r.resp == nil {
		return nil, nil
	}
	if r.resp.StatusCode == "404" {
		return nil, provider.ErrOrderNotFound
	}

	return c.toOrderDetails(r.resp), nil
}

func (c *Client) toOrderDetails(resp *coreapi.TransactionStatusResponse) *provider.OrderDetails {
	status := strings.ToLower(resp.TransactionStatus)
	details := &provider.OrderDetails{
		OrderId:               resp.TransactionID,
		MerchantRecognitionId: resp.OrderID,
		StatusCode:            resp.StatusCode,
		Status:                status,
		Successful:            resp.StatusCode == "200" && (status == "settlement" || status == "capture"),
	}

	if gross, err := decimal.NewFromString(resp.GrossAmount); err == nil {
		details.ActualAmount = decimal.NewNullDecimal(c.toUsdc(gross))
	}
	return details
}

// toUsdc converts a fiat gross amount into plan currency by pro-rating it
// against the configured fiat charge for one plan period.
func (c *Client) toUsdc(gross decimal.Decimal) decimal.Decimal {
	if c.cfg.GrossAmount <= 0 {
		return gross
	}
	return gross.Mul(c.price).Div(decimal.NewFromInt(c.cfg.GrossAmount)).Round(6)
}

func (c *Client) CreateCheckout(ctx context.Context, req provider.CheckoutRequest) (*provider.CheckoutSession, error) {
	if !c.configured {
		return nil, provider.ErrNotConfigured
	}

	currency := c.cfg.Currency
	if req.FiatType != "" {
		currency = strings.ToUpper(req.FiatType)
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.MerchantRecognitionId,
			GrossAmt: c.cfg.GrossAmount,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		Callbacks: &snap.Callbacks{
			Finish: c.cfg.FinishURL,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.FullName,
			Email: req.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    "annual-course-access",
				Price: c.cfg.GrossAmount,
				Qty:   1,
				Name:  "Annual course access",
			},
		},
		EnabledPayments: snap.AllSnapPaymentType,
	}

	type result struct {
		resp *snap.Response
		err  *midtrans.Error
	}
	done := make(chan result, 1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	go func() {
		resp, err := c.snap.CreateTransaction(snapReq)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("midtrans checkout: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("midtrans checkout: %s", r.err.GetMessage())
		}
		return &provider.CheckoutSession{
			Token:       r.resp.Token,
			RedirectURL: r.resp.RedirectURL,
			ClientKey:   c.cfg.ClientKey,
			GrossAmount: c.cfg.GrossAmount,
			Currency:    currency,
		}, nil
	}
}
