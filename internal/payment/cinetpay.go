// Package payment queries the CinetPay gateway for the settlement state of a transaction.
package payment

import (
	"context"
	"net/http"
	"strconv"

	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

const serviceCinetPay = "cinetpay"

// Gateway statuses that settle an order. Anything else means "not yet".
const (
	StatusAccepted = "ACCEPTED"
	StatusRefused  = "REFUSED"
)

// Config holds the CinetPay merchant credentials.
type Config struct {
	CheckURL string
	APIKey   string
	SiteID   string
}

// Transaction is the part of the check response reconciliation cares about.
type Transaction struct {
	Code          string // CinetPay response code, "00" on success
	Message       string
	Status        string // ACCEPTED, REFUSED, PENDING, WAITING_FOR_CUSTOMER, ...
	PaymentMethod string
	Amount        string
}

// Settled reports whether Status is a final gateway outcome.
func (t Transaction) Settled() bool {
	return t.Status == StatusAccepted || t.Status == StatusRefused
}

// Client checks transactions against the CinetPay payment/check endpoint.
type Client struct {
	http remote.Doer
	cfg  Config
}

// NewClient returns a CinetPay client.
func NewClient(httpClient remote.Doer, cfg Config) *Client {
	return &Client{http: httpClient, cfg: cfg}
}

type checkRequest struct {
	APIKey        string `json:"apikey"`
	SiteID        string `json:"site_id"`
	TransactionID string `json:"transaction_id"`
}

type checkResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status        string      `json:"status"`
		PaymentMethod string      `json:"payment_method"`
		Amount        interface{} `json:"amount"`
	} `json:"data"`
}

// CheckTransaction returns the gateway view of the transaction identified by the order code.
// The query is read-only and safe to repeat.
func (c *Client) CheckTransaction(ctx context.Context, code string) (*Transaction, error) {
	var out checkResponse
	err := remote.Call(ctx, c.http, remote.Request{
		Service: serviceCinetPay,
		Op:      "check_transaction",
		Method:  http.MethodPost,
		URL:     c.cfg.CheckURL,
		Body: checkRequest{
			APIKey:        c.cfg.APIKey,
			SiteID:        c.cfg.SiteID,
			TransactionID: code,
		},
	}, &out)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		Code:          out.Code,
		Message:       out.Message,
		Status:        out.Data.Status,
		PaymentMethod: out.Data.PaymentMethod,
	}
	switch a := out.Data.Amount.(type) {
	case string:
		tx.Amount = a
	case float64:
		tx.Amount = strconv.FormatFloat(a, 'f', -1, 64)
	}
	return tx, nil
}
