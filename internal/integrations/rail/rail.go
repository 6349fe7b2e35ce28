// Package rail is the client for the Lightning payment rail's GraphQL API.
// Business failures (a payment that fails, an invoice that cannot be
// created) come back as typed results; only transport and protocol problems
// surface as errors.
package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/sirupsen/logrus"
)

// Client handles integration with the payment rail
type Client struct {
	url    string
	apiKey string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new payment rail client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.RailURL,
		apiKey: cfg.RailAPIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.RailTimeoutSeconds) * time.Second,
		},
		log: log,
	}
}

// Invoice is a created Lightning invoice
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
}

// PaymentStatus discriminates the outcome of a payment or transfer
type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILURE"
	PaymentStatusPending PaymentStatus = "PENDING"
)

// PaymentResult is the discriminated outcome of paying an invoice
type PaymentResult struct {
	Status      PaymentStatus
	Reason      string
	PaymentHash string
}

// TransferResult is the discriminated outcome of an intra-ledger transfer
type TransferResult struct {
	Status PaymentStatus
	Reason string
}

// InvoiceState is the settlement state of an issued invoice
type InvoiceState string

const (
	InvoiceStatePaid    InvoiceState = "PAID"
	InvoiceStatePending InvoiceState = "PENDING"
	InvoiceStateExpired InvoiceState = "EXPIRED"
)

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// sendRequest posts a GraphQL document and decodes the data envelope into out
func (c *Client) sendRequest(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debugf("rail response: %s", string(body))

	envelope := struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("rail error: %s", envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

const createInvoiceQuery = `
	mutation lnInvoiceCreateOnBehalfOfRecipient($input: LnInvoiceCreateOnBehalfOfRecipientInput!) {
		lnInvoiceCreateOnBehalfOfRecipient(input: $input) {
			invoice { paymentRequest paymentHash }
			errors { message }
		}
	}`

// CreateInvoice asks the rail for a new invoice paying amountSats into walletID
func (c *Client) CreateInvoice(ctx context.Context, walletID string, amountSats int64, memo string) (*Invoice, error) {
	var data struct {
		Result struct {
			Invoice *struct {
				PaymentRequest string `json:"paymentRequest"`
				PaymentHash    string `json:"paymentHash"`
			} `json:"invoice"`
			Errors []graphqlError `json:"errors"`
		} `json:"lnInvoiceCreateOnBehalfOfRecipient"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"recipientWalletId": walletID,
			"amount":            amountSats,
			"memo":              memo,
		},
	}
	if err := c.sendRequest(ctx, createInvoiceQuery, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Result.Errors) > 0 {
		return nil, fmt.Errorf("invoice creation rejected: %s", data.Result.Errors[0].Message)
	}
	if data.Result.Invoice == nil {
		return nil, fmt.Errorf("invoice creation returned no invoice")
	}
	c.log.Infof("Created invoice %s for %d sats", data.Result.Invoice.PaymentHash, amountSats)
	return &Invoice{
		PaymentRequest: data.Result.Invoice.PaymentRequest,
		PaymentHash:    data.Result.Invoice.PaymentHash,
	}, nil
}

const payInvoiceQuery = `
	mutation lnInvoicePaymentSend($input: LnInvoicePaymentInput!) {
		lnInvoicePaymentSend(input: $input) {
			status
			paymentHash
			errors { message }
		}
	}`

// PayInvoice pays a bolt11 invoice out of walletID. A failed payment is a
// result, not an error.
func (c *Client) PayInvoice(ctx context.Context, walletID, invoice string) (*PaymentResult, error) {
	var data struct {
		Result struct {
			Status      string         `json:"status"`
			PaymentHash string         `json:"paymentHash"`
			Errors      []graphqlError `json:"errors"`
		} `json:"lnInvoicePaymentSend"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"walletId":       walletID,
			"paymentRequest": invoice,
		},
	}
	if err := c.sendRequest(ctx, payInvoiceQuery, vars, &data); err != nil {
		return nil, err
	}

	result := &PaymentResult{
		Status:      PaymentStatus(data.Result.Status),
		PaymentHash: data.Result.PaymentHash,
	}
	if len(data.Result.Errors) > 0 {
		result.Reason = data.Result.Errors[0].Message
	}
	if result.Status != PaymentStatusSuccess && result.Reason == "" {
		result.Reason = fmt.Sprintf("payment status %s", result.Status)
	}
	return result, nil
}

const exchangeRateQuery = `
	query realtimePrice($currency: DisplayCurrency!) {
		realtimePrice(currency: $currency) {
			btcSatPrice { base offset }
		}
	}`

// GetExchangeRate returns the current price of one satoshi in the given
// display currency's minor units (cents per sat for USD).
func (c *Client) GetExchangeRate(ctx context.Context, currency string) (float64, error) {
	var data struct {
		RealtimePrice struct {
			BTCSatPrice struct {
				Base   float64 `json:"base"`
				Offset int     `json:"offset"`
			} `json:"btcSatPrice"`
		} `json:"realtimePrice"`
	}
	vars := map[string]interface{}{"currency": currency}
	if err := c.sendRequest(ctx, exchangeRateQuery, vars, &data); err != nil {
		return 0, err
	}

	rate := data.RealtimePrice.BTCSatPrice.Base
	for i := 0; i < data.RealtimePrice.BTCSatPrice.Offset; i++ {
		rate /= 10
	}
	if rate <= 0 {
		return 0, fmt.Errorf("rail returned non-positive rate %f", rate)
	}
	c.log.Debugf("Exchange rate for %s: %f minor units per sat", currency, rate)
	return rate, nil
}

const transferQuery = `
	mutation intraLedgerPaymentSend($input: IntraLedgerPaymentSendInput!) {
		intraLedgerPaymentSend(input: $input) {
			status
			errors { message }
		}
	}`

// TransferInternal moves amountSats between two of the issuer's sub-wallets
func (c *Client) TransferInternal(ctx context.Context, fromWalletID, toWalletID string, amountSats int64, memo string) (*TransferResult, error) {
	var data struct {
		Result struct {
			Status string         `json:"status"`
			Errors []graphqlError `json:"errors"`
		} `json:"intraLedgerPaymentSend"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"walletId":          fromWalletID,
			"recipientWalletId": toWalletID,
			"amount":            amountSats,
			"memo":              memo,
		},
	}
	if err := c.sendRequest(ctx, transferQuery, vars, &data); err != nil {
		return nil, err
	}

	result := &TransferResult{Status: PaymentStatus(data.Result.Status)}
	if len(data.Result.Errors) > 0 {
		result.Reason = data.Result.Errors[0].Message
	}
	if result.Status != PaymentStatusSuccess && result.Reason == "" {
		result.Reason = fmt.Sprintf("transfer status %s", result.Status)
	}
	return result, nil
}

const invoiceStatusQuery = `
	query lnInvoicePaymentStatus($input: LnInvoicePaymentStatusInput!) {
		lnInvoicePaymentStatus(input: $input) {
			status
		}
	}`

// InvoiceStatus reports the settlement state of an invoice by payment hash
func (c *Client) InvoiceStatus(ctx context.Context, paymentHash string) (InvoiceState, error) {
	var data struct {
		Result struct {
			Status string `json:"status"`
		} `json:"lnInvoicePaymentStatus"`
	}
	vars := map[string]interface{}{
		"input": map[string]interface{}{"paymentHash": paymentHash},
	}
	if err := c.sendRequest(ctx, invoiceStatusQuery, vars, &data); err != nil {
		return "", err
	}
	return InvoiceState(data.Result.Status), nil
}
