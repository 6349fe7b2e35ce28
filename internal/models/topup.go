package models

import "time"

// PendingTopUp tracks a top-up invoice between creation and settlement. The
// payer may pay at any time up to invoice expiry, so these records must
// survive restarts.
type PendingTopUp struct {
	PaymentHash string    `json:"payment_hash"`
	CardID      int64     `json:"card_id"`
	AmountSats  int64     `json:"amount_sats"`
	Currency    string    `json:"currency"`
	Processed   bool      `json:"processed"`
	CreatedAt   time.Time `json:"created_at"`
}
