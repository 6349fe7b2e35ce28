package models

import "time"

// Card status values
const (
	CardStatusPending   = "PENDING"
	CardStatusActive    = "ACTIVE"
	CardStatusSuspended = "SUSPENDED"
	CardStatusDisabled  = "DISABLED"
	CardStatusWiped     = "WIPED"
)

// Wallet currencies
const (
	CurrencyBTC = "BTC"
	CurrencyUSD = "USD"
)

// Card is the spending-limit record bound to one physical NFC card. Balance
// and limits are integer minor units: satoshis for BTC cards, cents for USD
// cards.
type Card struct {
	ID          int64     `json:"id"`
	ProfileID   int64     `json:"profile_id"`
	UID         string    `json:"uid"` // 14 hex chars
	KeyVersion  uint32    `json:"key_version"`
	Currency    string    `json:"currency"`
	Balance     int64     `json:"balance"`
	MaxTxAmount *int64    `json:"max_tx_amount,omitempty"`
	DailyLimit  *int64    `json:"daily_limit,omitempty"`
	DailySpent  int64     `json:"daily_spent"`
	SpendDay    string    `json:"-"` // UTC day the daily_spent counter belongs to
	LastCounter uint32    `json:"last_counter"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
