package models

import "time"

// Transaction types
const (
	TransactionWithdraw = "WITHDRAW"
	TransactionTopUp    = "TOPUP"
)

// Transaction records one committed balance mutation on a card. Amount and
// BalanceAfter are in the card's minor units.
type Transaction struct {
	ID           int64     `json:"id"`
	CardID       int64     `json:"card_id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	PaymentHash  string    `json:"payment_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
