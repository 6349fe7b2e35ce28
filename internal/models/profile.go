package models

import "time"

// Profile is a merchant account. It owns the issuer secret every card's key
// material derives from, and the two payment-rail sub-wallets.
type Profile struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IssuerSecret string    `json:"-"` // 32 hex chars, never leaves the server
	BTCWalletID  string    `json:"btc_wallet_id"`
	USDWalletID  string    `json:"usd_wallet_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
