// Package bolt11 extracts the amount embedded in a Lightning invoice's
// human-readable part. The invoice amount is authoritative for withdrawals;
// client-declared amounts are never trusted.
package bolt11

import (
	"fmt"
	"strconv"
	"strings"
)

const satsPerBTC = 100_000_000

// Divisors for the bolt11 amount multiplier suffixes, relative to one BTC.
var multipliers = map[byte]int64{
	'm': 1_000,
	'u': 1_000_000,
	'n': 1_000_000_000,
	'p': 1_000_000_000_000,
}

// AmountSats parses a bolt11 invoice and returns its amount in satoshis,
// truncating fractional satoshis toward zero. An invoice without an amount
// is an error: a withdraw must pay exactly what the invoice asks.
func AmountSats(invoice string) (int64, error) {
	inv := strings.ToLower(strings.TrimSpace(invoice))
	sep := strings.LastIndex(inv, "1")
	if sep < 0 {
		return 0, fmt.Errorf("invalid invoice: no separator")
	}
	hrp := inv[:sep]
	if !strings.HasPrefix(hrp, "ln") {
		return 0, fmt.Errorf("invalid invoice: missing ln prefix")
	}

	// Skip the network prefix (bc, tb, bcrt, ...) to reach the digits.
	rest := hrp[2:]
	start := 0
	for start < len(rest) && (rest[start] < '0' || rest[start] > '9') {
		start++
	}
	amount := rest[start:]
	if amount == "" {
		return 0, fmt.Errorf("invoice carries no amount")
	}

	divisor := int64(1)
	last := amount[len(amount)-1]
	if last < '0' || last > '9' {
		d, ok := multipliers[last]
		if !ok {
			return 0, fmt.Errorf("invalid amount multiplier %q", string(last))
		}
		divisor = d
		amount = amount[:len(amount)-1]
	}
	if amount == "" {
		return 0, fmt.Errorf("invoice carries no amount")
	}

	value, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if value > (1<<63-1)/satsPerBTC {
		return 0, fmt.Errorf("amount %d out of range", value)
	}

	return value * satsPerBTC / divisor, nil
}
