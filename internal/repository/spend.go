package repository

import (
	"database/sql"
	"fmt"

	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

// UpdateCounterIfGreater persists a tap counter only if it is strictly
// greater than the stored one. Of two concurrent taps carrying the same
// counter, exactly one call returns true.
func (r *Repository) UpdateCounterIfGreater(cardID int64, counter uint32) (bool, error) {
	query := `
		UPDATE pos.cards SET last_counter = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND last_counter < $2`
	res, err := r.db.Exec(query, cardID, counter)
	if err != nil {
		return false, fmt.Errorf("failed to update counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update counter: %w", err)
	}
	return n > 0, nil
}

// ReserveSpend atomically decrements the balance and increments the daily
// spend, enforcing status, balance and limit preconditions in one statement.
// day is the current UTC day; a stored spend_day from an earlier day means
// the daily counter restarts at zero before the new spend is applied.
// Returns the post-reservation balance and whether the reservation held.
func (r *Repository) ReserveSpend(cardID int64, amount int64, day string) (int64, bool, error) {
	query := `
		UPDATE pos.cards
		SET balance = balance - $2,
		    daily_spent = CASE WHEN spend_day = $3 THEN daily_spent + $2 ELSE $2 END,
		    spend_day = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		  AND status = $4
		  AND balance >= $2
		  AND (max_tx_amount IS NULL OR $2 <= max_tx_amount)
		  AND (daily_limit IS NULL
		       OR (CASE WHEN spend_day = $3 THEN daily_spent ELSE 0 END) + $2 <= daily_limit)
		RETURNING balance`
	var balance int64
	err := r.db.QueryRow(query, cardID, amount, day, models.CardStatusActive).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve spend: %w", err)
	}
	return balance, true, nil
}

// RollbackSpend reverses a reservation after a failed payment, restoring the
// exact pre-reservation balance and daily spend.
func (r *Repository) RollbackSpend(cardID int64, amount int64) (int64, error) {
	query := `
		UPDATE pos.cards
		SET balance = balance + $2,
		    daily_spent = GREATEST(daily_spent - $2, 0),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING balance`
	var balance int64
	err := r.db.QueryRow(query, cardID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to rollback spend: %w", err)
	}
	return balance, nil
}

// CreditBalance adds amount to the card balance and returns the new balance
func (r *Repository) CreditBalance(cardID int64, amount int64) (int64, error) {
	query := `
		UPDATE pos.cards
		SET balance = balance + $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING balance`
	var balance int64
	err := r.db.QueryRow(query, cardID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}
	return balance, nil
}

// RecordTransaction appends a row to the transactions ledger
func (r *Repository) RecordTransaction(tx *models.Transaction) error {
	query := `
		INSERT INTO pos.transactions (card_id, type, amount, balance_after, payment_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, tx.CardID, tx.Type, tx.Amount, tx.BalanceAfter, tx.PaymentHash).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

// ListTransactions retrieves a card's ledger, newest first
func (r *Repository) ListTransactions(cardID int64) ([]models.Transaction, error) {
	query := `
		SELECT id, card_id, type, amount, balance_after, payment_hash, created_at
		FROM pos.transactions
		WHERE card_id = $1
		ORDER BY id DESC`
	rows, err := r.db.Query(query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx := models.Transaction{}
		if err := rows.Scan(&tx.ID, &tx.CardID, &tx.Type, &tx.Amount, &tx.BalanceAfter,
			&tx.PaymentHash, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
