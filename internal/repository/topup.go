package repository

import (
	"database/sql"
	"fmt"

	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

// StorePendingTopUp persists a top-up awaiting settlement, keyed by payment hash
func (r *Repository) StorePendingTopUp(p *models.PendingTopUp) error {
	query := `
		INSERT INTO pos.pending_topups (payment_hash, card_id, amount_sats, currency, processed, created_at)
		VALUES ($1, $2, $3, $4, FALSE, CURRENT_TIMESTAMP)
		RETURNING created_at`
	err := r.db.QueryRow(query, p.PaymentHash, p.CardID, p.AmountSats, p.Currency).
		Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store pending top-up: %w", err)
	}
	return nil
}

// GetPendingTopUp retrieves a pending top-up by payment hash, or nil if none
func (r *Repository) GetPendingTopUp(paymentHash string) (*models.PendingTopUp, error) {
	p := &models.PendingTopUp{}
	query := `
		SELECT payment_hash, card_id, amount_sats, currency, processed, created_at
		FROM pos.pending_topups
		WHERE payment_hash = $1`
	err := r.db.QueryRow(query, paymentHash).
		Scan(&p.PaymentHash, &p.CardID, &p.AmountSats, &p.Currency, &p.Processed, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending top-up: %w", err)
	}
	return p, nil
}

// MarkTopUpProcessed flips the processed flag exactly once. A false return
// means another settlement of the same hash already won.
func (r *Repository) MarkTopUpProcessed(paymentHash string) (bool, error) {
	query := `
		UPDATE pos.pending_topups SET processed = TRUE
		WHERE payment_hash = $1 AND processed = FALSE`
	res, err := r.db.Exec(query, paymentHash)
	if err != nil {
		return false, fmt.Errorf("failed to mark top-up processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark top-up processed: %w", err)
	}
	return n > 0, nil
}

// ListUnprocessedTopUps retrieves every pending top-up not yet settled
func (r *Repository) ListUnprocessedTopUps() ([]models.PendingTopUp, error) {
	query := `
		SELECT payment_hash, card_id, amount_sats, currency, processed, created_at
		FROM pos.pending_topups
		WHERE processed = FALSE
		ORDER BY created_at`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending top-ups: %w", err)
	}
	defer rows.Close()

	var pending []models.PendingTopUp
	for rows.Next() {
		p := models.PendingTopUp{}
		if err := rows.Scan(&p.PaymentHash, &p.CardID, &p.AmountSats, &p.Currency,
			&p.Processed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending top-up: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// DeletePendingTopUp discards a pending top-up whose invoice expired or failed
func (r *Repository) DeletePendingTopUp(paymentHash string) error {
	query := `DELETE FROM pos.pending_topups WHERE payment_hash = $1 AND processed = FALSE`
	if _, err := r.db.Exec(query, paymentHash); err != nil {
		return fmt.Errorf("failed to delete pending top-up: %w", err)
	}
	return nil
}
