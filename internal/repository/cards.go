package repository

import (
	"database/sql"
	"fmt"

	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

const cardColumns = `id, profile_id, uid, key_version, currency, balance,
		max_tx_amount, daily_limit, daily_spent, spend_day, last_counter, status,
		created_at, updated_at`

func scanCard(row *sql.Row) (*models.Card, error) {
	card := &models.Card{}
	var maxTx, dailyLimit sql.NullInt64
	err := row.Scan(&card.ID, &card.ProfileID, &card.UID, &card.KeyVersion, &card.Currency,
		&card.Balance, &maxTx, &dailyLimit, &card.DailySpent, &card.SpendDay,
		&card.LastCounter, &card.Status, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if maxTx.Valid {
		card.MaxTxAmount = &maxTx.Int64
	}
	if dailyLimit.Valid {
		card.DailyLimit = &dailyLimit.Int64
	}
	return card, nil
}

// CreateCard registers a new card record
func (r *Repository) CreateCard(card *models.Card) error {
	query := `
		INSERT INTO pos.cards (profile_id, uid, key_version, currency, balance,
			max_tx_amount, daily_limit, daily_spent, spend_day, last_counter, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, '', 0, $8, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	var maxTx, dailyLimit sql.NullInt64
	if card.MaxTxAmount != nil {
		maxTx = sql.NullInt64{Int64: *card.MaxTxAmount, Valid: true}
	}
	if card.DailyLimit != nil {
		dailyLimit = sql.NullInt64{Int64: *card.DailyLimit, Valid: true}
	}
	err := r.db.QueryRow(query, card.ProfileID, card.UID, card.KeyVersion, card.Currency,
		card.Balance, maxTx, dailyLimit, card.Status).
		Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// GetCard retrieves a card by id
func (r *Repository) GetCard(id int64) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM pos.cards WHERE id = $1`
	card, err := scanCard(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return card, nil
}

// GetCardByUID retrieves a profile's card by its physical UID
func (r *Repository) GetCardByUID(profileID int64, uid string) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM pos.cards WHERE profile_id = $1 AND uid = $2 AND status <> $3`
	card, err := scanCard(r.db.QueryRow(query, profileID, uid, models.CardStatusWiped))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card by uid: %w", err)
	}
	return card, nil
}

// ListCards retrieves all cards owned by a profile
func (r *Repository) ListCards(profileID int64) ([]models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM pos.cards WHERE profile_id = $1 ORDER BY id`
	rows, err := r.db.Query(query, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card := models.Card{}
		var maxTx, dailyLimit sql.NullInt64
		if err := rows.Scan(&card.ID, &card.ProfileID, &card.UID, &card.KeyVersion, &card.Currency,
			&card.Balance, &maxTx, &dailyLimit, &card.DailySpent, &card.SpendDay,
			&card.LastCounter, &card.Status, &card.CreatedAt, &card.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		if maxTx.Valid {
			card.MaxTxAmount = &maxTx.Int64
		}
		if dailyLimit.Valid {
			card.DailyLimit = &dailyLimit.Int64
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// UpdateCardStatus moves a card to the given status
func (r *Repository) UpdateCardStatus(id int64, status string) error {
	query := `UPDATE pos.cards SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	res, err := r.db.Exec(query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update card status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("card not found")
	}
	return nil
}

// ActivateCardIfPending transitions a PENDING card to ACTIVE. Returns true
// when this call performed the transition.
func (r *Repository) ActivateCardIfPending(id int64) (bool, error) {
	query := `
		UPDATE pos.cards SET status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3`
	res, err := r.db.Exec(query, id, models.CardStatusActive, models.CardStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to activate card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to activate card: %w", err)
	}
	return n > 0, nil
}

// NextKeyVersionForUID returns one more than the highest key version ever
// issued for a UID under this profile, so a reprogrammed card never reuses
// old key material.
func (r *Repository) NextKeyVersionForUID(profileID int64, uid string) (uint32, error) {
	query := `SELECT COALESCE(MAX(key_version), 0) FROM pos.cards WHERE profile_id = $1 AND uid = $2`
	var max uint32
	if err := r.db.QueryRow(query, profileID, uid).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to look up key version: %w", err)
	}
	return max + 1, nil
}
