package repository

import (
	"database/sql"
	"fmt"

	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateProfile creates a new merchant profile in the database
func (r *Repository) CreateProfile(profile *models.Profile) error {
	query := `
		INSERT INTO pos.profiles (email, password_hash, issuer_secret, btc_wallet_id, usd_wallet_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, profile.Email, profile.PasswordHash, profile.IssuerSecret,
		profile.BTCWalletID, profile.USDWalletID).
		Scan(&profile.ID, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// FindProfileByEmail retrieves a profile by email
func (r *Repository) FindProfileByEmail(email string) (*models.Profile, error) {
	profile := &models.Profile{}
	query := `
		SELECT id, email, password_hash, issuer_secret, btc_wallet_id, usd_wallet_id, created_at, updated_at
		FROM pos.profiles
		WHERE email = $1`
	err := r.db.QueryRow(query, email).
		Scan(&profile.ID, &profile.Email, &profile.PasswordHash, &profile.IssuerSecret,
			&profile.BTCWalletID, &profile.USDWalletID, &profile.CreatedAt, &profile.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// GetProfile retrieves a profile by id
func (r *Repository) GetProfile(id int64) (*models.Profile, error) {
	profile := &models.Profile{}
	query := `
		SELECT id, email, password_hash, issuer_secret, btc_wallet_id, usd_wallet_id, created_at, updated_at
		FROM pos.profiles
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&profile.ID, &profile.Email, &profile.PasswordHash, &profile.IssuerSecret,
			&profile.BTCWalletID, &profile.USDWalletID, &profile.CreatedAt, &profile.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
