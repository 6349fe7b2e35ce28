package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pretyflaco/BBTV2-sub010/internal/cardcrypto"
	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// CardStore is the persistence capability the protocols run against. The
// balance-affecting methods are conditional single operations so the service
// never does read-then-write on money.
type CardStore interface {
	CreateProfile(profile *models.Profile) error
	FindProfileByEmail(email string) (*models.Profile, error)
	GetProfile(id int64) (*models.Profile, error)

	CreateCard(card *models.Card) error
	GetCard(id int64) (*models.Card, error)
	GetCardByUID(profileID int64, uid string) (*models.Card, error)
	ListCards(profileID int64) ([]models.Card, error)
	UpdateCardStatus(id int64, status string) error
	ActivateCardIfPending(id int64) (bool, error)
	NextKeyVersionForUID(profileID int64, uid string) (uint32, error)

	UpdateCounterIfGreater(cardID int64, counter uint32) (bool, error)
	ReserveSpend(cardID int64, amount int64, day string) (int64, bool, error)
	RollbackSpend(cardID int64, amount int64) (int64, error)
	CreditBalance(cardID int64, amount int64) (int64, error)
	RecordTransaction(tx *models.Transaction) error
	ListTransactions(cardID int64) ([]models.Transaction, error)

	StorePendingTopUp(p *models.PendingTopUp) error
	GetPendingTopUp(paymentHash string) (*models.PendingTopUp, error)
	MarkTopUpProcessed(paymentHash string) (bool, error)
	ListUnprocessedTopUps() ([]models.PendingTopUp, error)
	DeletePendingTopUp(paymentHash string) error
}

// PaymentRail is the injected capability for the external payment rail
type PaymentRail interface {
	CreateInvoice(ctx context.Context, walletID string, amountSats int64, memo string) (*rail.Invoice, error)
	PayInvoice(ctx context.Context, walletID, invoice string) (*rail.PaymentResult, error)
	GetExchangeRate(ctx context.Context, currency string) (float64, error)
	TransferInternal(ctx context.Context, fromWalletID, toWalletID string, amountSats int64, memo string) (*rail.TransferResult, error)
	InvoiceStatus(ctx context.Context, paymentHash string) (rail.InvoiceState, error)
}

// Alerter pages an operator about balance drift that needs manual review
type Alerter interface {
	SendReconciliationAlert(cardID int64, amount int64, cause error) error
}

// Service handles business logic
type Service struct {
	store  CardStore
	rail   PaymentRail
	alerts Alerter
	log    *logrus.Logger
	config *config.Config
	now    func() time.Time
}

// NewService initializes a new service
func NewService(store CardStore, pr PaymentRail, alerts Alerter, log *logrus.Logger, cfg *config.Config) *Service {
	return &Service{store: store, rail: pr, alerts: alerts, log: log, config: cfg, now: time.Now}
}

// today returns the current UTC day the daily spend counter is tracked against
func (s *Service) today() string {
	return s.now().UTC().Format("2006-01-02")
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Register creates a merchant profile with a freshly generated issuer secret
func (s *Service) Register(email, password, btcWalletID, usdWalletID string) (*models.Profile, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	issuerSecret, err := randomHex(cardcrypto.IssuerSecretLen)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		Email:        email,
		PasswordHash: string(hashedPassword),
		IssuerSecret: issuerSecret,
		BTCWalletID:  btcWalletID,
		USDWalletID:  usdWalletID,
	}

	if err := s.store.CreateProfile(profile); err != nil {
		return nil, err
	}

	s.log.Infof("Profile registered: %s", profile.Email)
	return profile, nil
}

// Login authenticates a merchant and returns a JWT token
func (s *Service) Login(email, password string) (string, error) {
	profile, err := s.store.FindProfileByEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", profile.ID),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("Profile logged in: %s", profile.Email)
	return tokenString, nil
}

// CreateCardParams are the merchant-supplied attributes of a new card
type CreateCardParams struct {
	UID         string `json:"uid"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	MaxTxAmount *int64 `json:"max_tx_amount,omitempty"`
	DailyLimit  *int64 `json:"daily_limit,omitempty"`
}

// CreateCard registers a new card for a profile. The key version is one past
// the highest ever issued for this UID, so a wiped and reprogrammed card
// never shares key material with its predecessor.
func (s *Service) CreateCard(profileID int64, params CreateCardParams) (*models.Card, error) {
	uid, err := hex.DecodeString(params.UID)
	if err != nil || len(uid) != cardcrypto.UIDLen {
		return nil, fmt.Errorf("uid must be %d hex chars", cardcrypto.UIDLen*2)
	}
	if params.Currency != models.CurrencyBTC && params.Currency != models.CurrencyUSD {
		return nil, fmt.Errorf("unsupported currency %q", params.Currency)
	}
	if params.Status == "" {
		params.Status = models.CardStatusPending
	}
	if params.Status != models.CardStatusPending && params.Status != models.CardStatusActive {
		return nil, fmt.Errorf("new card status must be PENDING or ACTIVE")
	}

	version, err := s.store.NextKeyVersionForUID(profileID, params.UID)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		ProfileID:   profileID,
		UID:         params.UID,
		KeyVersion:  version,
		Currency:    params.Currency,
		MaxTxAmount: params.MaxTxAmount,
		DailyLimit:  params.DailyLimit,
		Status:      params.Status,
	}
	if err := s.store.CreateCard(card); err != nil {
		return nil, err
	}

	s.log.Infof("Card %d created for profile %d (uid %s, version %d)", card.ID, profileID, card.UID, version)
	return card, nil
}

// getOwnedCard loads a card and checks it belongs to the profile
func (s *Service) getOwnedCard(profileID, cardID int64) (*models.Card, error) {
	card, err := s.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	if card == nil || card.ProfileID != profileID {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// GetCard retrieves one of the profile's cards
func (s *Service) GetCard(profileID, cardID int64) (*models.Card, error) {
	return s.getOwnedCard(profileID, cardID)
}

// ListCards retrieves all of the profile's cards
func (s *Service) ListCards(profileID int64) ([]models.Card, error) {
	return s.store.ListCards(profileID)
}

// ListTransactions retrieves the ledger of one of the profile's cards
func (s *Service) ListTransactions(profileID, cardID int64) ([]models.Transaction, error) {
	if _, err := s.getOwnedCard(profileID, cardID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(cardID)
}

// SetCardStatus applies an administrative status transition
func (s *Service) SetCardStatus(profileID, cardID int64, status string) (*models.Card, error) {
	card, err := s.getOwnedCard(profileID, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status == models.CardStatusWiped {
		return nil, ErrCardWiped
	}
	switch status {
	case models.CardStatusActive, models.CardStatusSuspended, models.CardStatusDisabled, models.CardStatusWiped:
	default:
		return nil, fmt.Errorf("invalid status %q", status)
	}

	if err := s.store.UpdateCardStatus(cardID, status); err != nil {
		return nil, err
	}
	s.log.Infof("Card %d status: %s -> %s", cardID, card.Status, status)
	card.Status = status
	return card, nil
}

// CardKeys returns the full key material needed to program the physical
// card. Exposed only on the authenticated card-management API.
func (s *Service) CardKeys(profileID, cardID int64) (*cardcrypto.KeySet, error) {
	card, err := s.getOwnedCard(profileID, cardID)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(card.ProfileID)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(profile.IssuerSecret)
	if err != nil {
		return nil, fmt.Errorf("malformed issuer secret: %w", err)
	}
	uid, err := hex.DecodeString(card.UID)
	if err != nil {
		return nil, fmt.Errorf("malformed uid: %w", err)
	}
	return cardcrypto.DeriveAllKeys(secret, uid, card.KeyVersion)
}

// ResolveCardByTap identifies which of a profile's cards produced a tap
// payload using only the issuer-level encryption key, before any card-
// specific key is known.
func (s *Service) ResolveCardByTap(profileID int64, payloadHex string) (*models.Card, error) {
	profile, err := s.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	secret, err := hex.DecodeString(profile.IssuerSecret)
	if err != nil {
		return nil, fmt.Errorf("malformed issuer secret: %w", err)
	}
	encKey, err := cardcrypto.DeriveEncryptionKey(secret)
	if err != nil {
		return nil, err
	}

	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return nil, ErrTapVerification
	}
	uid, _, ok, err := cardcrypto.DecryptTap(encKey, payload)
	if err != nil || !ok {
		return nil, ErrTapVerification
	}

	card, err := s.store.GetCardByUID(profileID, hex.EncodeToString(uid))
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// statusError maps a non-ACTIVE card status to its business error
func statusError(status string) error {
	switch status {
	case models.CardStatusPending:
		return ErrCardPending
	case models.CardStatusSuspended:
		return ErrCardSuspended
	case models.CardStatusDisabled:
		return ErrCardDisabled
	case models.CardStatusWiped:
		return ErrCardWiped
	default:
		return fmt.Errorf("card status %q does not allow this operation", status)
	}
}
