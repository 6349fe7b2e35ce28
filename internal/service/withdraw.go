package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/pretyflaco/BBTV2-sub010/internal/bolt11"
	"github.com/pretyflaco/BBTV2-sub010/internal/cardcrypto"
	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

const minWithdrawableMsat = 1000

// WithdrawOffer is the spend-authorization envelope presented to a wallet
type WithdrawOffer struct {
	K1                  string
	MinWithdrawableMsat int64
	MaxWithdrawableMsat int64
	DefaultDescription  string
}

// spentToday returns the daily spend that still counts against today's limit
func (s *Service) spentToday(card *models.Card) int64 {
	if card.SpendDay != s.today() {
		return 0
	}
	return card.DailySpent
}

// maxWithdrawableUnits computes min(balance, maxTxAmount, remaining daily
// allowance) in the card's minor units.
func (s *Service) maxWithdrawableUnits(card *models.Card) int64 {
	max := card.Balance
	if card.MaxTxAmount != nil && *card.MaxTxAmount < max {
		max = *card.MaxTxAmount
	}
	if card.DailyLimit != nil {
		remaining := *card.DailyLimit - s.spentToday(card)
		if remaining < 0 {
			remaining = 0
		}
		if remaining < max {
			max = remaining
		}
	}
	return max
}

// BuildWithdrawOffer computes the withdrawal envelope for a card. For USD
// cards the bound is converted with a freshly fetched rate; a rate failure
// fails the offer.
func (s *Service) BuildWithdrawOffer(ctx context.Context, cardID int64) (*WithdrawOffer, error) {
	card, err := s.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	if card.Status != models.CardStatusActive {
		return nil, statusError(card.Status)
	}

	maxUnits := s.maxWithdrawableUnits(card)
	maxSats := maxUnits
	if card.Currency == models.CurrencyUSD {
		rate, err := s.rail.GetExchangeRate(ctx, models.CurrencyUSD)
		if err != nil {
			return nil, fmt.Errorf("exchange rate unavailable: %w", err)
		}
		maxSats = int64(float64(maxUnits) / rate)
	}

	k1, err := randomHex(16)
	if err != nil {
		return nil, err
	}

	return &WithdrawOffer{
		K1:                  k1,
		MinWithdrawableMsat: minWithdrawableMsat,
		MaxWithdrawableMsat: maxSats * 1000,
		DefaultDescription:  fmt.Sprintf("Card %d withdrawal", card.ID),
	}, nil
}

// classifyReservationFailure reads the card back to pick the specific
// business error after a reservation predicate failed.
func (s *Service) classifyReservationFailure(cardID, amount int64) error {
	card, err := s.store.GetCard(cardID)
	if err != nil || card == nil {
		return ErrInsufficientBalance
	}
	if card.Status != models.CardStatusActive {
		return statusError(card.Status)
	}
	if card.Balance < amount {
		return ErrInsufficientBalance
	}
	return ErrLimitExceeded
}

// WithdrawCallback executes a spend authorization: verify the tap, persist
// its counter, reserve funds, pay the invoice, and commit or roll back.
// The amount paid is the one embedded in the invoice itself.
func (s *Service) WithdrawCallback(ctx context.Context, cardID int64, payloadHex, macHex, invoice string) (string, error) {
	card, err := s.store.GetCard(cardID)
	if err != nil {
		return "", err
	}
	if card == nil {
		return "", ErrCardNotFound
	}
	if card.Status != models.CardStatusActive {
		return "", statusError(card.Status)
	}

	profile, err := s.store.GetProfile(card.ProfileID)
	if err != nil {
		return "", err
	}

	counter, err := s.verifyTap(profile, card, payloadHex, macHex)
	if err != nil {
		return "", err
	}

	// The counter store is conditional: of two concurrent taps with the
	// same counter, exactly one lands here.
	advanced, err := s.store.UpdateCounterIfGreater(card.ID, counter)
	if err != nil {
		return "", err
	}
	if !advanced {
		s.log.Warnf("Tap rejected for card %d: counter %d already spent", card.ID, counter)
		return "", ErrTapVerification
	}

	amountSats, err := bolt11.AmountSats(invoice)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}
	if amountSats <= 0 {
		return "", fmt.Errorf("%w: zero amount", ErrInvalidInvoice)
	}

	amountUnits := amountSats
	if card.Currency == models.CurrencyUSD {
		rate, err := s.rail.GetExchangeRate(ctx, models.CurrencyUSD)
		if err != nil {
			return "", fmt.Errorf("exchange rate unavailable: %w", err)
		}
		amountUnits = int64(math.Ceil(float64(amountSats) * rate))
	}

	newBalance, reserved, err := s.store.ReserveSpend(card.ID, amountUnits, s.today())
	if err != nil {
		return "", err
	}
	if !reserved {
		return "", s.classifyReservationFailure(card.ID, amountUnits)
	}

	walletID := profile.BTCWalletID
	if card.Currency == models.CurrencyUSD {
		walletID = profile.USDWalletID
	}

	payment, payErr := s.rail.PayInvoice(ctx, walletID, invoice)
	if payErr != nil || payment.Status != rail.PaymentStatusSuccess {
		s.rollbackReservation(card.ID, amountUnits)
		if payErr != nil {
			return "", fmt.Errorf("%w: %v", ErrPaymentFailed, payErr)
		}
		return "", fmt.Errorf("%w: %s", ErrPaymentFailed, payment.Reason)
	}

	tx := &models.Transaction{
		CardID:       card.ID,
		Type:         models.TransactionWithdraw,
		Amount:       amountUnits,
		BalanceAfter: newBalance,
		PaymentHash:  payment.PaymentHash,
	}
	if err := s.store.RecordTransaction(tx); err != nil {
		s.log.Errorf("Failed to record withdraw transaction for card %d: %v", card.ID, err)
	}

	s.log.Infof("Withdraw committed for card %d: %d units, balance %d", card.ID, amountUnits, newBalance)
	return payment.PaymentHash, nil
}

// verifyTap derives the card's keys and runs the tap verifier. All failure
// modes collapse into ErrTapVerification; the precise reason is only logged.
func (s *Service) verifyTap(profile *models.Profile, card *models.Card, payloadHex, macHex string) (uint32, error) {
	secret, err := hex.DecodeString(profile.IssuerSecret)
	if err != nil {
		return 0, fmt.Errorf("malformed issuer secret: %w", err)
	}
	uid, err := hex.DecodeString(card.UID)
	if err != nil {
		return 0, fmt.Errorf("malformed card uid: %w", err)
	}
	keys, err := cardcrypto.DeriveAllKeys(secret, uid, card.KeyVersion)
	if err != nil {
		return 0, err
	}
	verifier, err := cardcrypto.NewVerifier(keys.K1, keys.K2)
	if err != nil {
		return 0, err
	}

	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		s.log.Warnf("Tap rejected for card %d: payload not hex", card.ID)
		return 0, ErrTapVerification
	}
	mac, err := hex.DecodeString(macHex)
	if err != nil {
		s.log.Warnf("Tap rejected for card %d: mac not hex", card.ID)
		return 0, ErrTapVerification
	}

	result := verifier.Verify(payload, mac, uid, card.LastCounter)
	if !result.Valid {
		s.log.Warnf("Tap rejected for card %d: %s", card.ID, result.Reason)
		return 0, ErrTapVerification
	}
	return result.Counter, nil
}

// rollbackReservation compensates a failed payment. A rollback that itself
// fails is real balance drift and pages the operator.
func (s *Service) rollbackReservation(cardID, amount int64) {
	if _, err := s.store.RollbackSpend(cardID, amount); err != nil {
		s.log.Errorf("Rollback failed for card %d (amount %d): %v", cardID, amount, err)
		if alertErr := s.alerts.SendReconciliationAlert(cardID, amount, err); alertErr != nil {
			s.log.Errorf("Failed to send reconciliation alert for card %d: %v", cardID, alertErr)
		}
		return
	}
	s.log.Infof("Rolled back reservation of %d units on card %d", amount, cardID)
}
