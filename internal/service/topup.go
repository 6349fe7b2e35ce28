package service

import (
	"context"
	"fmt"

	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

// Top-up bounds in satoshis, tiered by wallet currency
const (
	btcMinTopUpSats = 1_000
	btcMaxTopUpSats = 1_000_000
	usdMinTopUpSats = 10_000
	usdMaxTopUpSats = 500_000
)

func topUpBounds(currency string) (minSats, maxSats int64) {
	if currency == models.CurrencyUSD {
		return usdMinTopUpSats, usdMaxTopUpSats
	}
	return btcMinTopUpSats, btcMaxTopUpSats
}

// TopUpOffer is the balance-credit envelope presented to a wallet
type TopUpOffer struct {
	MinSendableMsat int64
	MaxSendableMsat int64
	Metadata        string
	CommentAllowed  int
}

// topUpAllowed rejects cards that can never be credited. PENDING is allowed:
// the first settled top-up is what activates a pending card.
func topUpAllowed(card *models.Card) error {
	switch card.Status {
	case models.CardStatusSuspended, models.CardStatusDisabled, models.CardStatusWiped:
		return statusError(card.Status)
	}
	return nil
}

// BuildTopUpOffer computes the top-up envelope for a card
func (s *Service) BuildTopUpOffer(cardID int64) (*TopUpOffer, error) {
	card, err := s.store.GetCard(cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	if err := topUpAllowed(card); err != nil {
		return nil, err
	}

	minSats, maxSats := topUpBounds(card.Currency)
	return &TopUpOffer{
		MinSendableMsat: minSats * 1000,
		MaxSendableMsat: maxSats * 1000,
		Metadata:        fmt.Sprintf("Top up card %d (%s)", card.ID, card.Currency),
		CommentAllowed:  64,
	}, nil
}

// RequestTopUp validates the requested amount, asks the rail for an invoice
// and persists the pending top-up under its payment hash. Settlement happens
// later, when the payer actually pays.
func (s *Service) RequestTopUp(ctx context.Context, cardID, amountMsat int64, comment string) (string, error) {
	card, err := s.store.GetCard(cardID)
	if err != nil {
		return "", err
	}
	if card == nil {
		return "", ErrCardNotFound
	}
	if err := topUpAllowed(card); err != nil {
		return "", err
	}

	amountSats := amountMsat / 1000
	minSats, maxSats := topUpBounds(card.Currency)
	if amountSats < minSats || amountSats > maxSats {
		return "", ErrAmountOutOfBounds
	}

	profile, err := s.store.GetProfile(card.ProfileID)
	if err != nil {
		return "", err
	}

	memo := fmt.Sprintf("Top up card %d", card.ID)
	if comment != "" {
		memo = fmt.Sprintf("%s: %s", memo, comment)
	}
	invoice, err := s.rail.CreateInvoice(ctx, profile.BTCWalletID, amountSats, memo)
	if err != nil {
		return "", fmt.Errorf("invoice creation failed: %w", err)
	}

	pending := &models.PendingTopUp{
		PaymentHash: invoice.PaymentHash,
		CardID:      card.ID,
		AmountSats:  amountSats,
		Currency:    card.Currency,
	}
	if err := s.store.StorePendingTopUp(pending); err != nil {
		return "", err
	}

	s.log.Infof("Top-up invoice %s created for card %d (%d sats)", invoice.PaymentHash, card.ID, amountSats)
	return invoice.PaymentRequest, nil
}

// ProcessTopUpPayment settles a paid top-up invoice. Safe against duplicate
// confirmation signals: the processed flag is flipped with a conditional
// update before any credit lands, so the same hash credits exactly once.
// USD settlement moves the sats to the USD sub-wallet and converts at a
// fresh rate first; if either step fails the top-up stays pending for retry.
func (s *Service) ProcessTopUpPayment(ctx context.Context, paymentHash string) error {
	pending, err := s.store.GetPendingTopUp(paymentHash)
	if err != nil {
		return err
	}
	if pending == nil {
		return ErrNoPendingTopUp
	}
	if pending.Processed {
		s.log.Infof("Top-up %s already processed; ignoring duplicate settlement", paymentHash)
		return nil
	}

	card, err := s.store.GetCard(pending.CardID)
	if err != nil {
		return err
	}
	if card == nil {
		return ErrCardNotFound
	}

	creditUnits := pending.AmountSats
	if pending.Currency == models.CurrencyUSD {
		profile, err := s.store.GetProfile(card.ProfileID)
		if err != nil {
			return err
		}
		transfer, err := s.rail.TransferInternal(ctx, profile.BTCWalletID, profile.USDWalletID,
			pending.AmountSats, fmt.Sprintf("Top-up conversion for card %d", card.ID))
		if err != nil {
			return fmt.Errorf("internal transfer failed: %w", err)
		}
		if transfer.Status != rail.PaymentStatusSuccess {
			return fmt.Errorf("internal transfer failed: %s", transfer.Reason)
		}
		rate, err := s.rail.GetExchangeRate(ctx, models.CurrencyUSD)
		if err != nil {
			return fmt.Errorf("exchange rate unavailable: %w", err)
		}
		creditUnits = int64(float64(pending.AmountSats) * rate)
	}

	won, err := s.store.MarkTopUpProcessed(paymentHash)
	if err != nil {
		return err
	}
	if !won {
		s.log.Infof("Top-up %s settled concurrently elsewhere; skipping credit", paymentHash)
		return nil
	}

	newBalance, err := s.store.CreditBalance(card.ID, creditUnits)
	if err != nil {
		s.log.Errorf("Credit failed for card %d after marking top-up %s processed: %v", card.ID, paymentHash, err)
		if alertErr := s.alerts.SendReconciliationAlert(card.ID, creditUnits, err); alertErr != nil {
			s.log.Errorf("Failed to send reconciliation alert for card %d: %v", card.ID, alertErr)
		}
		return fmt.Errorf("failed to credit card: %w", err)
	}

	tx := &models.Transaction{
		CardID:       card.ID,
		Type:         models.TransactionTopUp,
		Amount:       creditUnits,
		BalanceAfter: newBalance,
		PaymentHash:  paymentHash,
	}
	if err := s.store.RecordTransaction(tx); err != nil {
		s.log.Errorf("Failed to record top-up transaction for card %d: %v", card.ID, err)
	}

	activated, err := s.store.ActivateCardIfPending(card.ID)
	if err != nil {
		s.log.Errorf("Failed to activate card %d after first top-up: %v", card.ID, err)
	} else if activated {
		s.log.Infof("Card %d activated by first top-up", card.ID)
	}

	s.log.Infof("Top-up %s credited %d units to card %d, balance %d", paymentHash, creditUnits, card.ID, newBalance)
	return nil
}
