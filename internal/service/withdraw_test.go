package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
	"github.com/sirupsen/logrus"
)

// Vector card fixture: issuer secret 00..01, UID 04a39493cc8680, version 1.
const (
	testIssuerSecret = "00000000000000000000000000000001"
	testUID          = "04a39493cc8680"

	// Authentic taps for the fixture card at counters 7 and 8.
	tapPayload7 = "95f77233e24d2c7c84352791afc14d49"
	tapMAC7     = "7233fef43defbdb6"
	tapPayload8 = "f2f92f1155de2a41d74b0d5fd9edd7b6"
	tapMAC8     = "da1cf008018f390d"

	// 1000 sats
	testInvoice = "lnbc10u1pfakedata"
)

func newFixture(t *testing.T) (*Service, *fakeStore, *fakeRail, *fakeAlerter, *models.Card) {
	t.Helper()
	store := newFakeStore()
	pr := &fakeRail{}
	alerts := &fakeAlerter{}

	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := NewService(store, pr, alerts, log, &config.Config{JWTSecret: "test-secret"})
	svc.now = func() time.Time { return fixedNow }

	profile := &models.Profile{
		Email:        "merchant@example.com",
		IssuerSecret: testIssuerSecret,
		BTCWalletID:  "btc-wallet",
		USDWalletID:  "usd-wallet",
	}
	if err := store.CreateProfile(profile); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	card := &models.Card{
		ProfileID:   profile.ID,
		UID:         testUID,
		KeyVersion:  1,
		Currency:    models.CurrencyBTC,
		Balance:     5000,
		LastCounter: 6,
		Status:      models.CardStatusActive,
	}
	if err := store.CreateCard(card); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return svc, store, pr, alerts, card
}

func int64Ptr(v int64) *int64 { return &v }

func TestBuildWithdrawOffer_Bounds(t *testing.T) {
	tests := []struct {
		name       string
		balance    int64
		maxTx      *int64
		dailyLimit *int64
		dailySpent int64
		wantSats   int64
	}{
		{"balance only", 5000, nil, nil, 0, 5000},
		{"max tx caps", 5000, int64Ptr(2000), nil, 0, 2000},
		{"daily limit caps", 5000, nil, int64Ptr(3000), 0, 3000},
		{"daily allowance partly spent", 5000, nil, int64Ptr(3000), 2500, 500},
		{"daily allowance exhausted", 5000, nil, int64Ptr(3000), 3000, 0},
		{"tightest bound wins", 5000, int64Ptr(800), int64Ptr(3000), 2500, 500},
		{"balance below limits", 100, int64Ptr(2000), int64Ptr(3000), 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _, _, card := newFixture(t)
			stored := store.cards[card.ID]
			stored.Balance = tt.balance
			stored.MaxTxAmount = tt.maxTx
			stored.DailyLimit = tt.dailyLimit
			stored.DailySpent = tt.dailySpent
			stored.SpendDay = svc.today()

			offer, err := svc.BuildWithdrawOffer(context.Background(), card.ID)
			if err != nil {
				t.Fatalf("BuildWithdrawOffer: %v", err)
			}
			if offer.MaxWithdrawableMsat != tt.wantSats*1000 {
				t.Errorf("max = %d msat, want %d", offer.MaxWithdrawableMsat, tt.wantSats*1000)
			}
			if offer.K1 == "" {
				t.Error("offer must carry a challenge")
			}
		})
	}
}

func TestBuildWithdrawOffer_StaleDailySpendIgnored(t *testing.T) {
	svc, store, _, _, card := newFixture(t)
	stored := store.cards[card.ID]
	stored.DailyLimit = int64Ptr(3000)
	stored.DailySpent = 3000
	stored.SpendDay = "2024-06-14" // yesterday relative to fixedNow

	offer, err := svc.BuildWithdrawOffer(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("BuildWithdrawOffer: %v", err)
	}
	if offer.MaxWithdrawableMsat != 3000*1000 {
		t.Errorf("max = %d msat, want %d", offer.MaxWithdrawableMsat, 3000*1000)
	}
}

func TestBuildWithdrawOffer_StatusRejections(t *testing.T) {
	tests := []struct {
		status string
		want   error
	}{
		{models.CardStatusPending, ErrCardPending},
		{models.CardStatusSuspended, ErrCardSuspended},
		{models.CardStatusDisabled, ErrCardDisabled},
		{models.CardStatusWiped, ErrCardWiped},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			svc, store, _, _, card := newFixture(t)
			store.cards[card.ID].Status = tt.status

			_, err := svc.BuildWithdrawOffer(context.Background(), card.ID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildWithdrawOffer_USDConversion(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)
	stored := store.cards[card.ID]
	stored.Currency = models.CurrencyUSD
	stored.Balance = 690 // cents
	pr.rate = 0.069      // cents per sat

	offer, err := svc.BuildWithdrawOffer(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("BuildWithdrawOffer: %v", err)
	}
	if offer.MaxWithdrawableMsat != 10_000*1000 {
		t.Errorf("max = %d msat, want %d", offer.MaxWithdrawableMsat, 10_000*1000)
	}
}

func TestBuildWithdrawOffer_RateFailureFailsOffer(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)
	store.cards[card.ID].Currency = models.CurrencyUSD
	pr.rateErr = errors.New("rail unreachable")

	if _, err := svc.BuildWithdrawOffer(context.Background(), card.ID); err == nil {
		t.Fatal("expected error when rate fetch fails")
	}
}

func TestWithdrawCallback_Commits(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)

	hash, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice)
	if err != nil {
		t.Fatalf("WithdrawCallback: %v", err)
	}
	if hash != "paid-hash" {
		t.Errorf("payment hash = %q, want paid-hash", hash)
	}

	stored := store.cards[card.ID]
	if stored.Balance != 4000 {
		t.Errorf("balance = %d, want 4000", stored.Balance)
	}
	if stored.DailySpent != 1000 {
		t.Errorf("daily spent = %d, want 1000", stored.DailySpent)
	}
	if stored.LastCounter != 7 {
		t.Errorf("last counter = %d, want 7", stored.LastCounter)
	}
	if pr.payCalls != 1 {
		t.Errorf("pay calls = %d, want 1", pr.payCalls)
	}

	txs, _ := store.ListTransactions(card.ID)
	if len(txs) != 1 || txs[0].Type != models.TransactionWithdraw || txs[0].Amount != 1000 || txs[0].BalanceAfter != 4000 {
		t.Errorf("unexpected ledger: %+v", txs)
	}
}

func TestWithdrawCallback_ReplayRejected(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)

	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice); err != nil {
		t.Fatalf("first callback: %v", err)
	}

	_, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice)
	if !errors.Is(err, ErrTapVerification) {
		t.Fatalf("err = %v, want ErrTapVerification", err)
	}
	if pr.payCalls != 1 {
		t.Errorf("pay calls = %d, want 1 (replay must not pay)", pr.payCalls)
	}
	if store.cards[card.ID].Balance != 4000 {
		t.Errorf("balance = %d, want 4000", store.cards[card.ID].Balance)
	}
}

func TestWithdrawCallback_NextCounterAccepted(t *testing.T) {
	svc, _, _, _, card := newFixture(t)

	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice); err != nil {
		t.Fatalf("counter 7: %v", err)
	}
	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload8, tapMAC8, testInvoice); err != nil {
		t.Fatalf("counter 8: %v", err)
	}
}

func TestWithdrawCallback_BadMAC(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)

	_, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC8, testInvoice)
	if !errors.Is(err, ErrTapVerification) {
		t.Fatalf("err = %v, want ErrTapVerification", err)
	}
	if pr.payCalls != 0 {
		t.Error("failed verification must not reach the rail")
	}
	if store.cards[card.ID].LastCounter != 6 {
		t.Error("failed verification must not advance the counter")
	}
}

func TestWithdrawCallback_RollbackNeutrality(t *testing.T) {
	tests := []struct {
		name string
		prep func(pr *fakeRail)
	}{
		{"payment failure", func(pr *fakeRail) {
			pr.payResult = &rail.PaymentResult{Status: rail.PaymentStatusFailed, Reason: "no route"}
		}},
		{"payment error", func(pr *fakeRail) {
			pr.payErr = errors.New("timeout")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, pr, _, card := newFixture(t)
			stored := store.cards[card.ID]
			stored.DailyLimit = int64Ptr(4000)
			stored.DailySpent = 500
			stored.SpendDay = svc.today()
			preBalance, preSpent := stored.Balance, stored.DailySpent
			tt.prep(pr)

			_, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice)
			if err == nil {
				t.Fatal("expected payment failure")
			}
			if stored.Balance != preBalance {
				t.Errorf("balance = %d, want %d (exact pre-reservation value)", stored.Balance, preBalance)
			}
			if stored.DailySpent != preSpent {
				t.Errorf("daily spent = %d, want %d", stored.DailySpent, preSpent)
			}
			if txs, _ := store.ListTransactions(card.ID); len(txs) != 0 {
				t.Errorf("rolled-back withdraw must not reach the ledger: %+v", txs)
			}
		})
	}
}

func TestWithdrawCallback_InsufficientBalance(t *testing.T) {
	svc, store, pr, _, card := newFixture(t)
	store.cards[card.ID].Balance = 500

	_, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if pr.payCalls != 0 {
		t.Error("failed reservation must not reach the rail")
	}
	if store.cards[card.ID].Balance != 500 {
		t.Errorf("balance = %d, want 500", store.cards[card.ID].Balance)
	}
}

func TestWithdrawCallback_LimitExceeded(t *testing.T) {
	svc, store, _, _, card := newFixture(t)
	store.cards[card.ID].MaxTxAmount = int64Ptr(500)

	_, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

func TestWithdrawCallback_AmountComesFromInvoice(t *testing.T) {
	svc, store, _, _, card := newFixture(t)

	// 2500n = 250 sats
	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, "lnbc2500n1pfakedata"); err != nil {
		t.Fatalf("WithdrawCallback: %v", err)
	}
	if got := store.cards[card.ID].Balance; got != 4750 {
		t.Errorf("balance = %d, want 4750", got)
	}
}

func TestWithdrawCallback_AmountlessInvoiceRejected(t *testing.T) {
	svc, _, pr, _, card := newFixture(t)

	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, "lnbc1pfakedata"); err == nil {
		t.Fatal("expected error for amountless invoice")
	}
	if pr.payCalls != 0 {
		t.Error("invalid invoice must not reach the rail")
	}
}

func TestWithdrawCallback_RollbackFailurePagesOperator(t *testing.T) {
	svc, store, pr, alerts, card := newFixture(t)
	pr.payResult = &rail.PaymentResult{Status: rail.PaymentStatusFailed, Reason: "no route"}
	store.failRollback = true

	if _, err := svc.WithdrawCallback(context.Background(), card.ID, tapPayload7, tapMAC7, testInvoice); err == nil {
		t.Fatal("expected payment failure")
	}
	if len(alerts.alerts) != 1 || alerts.alerts[0] != card.ID {
		t.Errorf("expected one reconciliation alert for card %d, got %v", card.ID, alerts.alerts)
	}
}
