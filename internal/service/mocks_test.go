package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pretyflaco/BBTV2-sub010/internal/integrations/rail"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
)

// fakeStore is an in-memory CardStore that mirrors the conditional semantics
// of the SQL primitives.
type fakeStore struct {
	profiles map[int64]*models.Profile
	cards    map[int64]*models.Card
	topups   map[string]*models.PendingTopUp
	txs      []models.Transaction
	nextID   int64

	failRollback bool
	failCredit   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[int64]*models.Profile{},
		cards:    map[int64]*models.Card{},
		topups:   map[string]*models.PendingTopUp{},
		nextID:   1,
	}
}

func (f *fakeStore) CreateProfile(p *models.Profile) error {
	p.ID = f.nextID
	f.nextID++
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) FindProfileByEmail(email string) (*models.Profile, error) {
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, fmt.Errorf("profile not found")
}

func (f *fakeStore) GetProfile(id int64) (*models.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile not found")
	}
	return p, nil
}

func (f *fakeStore) CreateCard(c *models.Card) error {
	c.ID = f.nextID
	f.nextID++
	f.cards[c.ID] = c
	return nil
}

func (f *fakeStore) GetCard(id int64) (*models.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, nil
	}
	copy := *c
	return &copy, nil
}

func (f *fakeStore) GetCardByUID(profileID int64, uid string) (*models.Card, error) {
	for _, c := range f.cards {
		if c.ProfileID == profileID && c.UID == uid && c.Status != models.CardStatusWiped {
			copy := *c
			return &copy, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListCards(profileID int64) ([]models.Card, error) {
	var out []models.Card
	for _, c := range f.cards {
		if c.ProfileID == profileID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateCardStatus(id int64, status string) error {
	c, ok := f.cards[id]
	if !ok {
		return fmt.Errorf("card not found")
	}
	c.Status = status
	return nil
}

func (f *fakeStore) ActivateCardIfPending(id int64) (bool, error) {
	c, ok := f.cards[id]
	if !ok {
		return false, fmt.Errorf("card not found")
	}
	if c.Status != models.CardStatusPending {
		return false, nil
	}
	c.Status = models.CardStatusActive
	return true, nil
}

func (f *fakeStore) NextKeyVersionForUID(profileID int64, uid string) (uint32, error) {
	var max uint32
	for _, c := range f.cards {
		if c.ProfileID == profileID && c.UID == uid && c.KeyVersion > max {
			max = c.KeyVersion
		}
	}
	return max + 1, nil
}

func (f *fakeStore) UpdateCounterIfGreater(cardID int64, counter uint32) (bool, error) {
	c, ok := f.cards[cardID]
	if !ok {
		return false, fmt.Errorf("card not found")
	}
	if c.LastCounter >= counter {
		return false, nil
	}
	c.LastCounter = counter
	return true, nil
}

func (f *fakeStore) ReserveSpend(cardID int64, amount int64, day string) (int64, bool, error) {
	c, ok := f.cards[cardID]
	if !ok {
		return 0, false, fmt.Errorf("card not found")
	}
	spent := c.DailySpent
	if c.SpendDay != day {
		spent = 0
	}
	if c.Status != models.CardStatusActive ||
		c.Balance < amount ||
		(c.MaxTxAmount != nil && amount > *c.MaxTxAmount) ||
		(c.DailyLimit != nil && spent+amount > *c.DailyLimit) {
		return 0, false, nil
	}
	c.Balance -= amount
	c.DailySpent = spent + amount
	c.SpendDay = day
	return c.Balance, true, nil
}

func (f *fakeStore) RollbackSpend(cardID int64, amount int64) (int64, error) {
	if f.failRollback {
		return 0, fmt.Errorf("store unavailable")
	}
	c, ok := f.cards[cardID]
	if !ok {
		return 0, fmt.Errorf("card not found")
	}
	c.Balance += amount
	c.DailySpent -= amount
	if c.DailySpent < 0 {
		c.DailySpent = 0
	}
	return c.Balance, nil
}

func (f *fakeStore) CreditBalance(cardID int64, amount int64) (int64, error) {
	if f.failCredit {
		return 0, fmt.Errorf("store unavailable")
	}
	c, ok := f.cards[cardID]
	if !ok {
		return 0, fmt.Errorf("card not found")
	}
	c.Balance += amount
	return c.Balance, nil
}

func (f *fakeStore) RecordTransaction(tx *models.Transaction) error {
	tx.ID = f.nextID
	f.nextID++
	f.txs = append(f.txs, *tx)
	return nil
}

func (f *fakeStore) ListTransactions(cardID int64) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range f.txs {
		if tx.CardID == cardID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) StorePendingTopUp(p *models.PendingTopUp) error {
	f.topups[p.PaymentHash] = p
	return nil
}

func (f *fakeStore) GetPendingTopUp(hash string) (*models.PendingTopUp, error) {
	p, ok := f.topups[hash]
	if !ok {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (f *fakeStore) MarkTopUpProcessed(hash string) (bool, error) {
	p, ok := f.topups[hash]
	if !ok || p.Processed {
		return false, nil
	}
	p.Processed = true
	return true, nil
}

func (f *fakeStore) ListUnprocessedTopUps() ([]models.PendingTopUp, error) {
	var out []models.PendingTopUp
	for _, p := range f.topups {
		if !p.Processed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) DeletePendingTopUp(hash string) error {
	if p, ok := f.topups[hash]; ok && !p.Processed {
		delete(f.topups, hash)
	}
	return nil
}

// fakeRail scripts payment-rail behavior per test
type fakeRail struct {
	rate          float64
	rateErr       error
	invoice       *rail.Invoice
	invoiceErr    error
	payResult     *rail.PaymentResult
	payErr        error
	transferRes   *rail.TransferResult
	transferErr   error
	invoiceStates map[string]rail.InvoiceState

	payCalls      int
	transferCalls int
}

func (f *fakeRail) CreateInvoice(_ context.Context, walletID string, amountSats int64, memo string) (*rail.Invoice, error) {
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	if f.invoice != nil {
		return f.invoice, nil
	}
	return &rail.Invoice{
		PaymentRequest: fmt.Sprintf("lnbc%dn1pfake", amountSats*10),
		PaymentHash:    fmt.Sprintf("hash-%d", amountSats),
	}, nil
}

func (f *fakeRail) PayInvoice(_ context.Context, walletID, invoice string) (*rail.PaymentResult, error) {
	f.payCalls++
	if f.payErr != nil {
		return nil, f.payErr
	}
	if f.payResult != nil {
		return f.payResult, nil
	}
	return &rail.PaymentResult{Status: rail.PaymentStatusSuccess, PaymentHash: "paid-hash"}, nil
}

func (f *fakeRail) GetExchangeRate(_ context.Context, currency string) (float64, error) {
	if f.rateErr != nil {
		return 0, f.rateErr
	}
	if f.rate == 0 {
		return 0.069, nil
	}
	return f.rate, nil
}

func (f *fakeRail) TransferInternal(_ context.Context, from, to string, amountSats int64, memo string) (*rail.TransferResult, error) {
	f.transferCalls++
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	if f.transferRes != nil {
		return f.transferRes, nil
	}
	return &rail.TransferResult{Status: rail.PaymentStatusSuccess}, nil
}

func (f *fakeRail) InvoiceStatus(_ context.Context, paymentHash string) (rail.InvoiceState, error) {
	if state, ok := f.invoiceStates[paymentHash]; ok {
		return state, nil
	}
	return rail.InvoiceStatePending, nil
}

// fakeAlerter records reconciliation alerts
type fakeAlerter struct {
	alerts []int64
}

func (f *fakeAlerter) SendReconciliationAlert(cardID int64, amount int64, cause error) error {
	f.alerts = append(f.alerts, cardID)
	return nil
}

// fixedNow pins the service clock for daily-limit tests
var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
