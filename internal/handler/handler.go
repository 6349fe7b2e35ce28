package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pretyflaco/BBTV2-sub010/internal/cardcrypto"
	"github.com/pretyflaco/BBTV2-sub010/internal/config"
	"github.com/pretyflaco/BBTV2-sub010/internal/models"
	"github.com/pretyflaco/BBTV2-sub010/internal/service"
	"github.com/sirupsen/logrus"
)

// CardService is the slice of the service layer the HTTP surface needs.
type CardService interface {
	Register(email, password, btcWalletID, usdWalletID string) (*models.Profile, error)
	Login(email, password string) (string, error)

	CreateCard(profileID int64, params service.CreateCardParams) (*models.Card, error)
	GetCard(profileID, cardID int64) (*models.Card, error)
	ListCards(profileID int64) ([]models.Card, error)
	ListTransactions(profileID, cardID int64) ([]models.Transaction, error)
	SetCardStatus(profileID, cardID int64, status string) (*models.Card, error)
	CardKeys(profileID, cardID int64) (*cardcrypto.KeySet, error)
	ResolveCardByTap(profileID int64, payloadHex string) (*models.Card, error)

	BuildWithdrawOffer(ctx context.Context, cardID int64) (*service.WithdrawOffer, error)
	WithdrawCallback(ctx context.Context, cardID int64, payloadHex, macHex, invoice string) (string, error)
	BuildTopUpOffer(cardID int64) (*service.TopUpOffer, error)
	RequestTopUp(ctx context.Context, cardID, amountMsat int64, comment string) (string, error)
	ProcessTopUpPayment(ctx context.Context, paymentHash string) error
}

type Handler struct {
	svc CardService
	cfg *config.Config
	log *logrus.Logger
}

func NewHandler(svc CardService, cfg *config.Config, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, cfg: cfg, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// lnurlError writes the wire-level ERROR envelope. LNURL clients key off the
// status field, so the HTTP status stays 200.
func lnurlError(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ERROR", "reason": reason})
}

// lnurlReason translates a service error into a client-facing reason. Tap
// verification failures all share one generic message; the detail lives in
// the server log only.
func lnurlReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTapVerification):
		return "card verification failed"
	case errors.Is(err, service.ErrCardNotFound),
		errors.Is(err, service.ErrCardPending),
		errors.Is(err, service.ErrCardSuspended),
		errors.Is(err, service.ErrCardDisabled),
		errors.Is(err, service.ErrCardWiped),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrLimitExceeded),
		errors.Is(err, service.ErrAmountOutOfBounds),
		errors.Is(err, service.ErrNoPendingTopUp),
		errors.Is(err, service.ErrInvalidInvoice),
		errors.Is(err, service.ErrPaymentFailed):
		return err.Error()
	default:
		return "service unavailable"
	}
}
