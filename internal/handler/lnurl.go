package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// withdrawOfferResponse is the withdrawRequest envelope (amounts in msat)
type withdrawOfferResponse struct {
	Tag                string `json:"tag"`
	Callback           string `json:"callback"`
	K1                 string `json:"k1"`
	DefaultDescription string `json:"defaultDescription"`
	MinWithdrawable    int64  `json:"minWithdrawable"`
	MaxWithdrawable    int64  `json:"maxWithdrawable"`
	BalanceCheck       string `json:"balanceCheck"`
	PayLink            string `json:"payLink"`
}

// topUpOfferResponse is the payRequest envelope (amounts in msat)
type topUpOfferResponse struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	Metadata       string `json:"metadata"`
	CommentAllowed int    `json:"commentAllowed"`
}

func cardIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["cardID"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid card id")
	}
	return id, nil
}

// WithdrawOffer handles GET /lnurlw/{cardID}
func (h *Handler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	cardID, err := cardIDFromPath(r)
	if err != nil {
		lnurlError(w, err.Error())
		return
	}

	offer, err := h.svc.BuildWithdrawOffer(r.Context(), cardID)
	if err != nil {
		h.log.Warnf("Withdraw offer failed for card %d: %v", cardID, err)
		lnurlError(w, lnurlReason(err))
		return
	}

	writeJSON(w, http.StatusOK, withdrawOfferResponse{
		Tag:                "withdrawRequest",
		Callback:           fmt.Sprintf("%s/lnurlw/%d/cb", h.cfg.PublicURL, cardID),
		K1:                 offer.K1,
		DefaultDescription: offer.DefaultDescription,
		MinWithdrawable:    offer.MinWithdrawableMsat,
		MaxWithdrawable:    offer.MaxWithdrawableMsat,
		BalanceCheck:       fmt.Sprintf("%s/lnurlw/%d", h.cfg.PublicURL, cardID),
		PayLink:            fmt.Sprintf("%s/lnurlp/%d", h.cfg.PublicURL, cardID),
	})
}

// WithdrawCallback handles GET /lnurlw/{cardID}/cb. The tap payload and MAC
// ride in the p and c query parameters, the invoice in pr.
func (h *Handler) WithdrawCallback(w http.ResponseWriter, r *http.Request) {
	cardID, err := cardIDFromPath(r)
	if err != nil {
		lnurlError(w, err.Error())
		return
	}

	q := r.URL.Query()
	payload, mac, invoice := q.Get("p"), q.Get("c"), q.Get("pr")
	if payload == "" || mac == "" || invoice == "" {
		lnurlError(w, "missing p, c or pr parameter")
		return
	}

	paymentHash, err := h.svc.WithdrawCallback(r.Context(), cardID, payload, mac, invoice)
	if err != nil {
		h.log.Warnf("Withdraw callback failed for card %d: %v", cardID, err)
		lnurlError(w, lnurlReason(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "OK", "paymentHash": paymentHash})
}

// TopUpOffer handles GET /lnurlp/{cardID}
func (h *Handler) TopUpOffer(w http.ResponseWriter, r *http.Request) {
	cardID, err := cardIDFromPath(r)
	if err != nil {
		lnurlError(w, err.Error())
		return
	}

	offer, err := h.svc.BuildTopUpOffer(cardID)
	if err != nil {
		h.log.Warnf("Top-up offer failed for card %d: %v", cardID, err)
		lnurlError(w, lnurlReason(err))
		return
	}

	writeJSON(w, http.StatusOK, topUpOfferResponse{
		Tag:            "payRequest",
		Callback:       fmt.Sprintf("%s/lnurlp/%d/cb", h.cfg.PublicURL, cardID),
		MinSendable:    offer.MinSendableMsat,
		MaxSendable:    offer.MaxSendableMsat,
		Metadata:       offer.Metadata,
		CommentAllowed: offer.CommentAllowed,
	})
}

// TopUpCallback handles GET /lnurlp/{cardID}/cb?amount=<msat>&comment=...
func (h *Handler) TopUpCallback(w http.ResponseWriter, r *http.Request) {
	cardID, err := cardIDFromPath(r)
	if err != nil {
		lnurlError(w, err.Error())
		return
	}

	amountMsat, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		lnurlError(w, "invalid amount")
		return
	}

	invoice, err := h.svc.RequestTopUp(r.Context(), cardID, amountMsat, r.URL.Query().Get("comment"))
	if err != nil {
		h.log.Warnf("Top-up callback failed for card %d: %v", cardID, err)
		lnurlError(w, lnurlReason(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pr":            invoice,
		"successAction": map[string]string{"tag": "message", "message": "Top-up received"},
		"routes":        []interface{}{},
	})
}

// RailHook handles POST /hooks/rail, the rail's payment confirmation signal.
// Settlement is idempotent, so duplicate deliveries are harmless.
func (h *Handler) RailHook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentHash string `json:"paymentHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PaymentHash == "" {
		lnurlError(w, "missing paymentHash")
		return
	}

	if err := h.svc.ProcessTopUpPayment(r.Context(), body.PaymentHash); err != nil {
		h.log.Warnf("Settlement failed for %s: %v", body.PaymentHash, err)
		lnurlError(w, lnurlReason(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
