package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pretyflaco/BBTV2-sub010/internal/middleware"
	"github.com/pretyflaco/BBTV2-sub010/internal/service"
)

func (h *Handler) profileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.ProfileID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return id, ok
}

func (h *Handler) adminError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrCardWiped):
		status = http.StatusConflict
	default:
		h.log.Errorf("Request failed: %v", err)
		http.Error(w, "Internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// Register handles POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		BTCWalletID string `json:"btc_wallet_id"`
		USDWalletID string `json:"usd_wallet_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	profile, err := h.svc.Register(req.Email, req.Password, req.BTCWalletID, req.USDWalletID)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.svc.Login(req.Email, req.Password)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateCard handles POST /cards
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var params service.CreateCardParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := h.svc.CreateCard(profileID, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// ListCards handles GET /cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	cards, err := h.svc.ListCards(profileID)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// GetCard handles GET /cards/{cardID}
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	cardID, err := cardIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := h.svc.GetCard(profileID, cardID)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// SetCardStatus handles PUT /cards/{cardID}/status
func (h *Handler) SetCardStatus(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	cardID, err := cardIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := h.svc.SetCardStatus(profileID, cardID, req.Status)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// CardKeys handles GET /cards/{cardID}/keys. Returns the key material used
// to program the physical card, hex encoded.
func (h *Handler) CardKeys(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	cardID, err := cardIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	keys, err := h.svc.CardKeys(profileID, cardID)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"k0":           hex.EncodeToString(keys.K0),
		"k1":           hex.EncodeToString(keys.K1),
		"k2":           hex.EncodeToString(keys.K2),
		"k3":           hex.EncodeToString(keys.K3),
		"k4":           hex.EncodeToString(keys.K4),
		"card_id_hash": hex.EncodeToString(keys.CardIDHash),
	})
}

// CardTransactions handles GET /cards/{cardID}/transactions
func (h *Handler) CardTransactions(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}
	cardID, err := cardIDFromPath(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	txs, err := h.svc.ListTransactions(profileID, cardID)
	if err != nil {
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// ResolveCard handles POST /cards/resolve: identify which card produced an
// unattributed tap payload.
func (h *Handler) ResolveCard(w http.ResponseWriter, r *http.Request) {
	profileID, ok := h.profileID(w, r)
	if !ok {
		return
	}

	var req struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	card, err := h.svc.ResolveCardByTap(profileID, req.Payload)
	if err != nil {
		if errors.Is(err, service.ErrTapVerification) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}
