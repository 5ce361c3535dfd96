package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/treasury"
)

type depositRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

type approvalRequest struct {
	Spender string `json:"spender"`
	Asset   string `json:"asset"`
	Amount  int64  `json:"amount"`
}

type listPaymentsResponse struct {
	Items     []treasury.Payment `json:"items"`
	NextAfter uint64             `json:"next_after"`
	AsOf      time.Time          `json:"as_of"`
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = caller
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		asset = treasury.NativeAsset
	}

	acc, err := a.deps.Treasury.Deposit(r.Context(), address, treasury.Money{Asset: asset, Amount: req.Amount})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "treasury.deposit", map[string]any{
		"address": address,
		"asset":   asset,
		"amount":  req.Amount,
	})
	writeJSON(w, http.StatusCreated, acc)
}

// approveAllowance grants a spender the right to pull the caller's funds.
// Sponsors use this to cover token-asset deals: the spender defaults to the
// deal escrow.
func (a *API) approveAllowance(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req approvalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	spender := strings.TrimSpace(req.Spender)
	if spender == "" {
		spender = ledger.DefaultEscrowAddress
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		writeError(w, r, http.StatusBadRequest, "asset is required")
		return
	}

	if err := a.deps.Treasury.Approve(r.Context(), caller, spender, treasury.Money{Asset: asset, Amount: req.Amount}); err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "treasury.allowance.set", map[string]any{
		"owner":   caller,
		"spender": spender,
		"asset":   asset,
		"amount":  req.Amount,
	})
	allowance, err := a.deps.Treasury.Allowance(r.Context(), caller, spender, asset)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     caller,
		"spender":   spender,
		"allowance": allowance,
	})
}

func (a *API) getTreasuryAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.deps.Treasury.Account(r.Context(), r.PathValue("addr"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) listPayments(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	afterParam := strings.TrimSpace(r.URL.Query().Get("after"))
	var after uint64
	if afterParam != "" {
		v, err := strconv.ParseUint(afterParam, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = v
	}

	items, next, err := a.deps.Treasury.ListPayments(r.Context(), limit, after)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listPaymentsResponse{
		Items:     items,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}
