package httpapi

import (
	"net/http"

	"sponsorchain.org/internal/stream"
)

type transferTokenRequest struct {
	To string `json:"to"`
}

type royaltyRequest struct {
	Amount int64 `json:"amount"`
}

func (a *API) getToken(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token id must be a non-negative integer")
		return
	}
	tok, err := a.deps.Tokens.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) transferToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token id must be a non-negative integer")
		return
	}
	var req transferTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := a.deps.Tokens.Transfer(r.Context(), caller, id, req.To)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "token.transferred", map[string]any{
		"token_id":    tok.ID,
		"contract_id": tok.ContractID,
		"to":          tok.Owner,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeTokenTransferred,
		ContractID: tok.ContractID,
		TokenID:    tok.ID,
		Actor:      caller,
		Subject:    tok.Owner,
	})
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) recordRoyalty(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token id must be a non-negative integer")
		return
	}
	var req royaltyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.deps.Tokens.RecordRoyalty(r.Context(), caller, id, req.Amount)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "token.royalty.recorded", map[string]any{
		"token_id": rec.TokenID,
		"amount":   rec.Amount,
	})
	a.publish(stream.DealEvent{
		Type:    stream.TypeRoyaltyRecorded,
		TokenID: rec.TokenID,
		Actor:   caller,
		Amount:  rec.Amount,
	})
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) listRoyalties(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "token id must be a non-negative integer")
		return
	}
	recs, err := a.deps.Tokens.Royalties(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": recs})
}
