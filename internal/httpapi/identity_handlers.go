package httpapi

import (
	"net/http"
	"strings"

	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/stream"
)

type registerUserRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	Name    string `json:"name"`
	DocRef  string `json:"doc_ref"`
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req registerUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = caller
	}

	profile, err := a.deps.Identity.Register(r.Context(), caller, address, identity.Role(strings.ToLower(strings.TrimSpace(req.Role))), req.Name, req.DocRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "identity.user.registered", map[string]any{
		"address": profile.Address,
		"role":    req.Role,
	})
	a.publish(stream.DealEvent{
		Type:    stream.TypeUserRegistered,
		Actor:   caller,
		Subject: profile.Address,
		Detail:  strings.ToLower(strings.TrimSpace(req.Role)),
	})

	w.Header().Set("Location", "/v1/users/"+profile.Address)
	writeJSON(w, http.StatusCreated, profile)
}

func (a *API) verifyUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	addr := r.PathValue("addr")

	profile, err := a.deps.Identity.Verify(r.Context(), caller, addr)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "identity.user.verified", map[string]any{"address": addr})
	a.publish(stream.DealEvent{
		Type:    stream.TypeUserVerified,
		Actor:   caller,
		Subject: profile.Address,
	})
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	profile, err := a.deps.Identity.Get(r.Context(), r.PathValue("addr"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) listUserContracts(w http.ResponseWriter, r *http.Request) {
	ids, err := a.deps.Identity.ContractsOf(r.Context(), r.PathValue("addr"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	contracts, err := a.deps.Ledger.Contracts(r.Context(), ids)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": contracts})
}
