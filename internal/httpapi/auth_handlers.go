package httpapi

import (
	"net/http"
	"strings"
	"time"

	"sponsorchain.org/internal/auth"
)

type tokenRequest struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		writeError(w, r, http.StatusBadRequest, "address is required")
		return
	}

	// Registered participants get their registry roles baked into the
	// token alongside whatever was requested; the domain services
	// re-check roles against the registry anyway.
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	if a.deps.Identity != nil {
		if known, err := a.deps.Identity.Roles(r.Context(), address); err == nil {
			for _, role := range known {
				roles = append(roles, string(role))
			}
		}
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "roles are required for unregistered addresses")
		return
	}

	token, err := auth.GenerateToken(address, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	a.audit(r.Context(), "auth.token.issued", map[string]any{
		"address":    address,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
