package httpapi

import (
	"net/http"

	"sponsorchain.org/internal/obs"
	"sponsorchain.org/internal/stream"
)

type createDisputeRequest struct {
	ContractID  uint64 `json:"contract_id"`
	EvidenceRef string `json:"evidence_ref"`
	Reason      string `json:"reason"`
}

type voteRequest struct {
	FavorAthlete bool `json:"favor_athlete"`
}

func (a *API) createDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createDisputeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := a.deps.Disputes.CreateDispute(r.Context(), caller, req.ContractID, req.EvidenceRef, req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "dispute.opened", map[string]any{
		"dispute_id":  d.ID,
		"contract_id": d.ContractID,
		"reason":      d.Reason,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeDisputeOpened,
		ContractID: d.ContractID,
		DisputeID:  d.ID,
		Actor:      caller,
		Detail:     d.Reason,
	})
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) getDispute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "dispute id must be a non-negative integer")
		return
	}
	d, err := a.deps.Disputes.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) voteOnDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "dispute id must be a non-negative integer")
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := a.deps.Disputes.Vote(r.Context(), caller, id, req.FavorAthlete)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "dispute.vote.cast", map[string]any{
		"dispute_id":    d.ID,
		"favor_athlete": req.FavorAthlete,
		"resolved":      d.Resolved,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeDisputeVote,
		ContractID: d.ContractID,
		DisputeID:  d.ID,
		Actor:      caller,
		Detail:     verdict(req.FavorAthlete),
	})
	if d.Resolved {
		obs.DisputeResolved(d.FavorAthlete)
		a.publish(stream.DealEvent{
			Type:       stream.TypeDisputeResolved,
			ContractID: d.ContractID,
			DisputeID:  d.ID,
			Detail:     verdict(d.FavorAthlete),
		})
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) forceResolveDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "dispute id must be a non-negative integer")
		return
	}
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	d, err := a.deps.Disputes.ForceResolve(r.Context(), caller, id, req.FavorAthlete)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.DisputeResolved(d.FavorAthlete)
	a.audit(r.Context(), "dispute.force_resolved", map[string]any{
		"dispute_id":    d.ID,
		"favor_athlete": d.FavorAthlete,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeDisputeResolved,
		ContractID: d.ContractID,
		DisputeID:  d.ID,
		Actor:      caller,
		Detail:     verdict(d.FavorAthlete),
	})
	writeJSON(w, http.StatusOK, d)
}

func verdict(favorAthlete bool) string {
	if favorAthlete {
		return "athlete"
	}
	return "sponsor"
}
