package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/obs"
	"sponsorchain.org/internal/stream"
)

type createContractRequest struct {
	Athlete     string    `json:"athlete"`
	Sponsor     string    `json:"sponsor"`
	DocRef      string    `json:"doc_ref"`
	TotalValue  int64     `json:"total_value"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Asset       string    `json:"asset"`
	Arbitrators []string  `json:"arbitrators"`
}

type addMilestonesRequest struct {
	Descriptions []string    `json:"descriptions"`
	Amounts      []int64     `json:"amounts"`
	Deadlines    []time.Time `json:"deadlines"`
}

type evidenceRequest struct {
	EvidenceRef string `json:"evidence_ref"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type documentRequest struct {
	DocRef string `json:"doc_ref"`
}

type mintTokenRequest struct {
	URI string `json:"uri"`
}

func pathID(r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (a *API) createContract(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Factory.CreateSponsorshipContract(r.Context(), caller, ledger.CreateContractParams{
		Athlete:     req.Athlete,
		Sponsor:     req.Sponsor,
		DocRef:      req.DocRef,
		TotalValue:  req.TotalValue,
		Start:       req.Start,
		End:         req.End,
		Asset:       req.Asset,
		Arbitrators: req.Arbitrators,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.ContractCreated()
	a.audit(r.Context(), "contract.created", map[string]any{
		"contract_id": c.ID,
		"athlete":     c.Athlete,
		"sponsor":     c.Sponsor,
		"total_value": c.TotalValue,
		"asset":       c.Asset,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeContractCreated,
		ContractID: c.ID,
		Actor:      caller,
		Subject:    c.Athlete,
		Asset:      c.Asset,
		Amount:     c.TotalValue,
	})

	w.Header().Set("Location", "/v1/contracts/"+strconv.FormatUint(c.ID, 10))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) getContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	c, err := a.deps.Ledger.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) addMilestones(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	var req addMilestonesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Ledger.AddMilestones(r.Context(), caller, id, req.Descriptions, req.Amounts, req.Deadlines)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "contract.milestones.defined", map[string]any{
		"contract_id": c.ID,
		"count":       len(c.Milestones),
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeMilestonesDefined,
		ContractID: c.ID,
		Actor:      caller,
		Detail:     fmt.Sprintf("%d milestones", len(c.Milestones)),
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) activateContract(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}

	c, err := a.deps.Ledger.Activate(r.Context(), caller, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "contract.activated", map[string]any{"contract_id": c.ID})
	a.publish(stream.DealEvent{
		Type:       stream.TypeContractActivated,
		ContractID: c.ID,
		Actor:      caller,
		Asset:      c.Asset,
		Amount:     c.TotalValue,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) submitMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	idx, ok := pathID(r, "idx")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "milestone index must be a non-negative integer")
		return
	}
	var req evidenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Ledger.SubmitMilestone(r.Context(), caller, id, int(idx), req.EvidenceRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "milestone.submitted", map[string]any{
		"contract_id": c.ID,
		"milestone":   idx,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeMilestoneSubmit,
		ContractID: c.ID,
		Actor:      caller,
		Detail:     c.Milestones[idx].Description,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) approveMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	idx, ok := pathID(r, "idx")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "milestone index must be a non-negative integer")
		return
	}

	c, err := a.deps.Ledger.ApproveMilestone(r.Context(), caller, id, int(idx))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	m := c.Milestones[idx]
	obs.PaymentReleased(c.Asset)
	a.audit(r.Context(), "milestone.paid", map[string]any{
		"contract_id": c.ID,
		"milestone":   idx,
		"amount":      m.Amount,
		"asset":       c.Asset,
		"payment_id":  m.PaymentID,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeMilestonePaid,
		ContractID: c.ID,
		Actor:      caller,
		Subject:    c.Athlete,
		Asset:      c.Asset,
		Amount:     m.Amount,
	})
	if c.State == ledger.StateCompleted {
		a.audit(r.Context(), "contract.completed", map[string]any{"contract_id": c.ID})
		a.publish(stream.DealEvent{
			Type:       stream.TypeContractCompleted,
			ContractID: c.ID,
			Asset:      c.Asset,
			Amount:     c.TotalValue,
		})
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) rejectMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	idx, ok := pathID(r, "idx")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "milestone index must be a non-negative integer")
		return
	}
	var req reasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Ledger.RejectMilestone(r.Context(), caller, id, int(idx), req.Reason)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "milestone.rejected", map[string]any{
		"contract_id": c.ID,
		"milestone":   idx,
		"reason":      req.Reason,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeMilestoneRejected,
		ContractID: c.ID,
		Actor:      caller,
		Detail:     req.Reason,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) updateDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	var req documentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := a.deps.Ledger.UpdateDocument(r.Context(), caller, id, req.DocRef)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.audit(r.Context(), "contract.document.amended", map[string]any{
		"contract_id": c.ID,
		"doc_ref":     c.DocRef,
		"revisions":   len(c.DocHistory),
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeContractAmended,
		ContractID: c.ID,
		Actor:      caller,
		Detail:     c.DocRef,
	})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) mintContractToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	var req mintTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tok, err := a.deps.Factory.MintContractNFT(r.Context(), caller, id, req.URI)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.TokenMinted()
	a.audit(r.Context(), "token.minted", map[string]any{
		"token_id":    tok.ID,
		"contract_id": tok.ContractID,
		"owner":       tok.Owner,
	})
	a.publish(stream.DealEvent{
		Type:       stream.TypeTokenMinted,
		ContractID: tok.ContractID,
		TokenID:    tok.ID,
		Actor:      caller,
		Subject:    tok.Owner,
	})

	w.Header().Set("Location", "/v1/tokens/"+strconv.FormatUint(tok.ID, 10))
	writeJSON(w, http.StatusCreated, tok)
}

func (a *API) listContractDisputes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "contract id must be a non-negative integer")
		return
	}
	ds, err := a.deps.Disputes.ByContract(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": ds})
}
