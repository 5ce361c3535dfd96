package arbitration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
)

// Dispute is one arbitration case over a sponsorship contract. Once
// resolved it is immutable.
type Dispute struct {
	ID              uint64          `json:"id"`
	ContractID      uint64          `json:"contract_id"`
	Initiator       string          `json:"initiator"`
	EvidenceRef     string          `json:"evidence_ref,omitempty"`
	Reason          string          `json:"reason"`
	CreatedAt       time.Time       `json:"created_at"`
	Resolved        bool            `json:"resolved"`
	FavorAthlete    bool            `json:"favor_athlete"`
	Votes           map[string]bool `json:"votes"` // arbitrator -> favors athlete
	VotesForAthlete int             `json:"votes_for_athlete"`
	VotesForSponsor int             `json:"votes_for_sponsor"`
	Voters          []string        `json:"voters"` // in voting order
}

var (
	ErrNotFound        = errors.New("arbitration: not found")
	ErrUnauthorized    = errors.New("arbitration: unauthorized")
	ErrInvalidInput    = errors.New("arbitration: invalid input")
	ErrAlreadyVoted    = errors.New("arbitration: already voted")
	ErrDisputeResolved = errors.New("arbitration: dispute already resolved")
)

// ContractLedger is the slice of the deal ledger the engine drives.
type ContractLedger interface {
	Get(ctx context.Context, id uint64) (ledger.Contract, error)
	MarkDisputed(ctx context.Context, caller string, id uint64) (ledger.Contract, error)
	ResolveDispute(ctx context.Context, caller string, id uint64, favorAthlete bool) (ledger.Contract, error)
}

// RoleDirectory answers role-membership questions for authorization.
type RoleDirectory interface {
	HasRole(ctx context.Context, addr string, role identity.Role) (bool, error)
}

// Engine runs the majority-vote resolution protocol. Dispute ids are dense,
// start at 0 and are never reused. The engine owns only the dispute records;
// contract state changes are delegated back to the ledger within the same
// operation.
type Engine struct {
	mu       sync.RWMutex
	disputes map[uint64]*Dispute
	nextID   uint64
	ledger   ContractLedger
	roles    RoleDirectory
}

// NewEngine creates an engine bound to the given ledger and role directory.
func NewEngine(l ContractLedger, roles RoleDirectory) *Engine {
	return &Engine{
		disputes: make(map[uint64]*Dispute),
		ledger:   l,
		roles:    roles,
	}
}

// CreateDispute opens a case on an active contract. The caller must be the
// contract's athlete or sponsor; the ledger rejects contracts that are
// already disputed or terminated, so at most one case is open per contract.
func (e *Engine) CreateDispute(ctx context.Context, caller string, contractID uint64, evidenceRef, reason string) (Dispute, error) {
	caller = strings.TrimSpace(caller)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Dispute{}, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Flipping the contract to disputed enforces the party and state
	// preconditions atomically with dispute creation.
	if _, err := e.ledger.MarkDisputed(ctx, caller, contractID); err != nil {
		return Dispute{}, err
	}

	d := &Dispute{
		ID:          e.nextID,
		ContractID:  contractID,
		Initiator:   caller,
		EvidenceRef: strings.TrimSpace(evidenceRef),
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
		Votes:       make(map[string]bool),
	}
	e.disputes[d.ID] = d
	e.nextID++
	return copyDispute(d), nil
}

// Vote records one arbitrator's verdict. When either tally reaches a strict
// majority of the contract's arbitrator panel the dispute resolves
// immediately without waiting for the remaining votes; an even split leaves
// it open until a further vote or an admin override breaks the tie. On
// contracts without a designated panel any role-granted arbitrator may vote
// and a strict majority of the votes cast so far decides instead.
func (e *Engine) Vote(ctx context.Context, caller string, disputeID uint64, favorAthlete bool) (Dispute, error) {
	caller = strings.TrimSpace(caller)

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.disputes[disputeID]
	if !ok {
		return Dispute{}, fmt.Errorf("%w: dispute %d", ErrNotFound, disputeID)
	}
	if d.Resolved {
		return Dispute{}, fmt.Errorf("%w: dispute %d", ErrDisputeResolved, disputeID)
	}

	isArb, err := e.roles.HasRole(ctx, caller, identity.RoleArbitrator)
	if err != nil {
		return Dispute{}, err
	}
	if !isArb {
		return Dispute{}, fmt.Errorf("%w: voting requires the arbitrator role", ErrUnauthorized)
	}
	c, err := e.ledger.Get(ctx, d.ContractID)
	if err != nil {
		return Dispute{}, err
	}
	if len(c.Arbitrators) > 0 && !c.HasArbitrator(caller) {
		return Dispute{}, fmt.Errorf("%w: not on this contract's arbitrator panel", ErrUnauthorized)
	}
	if _, voted := d.Votes[caller]; voted {
		return Dispute{}, fmt.Errorf("%w: %s", ErrAlreadyVoted, caller)
	}

	d.Votes[caller] = favorAthlete
	d.Voters = append(d.Voters, caller)
	if favorAthlete {
		d.VotesForAthlete++
	} else {
		d.VotesForSponsor++
	}

	quorum := len(c.Arbitrators)
	if quorum == 0 {
		quorum = len(d.Voters)
	}
	verdict := false
	switch {
	case d.VotesForAthlete*2 > quorum:
		verdict = true
	case d.VotesForSponsor*2 > quorum:
	default:
		return copyDispute(d), nil
	}
	if err := e.resolveLocked(ctx, caller, d, verdict); err != nil {
		// Undo the vote so a failed resolution leaves no trace of it.
		delete(d.Votes, caller)
		d.Voters = d.Voters[:len(d.Voters)-1]
		if favorAthlete {
			d.VotesForAthlete--
		} else {
			d.VotesForSponsor--
		}
		return Dispute{}, err
	}
	return copyDispute(d), nil
}

// ForceResolve is the admin escape hatch: it bypasses voting entirely and
// finalizes the dispute with the given outcome.
func (e *Engine) ForceResolve(ctx context.Context, caller string, disputeID uint64, favorAthlete bool) (Dispute, error) {
	caller = strings.TrimSpace(caller)

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.disputes[disputeID]
	if !ok {
		return Dispute{}, fmt.Errorf("%w: dispute %d", ErrNotFound, disputeID)
	}
	if d.Resolved {
		return Dispute{}, fmt.Errorf("%w: dispute %d", ErrDisputeResolved, disputeID)
	}
	isAdmin, err := e.roles.HasRole(ctx, caller, identity.RoleAdmin)
	if err != nil {
		return Dispute{}, err
	}
	if !isAdmin {
		return Dispute{}, fmt.Errorf("%w: force-resolve requires the admin role", ErrUnauthorized)
	}

	if err := e.resolveLocked(ctx, caller, d, favorAthlete); err != nil {
		return Dispute{}, err
	}
	return copyDispute(d), nil
}

// Get returns a dispute snapshot.
func (e *Engine) Get(ctx context.Context, disputeID uint64) (Dispute, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.disputes[disputeID]
	if !ok {
		return Dispute{}, fmt.Errorf("%w: dispute %d", ErrNotFound, disputeID)
	}
	return copyDispute(d), nil
}

// ByContract returns every dispute raised on the given contract, oldest
// first.
func (e *Engine) ByContract(ctx context.Context, contractID uint64) ([]Dispute, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Dispute
	for id := uint64(0); id < e.nextID; id++ {
		if d, ok := e.disputes[id]; ok && d.ContractID == contractID {
			out = append(out, copyDispute(d))
		}
	}
	return out, nil
}

func (e *Engine) resolveLocked(ctx context.Context, caller string, d *Dispute, favorAthlete bool) error {
	if _, err := e.ledger.ResolveDispute(ctx, caller, d.ContractID, favorAthlete); err != nil {
		return err
	}
	d.Resolved = true
	d.FavorAthlete = favorAthlete
	return nil
}

func copyDispute(d *Dispute) Dispute {
	out := *d
	out.Votes = make(map[string]bool, len(d.Votes))
	for k, v := range d.Votes {
		out.Votes[k] = v
	}
	out.Voters = make([]string, len(d.Voters))
	copy(out.Voters, d.Voters)
	return out
}
