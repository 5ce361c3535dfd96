package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sponsorchain.org/internal/identity"
)

// PaymentEngine is the slice of the treasury the ledger settles against.
// Token-asset deals spend the sponsor's allowance granted to the ledger's
// escrow identity; native deals debit the sponsor's balance directly.
type PaymentEngine interface {
	Allowance(ctx context.Context, owner, spender, asset string) (int64, error)
	Transfer(ctx context.Context, from, to, asset string, amount int64) (string, error)
	TransferFrom(ctx context.Context, spender, from, to, asset string, amount int64) (string, error)
}

// RoleDirectory answers role-membership questions for authorization.
type RoleDirectory interface {
	HasRole(ctx context.Context, addr string, role identity.Role) (bool, error)
}

// CreateContractParams carries the creation inputs for one deal.
type CreateContractParams struct {
	Athlete     string
	Sponsor     string
	Agent       string
	DocRef      string
	TotalValue  int64
	Start       time.Time
	End         time.Time
	Asset       string
	Arbitrators []string
}

// DefaultEscrowAddress identifies the ledger itself as an allowance spender.
const DefaultEscrowAddress = "sponsorchain:deals"

// InMemory is the authoritative deal ledger. A single mutex serializes every
// mutation so each operation is atomic, reproducing per-transaction execution
// on chain. Contract ids are dense, start at 0 and are never reused.
type InMemory struct {
	mu        sync.RWMutex
	contracts map[uint64]*Contract
	nextID    uint64
	payments  PaymentEngine
	roles     RoleDirectory
	escrow    string
}

// NewInMemory creates an empty ledger settling against payments and
// consulting roles for arbitrator/admin authorization.
func NewInMemory(payments PaymentEngine, roles RoleDirectory) *InMemory {
	return &InMemory{
		contracts: make(map[uint64]*Contract),
		payments:  payments,
		roles:     roles,
		escrow:    DefaultEscrowAddress,
	}
}

// EscrowAddress returns the identity sponsors must approve for token deals.
func (s *InMemory) EscrowAddress() string { return s.escrow }

// CreateContract stores a Draft-state deal and returns it with its assigned
// id. Role preconditions live in the factory; the ledger validates shape only.
func (s *InMemory) CreateContract(ctx context.Context, p CreateContractParams) (Contract, error) {
	athlete := strings.TrimSpace(p.Athlete)
	sponsor := strings.TrimSpace(p.Sponsor)
	if athlete == "" || sponsor == "" {
		return Contract{}, fmt.Errorf("%w: athlete and sponsor addresses are required", ErrInvalidInput)
	}
	if athlete == sponsor {
		return Contract{}, fmt.Errorf("%w: athlete and sponsor must differ", ErrInvalidInput)
	}
	if p.TotalValue <= 0 {
		return Contract{}, fmt.Errorf("%w: total value must be > 0", ErrInvalidInput)
	}
	if !p.End.After(p.Start) {
		return Contract{}, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	asset := strings.TrimSpace(p.Asset)
	if asset == "" {
		asset = NativeAsset
	}

	arbs := make([]string, 0, len(p.Arbitrators))
	for _, a := range p.Arbitrators {
		a = strings.TrimSpace(a)
		if a != "" {
			arbs = append(arbs, a)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	c := &Contract{
		ID:          s.nextID,
		Athlete:     athlete,
		Sponsor:     sponsor,
		Agent:       strings.TrimSpace(p.Agent),
		DocRef:      strings.TrimSpace(p.DocRef),
		TotalValue:  p.TotalValue,
		Start:       p.Start.UTC(),
		End:         p.End.UTC(),
		State:       StateDraft,
		Asset:       asset,
		Arbitrators: arbs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.contracts[c.ID] = c
	s.nextID++
	return copyContract(c), nil
}

// Get returns a contract snapshot.
func (s *InMemory) Get(ctx context.Context, id uint64) (Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	return copyContract(c), nil
}

// Contracts returns snapshots for the given ids, skipping unknown ones.
func (s *InMemory) Contracts(ctx context.Context, ids []uint64) ([]Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contract, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.contracts[id]; ok {
			out = append(out, copyContract(c))
		}
	}
	return out, nil
}

// AddMilestones defines the deal's milestones in bulk, exactly once, while
// the contract is still Draft. The three arrays are parallel and the amounts
// must sum to the contract's total value with no tolerance.
func (s *InMemory) AddMilestones(ctx context.Context, caller string, id uint64, descs []string, amounts []int64, deadlines []time.Time) (Contract, error) {
	if len(descs) == 0 {
		return Contract{}, fmt.Errorf("%w: at least one milestone is required", ErrInvalidInput)
	}
	if len(descs) != len(amounts) || len(descs) != len(deadlines) {
		return Contract{}, fmt.Errorf("%w: milestone array lengths do not match", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if !c.IsParty(caller) && !s.isAgent(c, caller) {
		return Contract{}, fmt.Errorf("%w: only athlete, sponsor or agent may add milestones", ErrUnauthorized)
	}
	if c.State != StateDraft {
		return Contract{}, fmt.Errorf("%w: milestones may only be added in draft state", ErrInvalidState)
	}
	if len(c.Milestones) > 0 {
		return Contract{}, fmt.Errorf("%w: milestones already defined", ErrInvalidState)
	}

	var sum int64
	ms := make([]Milestone, len(descs))
	for i := range descs {
		if amounts[i] <= 0 {
			return Contract{}, fmt.Errorf("%w: milestone %d amount must be > 0", ErrInvalidInput, i)
		}
		sum += amounts[i]
		ms[i] = Milestone{
			Description: strings.TrimSpace(descs[i]),
			Amount:      amounts[i],
			Deadline:    deadlines[i].UTC(),
			Status:      MilestonePending,
		}
	}
	if sum != c.TotalValue {
		return Contract{}, fmt.Errorf("%w: milestone amounts sum to %d, contract value is %d", ErrInvalidInput, sum, c.TotalValue)
	}

	c.Milestones = ms
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// Activate transitions Draft -> Active. Either party may activate. Token
// deals additionally require the sponsor's pre-approved allowance to the
// ledger escrow to cover the full contract value.
func (s *InMemory) Activate(ctx context.Context, caller string, id uint64) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if !c.IsParty(caller) {
		return Contract{}, fmt.Errorf("%w: only athlete or sponsor may activate", ErrUnauthorized)
	}
	if c.State != StateDraft {
		return Contract{}, fmt.Errorf("%w: contract is %s, not draft", ErrInvalidState, c.State)
	}
	if len(c.Milestones) == 0 {
		return Contract{}, fmt.Errorf("%w: cannot activate without milestones", ErrInvalidState)
	}
	if c.Asset != NativeAsset {
		allowed, err := s.payments.Allowance(ctx, c.Sponsor, s.escrow, c.Asset)
		if err != nil {
			return Contract{}, fmt.Errorf("%w: allowance check: %v", ErrTransferFailed, err)
		}
		if allowed < c.TotalValue {
			return Contract{}, fmt.Errorf("%w: allowance %d below contract value %d", ErrInvalidState, allowed, c.TotalValue)
		}
	}

	c.State = StateActive
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// SubmitMilestone marks a pending milestone completed with evidence. Athlete
// only, and only while the contract is Active.
func (s *InMemory) SubmitMilestone(ctx context.Context, caller string, id uint64, idx int, evidenceRef string) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m, err := s.milestoneLocked(id, idx)
	if err != nil {
		return Contract{}, err
	}
	if caller != c.Athlete {
		return Contract{}, fmt.Errorf("%w: only the athlete may submit milestones", ErrUnauthorized)
	}
	if c.State != StateActive {
		return Contract{}, fmt.Errorf("%w: contract is %s, not active", ErrInvalidState, c.State)
	}
	if m.Status != MilestonePending {
		return Contract{}, fmt.Errorf("%w: milestone %d is %s, not pending", ErrInvalidState, idx, m.Status)
	}

	m.Status = MilestoneCompleted
	m.EvidenceRef = strings.TrimSpace(evidenceRef)
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// ApproveMilestone releases the milestone payment from sponsor to athlete.
// The paid latch flips strictly before the value transfer; on transfer
// failure every mutation is rolled back so the operation aborts cleanly.
// When the last milestone is paid the contract completes.
func (s *InMemory) ApproveMilestone(ctx context.Context, caller string, id uint64, idx int) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m, err := s.milestoneLocked(id, idx)
	if err != nil {
		return Contract{}, err
	}
	if caller != c.Sponsor {
		return Contract{}, fmt.Errorf("%w: only the sponsor may approve milestones", ErrUnauthorized)
	}
	if c.State != StateActive {
		return Contract{}, fmt.Errorf("%w: contract is %s, not active", ErrInvalidState, c.State)
	}
	if m.Status != MilestoneCompleted {
		return Contract{}, fmt.Errorf("%w: milestone %d is %s, not completed", ErrInvalidState, idx, m.Status)
	}
	if m.Paid {
		return Contract{}, fmt.Errorf("%w: milestone %d already paid", ErrInvalidState, idx)
	}

	// Latch before the external transfer.
	m.Paid = true

	var payID string
	var payErr error
	if c.Asset == NativeAsset {
		payID, payErr = s.payments.Transfer(ctx, c.Sponsor, c.Athlete, c.Asset, m.Amount)
	} else {
		payID, payErr = s.payments.TransferFrom(ctx, s.escrow, c.Sponsor, c.Athlete, c.Asset, m.Amount)
	}
	if payErr != nil {
		m.Paid = false
		return Contract{}, fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}
	m.PaymentID = payID

	if c.AllMilestonesPaid() {
		c.State = StateCompleted
	}
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// RejectMilestone is the sponsor's terminal refusal of a completed,
// unpaid milestone. There is no path back to pending.
func (s *InMemory) RejectMilestone(ctx context.Context, caller string, id uint64, idx int, reason string) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, m, err := s.milestoneLocked(id, idx)
	if err != nil {
		return Contract{}, err
	}
	if caller != c.Sponsor {
		return Contract{}, fmt.Errorf("%w: only the sponsor may reject milestones", ErrUnauthorized)
	}
	if m.Status != MilestoneCompleted {
		return Contract{}, fmt.Errorf("%w: milestone %d is %s, not completed", ErrInvalidState, idx, m.Status)
	}
	if m.Paid {
		return Contract{}, fmt.Errorf("%w: milestone %d already paid", ErrInvalidState, idx)
	}

	m.Status = MilestoneRejected
	m.RejectReason = strings.TrimSpace(reason)
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// MarkDisputed transitions Active -> Disputed on behalf of a party raising a
// dispute. The arbitration engine calls this when a dispute record is opened.
func (s *InMemory) MarkDisputed(ctx context.Context, caller string, id uint64) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if !c.IsParty(caller) {
		return Contract{}, fmt.Errorf("%w: only athlete or sponsor may raise a dispute", ErrUnauthorized)
	}
	if c.State != StateActive {
		return Contract{}, fmt.Errorf("%w: contract is %s, not active", ErrInvalidState, c.State)
	}

	c.State = StateDisputed
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// ResolveDispute finalizes a disputed contract: a verdict for the athlete
// reinstates it, a verdict for the sponsor terminates it. Authorized callers
// are the contract's designated arbitrators, any role-granted arbitrator,
// or an admin (the force-resolution path).
func (s *InMemory) ResolveDispute(ctx context.Context, caller string, id uint64, favorAthlete bool) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	allowed := c.HasArbitrator(caller)
	if !allowed {
		if is, err := s.roles.HasRole(ctx, caller, identity.RoleArbitrator); err == nil && is {
			allowed = true
		}
	}
	if !allowed {
		if is, err := s.roles.HasRole(ctx, caller, identity.RoleAdmin); err == nil && is {
			allowed = true
		}
	}
	if !allowed {
		return Contract{}, fmt.Errorf("%w: only arbitrators or admins may resolve disputes", ErrUnauthorized)
	}
	if c.State != StateDisputed {
		return Contract{}, fmt.Errorf("%w: contract is %s, not disputed", ErrInvalidState, c.State)
	}

	if favorAthlete {
		c.State = StateActive
	} else {
		c.State = StateTerminated
	}
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

// UpdateDocument pushes the current document reference onto the amendment
// history and replaces it. Deliberately not gated on state: amendments can
// land after activation.
func (s *InMemory) UpdateDocument(ctx context.Context, caller string, id uint64, newDocRef string) (Contract, error) {
	newDocRef = strings.TrimSpace(newDocRef)
	if newDocRef == "" {
		return Contract{}, fmt.Errorf("%w: document reference is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if !c.IsParty(caller) && !s.isAgent(c, caller) {
		return Contract{}, fmt.Errorf("%w: only athlete, sponsor or agent may amend the document", ErrUnauthorized)
	}

	c.DocHistory = append(c.DocHistory, c.DocRef)
	c.DocRef = newDocRef
	c.UpdatedAt = time.Now().UTC()
	return copyContract(c), nil
}

func (s *InMemory) isAgent(c *Contract, caller string) bool {
	return c.Agent != "" && caller == c.Agent
}

func (s *InMemory) milestoneLocked(id uint64, idx int) (*Contract, *Milestone, error) {
	c, ok := s.contracts[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if idx < 0 || idx >= len(c.Milestones) {
		return nil, nil, fmt.Errorf("%w: milestone %d of contract %d", ErrNotFound, idx, id)
	}
	return c, &c.Milestones[idx], nil
}

func copyContract(c *Contract) Contract {
	out := *c
	out.Milestones = make([]Milestone, len(c.Milestones))
	copy(out.Milestones, c.Milestones)
	out.Arbitrators = make([]string, len(c.Arbitrators))
	copy(out.Arbitrators, c.Arbitrators)
	out.DocHistory = make([]string, len(c.DocHistory))
	copy(out.DocHistory, c.DocHistory)
	return out
}
