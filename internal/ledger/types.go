package ledger

import (
	"errors"
	"time"
)

// NativeAsset is the payment-asset sentinel for the chain's own currency.
// Any other asset id is treated as a token and settles through allowances.
const NativeAsset = "NATIVE"

// State is the lifecycle state of a sponsorship contract.
type State string

const (
	StateDraft      State = "draft"
	StateActive     State = "active"
	StateCompleted  State = "completed"
	StateDisputed   State = "disputed"
	StateTerminated State = "terminated"
)

// MilestoneStatus is the sub-state of one milestone, independent per
// milestone.
type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneDisputed  MilestoneStatus = "disputed"
	MilestoneRejected  MilestoneStatus = "rejected"
)

// Milestone is a payment-triggering sub-deliverable. Identity is
// (contract id, index); the index is stable and never reordered.
type Milestone struct {
	Description  string          `json:"description"`
	Amount       int64           `json:"amount"`
	Deadline     time.Time       `json:"deadline"` // advisory, never enforced
	Status       MilestoneStatus `json:"status"`
	EvidenceRef  string          `json:"evidence_ref,omitempty"`
	Paid         bool            `json:"paid"`
	RejectReason string          `json:"reject_reason,omitempty"`
	PaymentID    string          `json:"payment_id,omitempty"`
}

// Contract is the authoritative record of one sponsorship deal.
type Contract struct {
	ID          uint64      `json:"id"`
	Athlete     string      `json:"athlete"`
	Sponsor     string      `json:"sponsor"`
	Agent       string      `json:"agent,omitempty"`
	DocRef      string      `json:"doc_ref"`
	DocHistory  []string    `json:"doc_history,omitempty"`
	TotalValue  int64       `json:"total_value"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	State       State       `json:"state"`
	Asset       string      `json:"asset"`
	Milestones  []Milestone `json:"milestones"`
	Arbitrators []string    `json:"arbitrators,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AllMilestonesPaid reports whether every milestone carries the paid latch.
func (c Contract) AllMilestonesPaid() bool {
	if len(c.Milestones) == 0 {
		return false
	}
	for _, m := range c.Milestones {
		if !m.Paid {
			return false
		}
	}
	return true
}

// IsParty reports whether addr is the contract's athlete or sponsor.
func (c Contract) IsParty(addr string) bool {
	return addr != "" && (addr == c.Athlete || addr == c.Sponsor)
}

// HasArbitrator reports membership in the designated arbitrator list.
func (c Contract) HasArbitrator(addr string) bool {
	for _, a := range c.Arbitrators {
		if a == addr {
			return true
		}
	}
	return false
}

// Error taxonomy. Every precondition violation maps onto exactly one of
// these so callers can branch on kind instead of matching reason text.
var (
	ErrUnauthorized   = errors.New("ledger: unauthorized")
	ErrInvalidState   = errors.New("ledger: invalid state")
	ErrInvalidInput   = errors.New("ledger: invalid input")
	ErrAlreadyExists  = errors.New("ledger: already exists")
	ErrNotFound       = errors.New("ledger: not found")
	ErrTransferFailed = errors.New("ledger: transfer failed")
)
