package treasury

import (
	"errors"
	"time"

	"sponsorchain.org/internal/ids"
)

// NativeAsset is the sentinel asset id for the chain's own currency. Any
// other asset id denotes a token contract.
const NativeAsset = "NATIVE"

// Money is an amount of one asset in minor units. No floats.
type Money struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

func (m Money) IsPositive() bool { return m.Amount > 0 }

// Account holds per-asset balances for one address.
type Account struct {
	Address   string           `json:"address"`
	CreatedAt time.Time        `json:"created_at"`
	Balances  map[string]int64 `json:"balances"` // asset -> minor units
}

// Payment is the journal record of a completed value movement.
type Payment struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Asset     string    `json:"asset"`
	Amount    int64     `json:"amount"`
	Spender   string    `json:"spender,omitempty"` // set for allowance-backed movements
	Sequence  uint64    `json:"sequence"`          // monotonic journal sequence
}

var (
	ErrNotFound              = errors.New("treasury: not found")
	ErrInsufficientFunds     = errors.New("treasury: insufficient funds")
	ErrInsufficientAllowance = errors.New("treasury: insufficient allowance")
	ErrInvalidAmount         = errors.New("treasury: invalid amount (must be > 0)")
	ErrInvalidAsset          = errors.New("treasury: invalid asset")
)

func newPaymentID() string {
	return ids.New()
}
