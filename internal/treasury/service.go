package treasury

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Service defines the funds engine the deal ledger settles against.
type Service interface {
	Deposit(ctx context.Context, addr string, m Money) (Account, error)
	Account(ctx context.Context, addr string) (Account, error)
	Balance(ctx context.Context, addr, asset string) (Money, error)
	Approve(ctx context.Context, owner, spender string, m Money) error
	Allowance(ctx context.Context, owner, spender, asset string) (Money, error)
	Transfer(ctx context.Context, from, to string, m Money) (Payment, error)
	TransferFrom(ctx context.Context, spender, from, to string, m Money) (Payment, error)
	ListPayments(ctx context.Context, limit int, afterSeq uint64) ([]Payment, uint64, error)
}

// InMemory implements Service with in-process concurrency safety. Accounts
// materialize lazily on first deposit or first incoming transfer, mirroring
// how chain balances exist for any address.
type InMemory struct {
	mu     sync.RWMutex
	accts  map[string]*Account
	allow  map[string]map[string]map[string]int64 // owner -> spender -> asset -> amount
	seq    uint64
	journl []Payment
}

// NewInMemory creates an empty treasury.
func NewInMemory() *InMemory {
	return &InMemory{
		accts: make(map[string]*Account),
		allow: make(map[string]map[string]map[string]int64),
	}
}

func (s *InMemory) Deposit(ctx context.Context, addr string, m Money) (Account, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Account{}, ErrNotFound
	}
	if m.Asset == "" {
		return Account{}, ErrInvalidAsset
	}
	if !m.IsPositive() {
		return Account{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.ensureAccount(addr)
	acc.Balances[m.Asset] += m.Amount
	return copyAccount(acc), nil
}

func (s *InMemory) Account(ctx context.Context, addr string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[strings.TrimSpace(addr)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *InMemory) Balance(ctx context.Context, addr, asset string) (Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[strings.TrimSpace(addr)]
	if !ok {
		return Money{Asset: asset}, nil
	}
	return Money{Asset: asset, Amount: acc.Balances[asset]}, nil
}

// Approve sets (not increments) the spender's allowance for one asset,
// ERC-20 style. A zero amount clears the allowance.
func (s *InMemory) Approve(ctx context.Context, owner, spender string, m Money) error {
	owner = strings.TrimSpace(owner)
	spender = strings.TrimSpace(spender)
	if owner == "" || spender == "" {
		return ErrNotFound
	}
	if m.Asset == "" {
		return ErrInvalidAsset
	}
	if m.Amount < 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bysp, ok := s.allow[owner]
	if !ok {
		bysp = make(map[string]map[string]int64)
		s.allow[owner] = bysp
	}
	byAsset, ok := bysp[spender]
	if !ok {
		byAsset = make(map[string]int64)
		bysp[spender] = byAsset
	}
	byAsset[m.Asset] = m.Amount
	return nil
}

func (s *InMemory) Allowance(ctx context.Context, owner, spender, asset string) (Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Money{Asset: asset, Amount: s.allow[strings.TrimSpace(owner)][strings.TrimSpace(spender)][asset]}, nil
}

func (s *InMemory) Transfer(ctx context.Context, from, to string, m Money) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferLocked(from, to, m, "")
}

// TransferFrom moves funds from owner to recipient on behalf of spender,
// consuming allowance.
func (s *InMemory) TransferFrom(ctx context.Context, spender, from, to string, m Money) (Payment, error) {
	spender = strings.TrimSpace(spender)
	if spender == "" {
		return Payment{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.allow[strings.TrimSpace(from)][spender][m.Asset]
	if remaining < m.Amount {
		return Payment{}, ErrInsufficientAllowance
	}
	p, err := s.transferLocked(from, to, m, spender)
	if err != nil {
		return Payment{}, err
	}
	s.allow[strings.TrimSpace(from)][spender][m.Asset] = remaining - m.Amount
	return p, nil
}

func (s *InMemory) ListPayments(ctx context.Context, limit int, afterSeq uint64) ([]Payment, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Payment
	var last uint64
	for _, p := range s.journl {
		if p.Sequence <= afterSeq {
			continue
		}
		res = append(res, p)
		last = p.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

func (s *InMemory) transferLocked(from, to string, m Money, spender string) (Payment, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return Payment{}, ErrNotFound
	}
	if m.Asset == "" {
		return Payment{}, ErrInvalidAsset
	}
	if !m.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}

	src, ok := s.accts[from]
	if !ok || src.Balances[m.Asset] < m.Amount {
		return Payment{}, ErrInsufficientFunds
	}
	dst := s.ensureAccount(to)

	src.Balances[m.Asset] -= m.Amount
	dst.Balances[m.Asset] += m.Amount

	s.seq++
	p := Payment{
		ID:        newPaymentID(),
		CreatedAt: time.Now().UTC(),
		From:      from,
		To:        to,
		Asset:     m.Asset,
		Amount:    m.Amount,
		Spender:   spender,
		Sequence:  s.seq,
	}
	s.journl = append(s.journl, p)
	return p, nil
}

func (s *InMemory) ensureAccount(addr string) *Account {
	acc, ok := s.accts[addr]
	if !ok {
		acc = &Account{
			Address:   addr,
			CreatedAt: time.Now().UTC(),
			Balances:  make(map[string]int64),
		}
		s.accts[addr] = acc
	}
	return acc
}

func copyAccount(acc *Account) Account {
	out := *acc
	out.Balances = make(map[string]int64, len(acc.Balances))
	for k, v := range acc.Balances {
		out.Balances[k] = v
	}
	return out
}
