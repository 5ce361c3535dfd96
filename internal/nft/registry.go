package nft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sponsorchain.org/internal/ids"
)

// Token represents one sponsorship deal as a transferable ownership record.
// At most one token exists per contract id.
type Token struct {
	ID         uint64    `json:"id"`
	Owner      string    `json:"owner"`
	URI        string    `json:"uri"`
	ContractID uint64    `json:"contract_id"`
	MintedAt   time.Time `json:"minted_at"`
}

// RoyaltyRecord is an off-chain-tracking event only; no value moves here.
// The actual payment logic lives in the deal ledger's milestone release.
type RoyaltyRecord struct {
	ID        string    `json:"id"`
	TokenID   uint64    `json:"token_id"`
	Payer     string    `json:"payer"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound      = errors.New("nft: not found")
	ErrUnauthorized  = errors.New("nft: unauthorized")
	ErrAlreadyMinted = errors.New("nft: already minted")
	ErrInvalidInput  = errors.New("nft: invalid input")
)

// Registry is the token ledger. Token ids start at 1; id 0 is reserved as
// the "unminted" sentinel in the contract->token mapping, which is what
// makes the exactly-once mint guard a plain zero check.
type Registry struct {
	mu         sync.RWMutex
	minter     string
	nextID     uint64
	tokens     map[uint64]*Token
	byContract map[uint64]uint64 // contract id -> token id, 0 = unminted
	royalties  []RoyaltyRecord
}

// NewRegistry creates a registry whose mint entry point only the given
// minter identity may call. The factory receives this grant at wiring time.
func NewRegistry(minter string) *Registry {
	return &Registry{
		minter:     strings.TrimSpace(minter),
		nextID:     1,
		tokens:     make(map[uint64]*Token),
		byContract: make(map[uint64]uint64),
	}
}

// Mint creates the one token backing a contract and assigns it to owner.
func (r *Registry) Mint(ctx context.Context, caller string, contractID uint64, owner, uri string) (Token, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Token{}, fmt.Errorf("%w: owner address is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(caller) != r.minter {
		return Token{}, fmt.Errorf("%w: minting is reserved to the factory", ErrUnauthorized)
	}
	if r.byContract[contractID] != 0 {
		return Token{}, fmt.Errorf("%w: contract %d already has token %d", ErrAlreadyMinted, contractID, r.byContract[contractID])
	}

	tok := &Token{
		ID:         r.nextID,
		Owner:      owner,
		URI:        strings.TrimSpace(uri),
		ContractID: contractID,
		MintedAt:   time.Now().UTC(),
	}
	r.tokens[tok.ID] = tok
	r.byContract[contractID] = tok.ID
	r.nextID++
	return *tok, nil
}

// Transfer moves ownership of a token; transferring the token transfers the
// deal. Current owner only.
func (r *Registry) Transfer(ctx context.Context, caller string, tokenID uint64, to string) (Token, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return Token{}, fmt.Errorf("%w: recipient address is required", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if strings.TrimSpace(caller) != tok.Owner {
		return Token{}, fmt.Errorf("%w: only the owner may transfer token %d", ErrUnauthorized, tokenID)
	}

	tok.Owner = to
	return *tok, nil
}

// Burn destroys a token. Present for completeness; the deal flow never
// burns.
func (r *Registry) Burn(ctx context.Context, caller string, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[tokenID]
	if !ok {
		return fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if strings.TrimSpace(caller) != tok.Owner {
		return fmt.Errorf("%w: only the owner may burn token %d", ErrUnauthorized, tokenID)
	}
	delete(r.tokens, tokenID)
	delete(r.byContract, tok.ContractID)
	return nil
}

// Get returns a token by id.
func (r *Registry) Get(ctx context.Context, tokenID uint64) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tok, ok := r.tokens[tokenID]
	if !ok {
		return Token{}, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	return *tok, nil
}

// OwnerOf returns the current owner of a token.
func (r *Registry) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	tok, err := r.Get(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return tok.Owner, nil
}

// TokenByContract returns the token backing a contract id.
func (r *Registry) TokenByContract(ctx context.Context, contractID uint64) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.byContract[contractID]
	if id == 0 {
		return Token{}, fmt.Errorf("%w: no token for contract %d", ErrNotFound, contractID)
	}
	return *r.tokens[id], nil
}

// ContractOf returns the contract id a token was minted for.
func (r *Registry) ContractOf(ctx context.Context, tokenID uint64) (uint64, error) {
	tok, err := r.Get(ctx, tokenID)
	if err != nil {
		return 0, err
	}
	return tok.ContractID, nil
}

// RecordRoyalty appends a royalty-payment record for off-chain tracking.
// Owner only; no funds move through this path.
func (r *Registry) RecordRoyalty(ctx context.Context, caller string, tokenID uint64, amount int64) (RoyaltyRecord, error) {
	if amount <= 0 {
		return RoyaltyRecord{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tok, ok := r.tokens[tokenID]
	if !ok {
		return RoyaltyRecord{}, fmt.Errorf("%w: token %d", ErrNotFound, tokenID)
	}
	if strings.TrimSpace(caller) != tok.Owner {
		return RoyaltyRecord{}, fmt.Errorf("%w: only the owner may record royalties", ErrUnauthorized)
	}

	rec := RoyaltyRecord{
		ID:        ids.New(),
		TokenID:   tokenID,
		Payer:     tok.Owner,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	r.royalties = append(r.royalties, rec)
	return rec, nil
}

// Royalties lists royalty records for one token, oldest first.
func (r *Registry) Royalties(ctx context.Context, tokenID uint64) ([]RoyaltyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RoyaltyRecord
	for _, rec := range r.royalties {
		if rec.TokenID == tokenID {
			out = append(out, rec)
		}
	}
	return out, nil
}
