package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/nft"
)

var (
	ErrRoleRequired = errors.New("factory: role required")
	ErrUnauthorized = errors.New("factory: unauthorized")
)

// DealLedger is the slice of the contract ledger the factory drives.
type DealLedger interface {
	CreateContract(ctx context.Context, p ledger.CreateContractParams) (ledger.Contract, error)
	Get(ctx context.Context, id uint64) (ledger.Contract, error)
}

// IdentityDirectory covers the role checks and the reverse contract index
// the factory maintains for registered participants.
type IdentityDirectory interface {
	HasRole(ctx context.Context, addr string, role identity.Role) (bool, error)
	LinkContract(ctx context.Context, addr string, contractID uint64) error
}

// TokenMinter is the slice of the token registry the factory mints through.
type TokenMinter interface {
	Mint(ctx context.Context, caller string, contractID uint64, owner, uri string) (nft.Token, error)
}

// DefaultMinterAddress is the identity the token registry must be created
// with for factory minting to succeed.
const DefaultMinterAddress = "sponsorchain:factory"

// Factory is the role-gated front door for deal creation. The ledger
// validates shape; the factory validates who. It also holds the minting
// grant for the token registry, so tokens only come into existence through
// a deal.
type Factory struct {
	ledger DealLedger
	dir    IdentityDirectory
	tokens TokenMinter
	minter string
}

func New(l DealLedger, dir IdentityDirectory, tokens TokenMinter) *Factory {
	return &Factory{ledger: l, dir: dir, tokens: tokens, minter: DefaultMinterAddress}
}

// CreateSponsorshipContract creates a Draft deal after checking that the
// named athlete holds the athlete role and the named sponsor the sponsor
// role. The caller must be one of the two parties, or an agent creating on
// their behalf; a distinct agent caller is recorded on the contract. All
// registered participants get the contract linked to their profile.
func (f *Factory) CreateSponsorshipContract(ctx context.Context, caller string, p ledger.CreateContractParams) (ledger.Contract, error) {
	caller = strings.TrimSpace(caller)
	athlete := strings.TrimSpace(p.Athlete)
	sponsor := strings.TrimSpace(p.Sponsor)

	if ok, err := f.dir.HasRole(ctx, athlete, identity.RoleAthlete); err != nil {
		return ledger.Contract{}, err
	} else if !ok {
		return ledger.Contract{}, fmt.Errorf("%w: %s is not a registered athlete", ErrRoleRequired, athlete)
	}
	if ok, err := f.dir.HasRole(ctx, sponsor, identity.RoleSponsor); err != nil {
		return ledger.Contract{}, err
	} else if !ok {
		return ledger.Contract{}, fmt.Errorf("%w: %s is not a registered sponsor", ErrRoleRequired, sponsor)
	}

	if caller != athlete && caller != sponsor {
		isAgent, err := f.dir.HasRole(ctx, caller, identity.RoleAgent)
		if err != nil {
			return ledger.Contract{}, err
		}
		if !isAgent {
			return ledger.Contract{}, fmt.Errorf("%w: only a party or a registered agent may create a deal", ErrUnauthorized)
		}
		p.Agent = caller
	}

	c, err := f.ledger.CreateContract(ctx, p)
	if err != nil {
		return ledger.Contract{}, err
	}

	// Best-effort reverse index; unknown addresses are a no-op.
	for _, addr := range []string{c.Athlete, c.Sponsor, c.Agent} {
		if addr == "" {
			continue
		}
		if err := f.dir.LinkContract(ctx, addr, c.ID); err != nil {
			return ledger.Contract{}, err
		}
	}
	return c, nil
}

// MintContractNFT mints the ownership token for an existing deal. Any of
// the deal's participants may trigger the mint; the token is issued to the
// sponsor, who bought the deal. Exactly-once is enforced by the registry.
func (f *Factory) MintContractNFT(ctx context.Context, caller string, contractID uint64, uri string) (nft.Token, error) {
	caller = strings.TrimSpace(caller)
	c, err := f.ledger.Get(ctx, contractID)
	if err != nil {
		return nft.Token{}, err
	}
	if !c.IsParty(caller) && (c.Agent == "" || caller != c.Agent) {
		return nft.Token{}, fmt.Errorf("%w: only a deal participant may mint its token", ErrUnauthorized)
	}
	return f.tokens.Mint(ctx, f.minter, contractID, c.Sponsor, uri)
}
