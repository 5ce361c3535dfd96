package factory

import (
	"context"
	"errors"
	"testing"
	"time"

	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/nft"
	"sponsorchain.org/internal/treasury"
)

const (
	athlete = "0xathlete"
	sponsor = "0xsponsor"
	agent   = "0xagent"
	rando   = "0xrando"
	admin   = "0xadmin"
)

type fixture struct {
	factory *Factory
	reg     *identity.Registry
	ledger  *ledger.InMemory
	tokens  *nft.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	reg := identity.NewRegistry(admin)
	for addr, role := range map[string]identity.Role{
		athlete: identity.RoleAthlete,
		sponsor: identity.RoleSponsor,
		agent:   identity.RoleAgent,
	} {
		if _, err := reg.Register(ctx, addr, addr, role, addr, ""); err != nil {
			t.Fatalf("register %s: %v", addr, err)
		}
	}

	l := ledger.NewInMemory(treasury.NewGateway(treasury.NewInMemory()), reg)
	tokens := nft.NewRegistry(DefaultMinterAddress)
	return &fixture{factory: New(l, reg, tokens), reg: reg, ledger: l, tokens: tokens}
}

func params() ledger.CreateContractParams {
	start := time.Now().UTC()
	return ledger.CreateContractParams{
		Athlete:    athlete,
		Sponsor:    sponsor,
		TotalValue: 100,
		Start:      start,
		End:        start.Add(time.Hour),
	}
}

func TestCreateRequiresRegisteredRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := params()
	p.Athlete = rando
	if _, err := f.factory.CreateSponsorshipContract(ctx, sponsor, p); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("unregistered athlete: %v", err)
	}

	p = params()
	p.Sponsor = rando
	if _, err := f.factory.CreateSponsorshipContract(ctx, athlete, p); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("unregistered sponsor: %v", err)
	}

	// Role presence, not verification, is the gate: the agent holds the
	// agent role but not the athlete role.
	p = params()
	p.Athlete = agent
	if _, err := f.factory.CreateSponsorshipContract(ctx, sponsor, p); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("agent cast as athlete: %v", err)
	}
}

func TestCreateByPartyLinksProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.factory.CreateSponsorshipContract(ctx, athlete, params())
	if err != nil {
		t.Fatal(err)
	}
	if c.Agent != "" {
		t.Fatalf("party-created deal must not record an agent: %+v", c)
	}

	for _, addr := range []string{athlete, sponsor} {
		got, err := f.reg.ContractsOf(ctx, addr)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != c.ID {
			t.Fatalf("contracts of %s = %v", addr, got)
		}
	}
}

func TestCreateByAgentRecordsAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.factory.CreateSponsorshipContract(ctx, agent, params())
	if err != nil {
		t.Fatal(err)
	}
	if c.Agent != agent {
		t.Fatalf("agent = %q, want %q", c.Agent, agent)
	}
	got, err := f.reg.ContractsOf(ctx, agent)
	if err != nil || len(got) != 1 {
		t.Fatalf("contracts of agent = %v, %v", got, err)
	}

	if _, err := f.factory.CreateSponsorshipContract(ctx, rando, params()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("third party without agent role: %v", err)
	}
}

func TestMintContractNFT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.factory.CreateSponsorshipContract(ctx, agent, params())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.factory.MintContractNFT(ctx, rando, c.ID, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-participant mint: %v", err)
	}
	if _, err := f.factory.MintContractNFT(ctx, athlete, 42, ""); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("unknown contract: %v", err)
	}

	tok, err := f.factory.MintContractNFT(ctx, athlete, c.ID, "ipfs://deal")
	if err != nil {
		t.Fatal(err)
	}
	if tok.Owner != sponsor || tok.ContractID != c.ID {
		t.Fatalf("unexpected token: %+v", tok)
	}

	// Second mint for the same deal is rejected by the registry.
	if _, err := f.factory.MintContractNFT(ctx, sponsor, c.ID, ""); !errors.Is(err, nft.ErrAlreadyMinted) {
		t.Fatalf("expected nft.ErrAlreadyMinted, got %v", err)
	}
}
