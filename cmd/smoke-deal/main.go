// Command smoke-deal drives one sponsorship deal through its whole life
// in-process and verifies money conservation. Useful as a quick sanity
// check after changes to the ledger or treasury engines.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"sponsorchain.org/internal/factory"
	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/nft"
	"sponsorchain.org/internal/treasury"
)

const (
	admin   = "sponsorchain:admin"
	athlete = "0xsmoke-athlete"
	sponsor = "0xsmoke-sponsor"
	funding = int64(1_000)
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
	fmt.Println("✅ sponsorchain smoke test passed")
}

func run(ctx context.Context) error {
	registry := identity.NewRegistry(admin)
	funds := treasury.NewInMemory()
	deals := ledger.NewInMemory(treasury.NewGateway(funds), registry)
	tokens := nft.NewRegistry(factory.DefaultMinterAddress)
	orchestrator := factory.New(deals, registry, tokens)

	if _, err := registry.Register(ctx, athlete, athlete, identity.RoleAthlete, "Smoke Athlete", "doc://athlete"); err != nil {
		return fmt.Errorf("register athlete: %w", err)
	}
	if _, err := registry.Register(ctx, sponsor, sponsor, identity.RoleSponsor, "Smoke Sponsor", "doc://sponsor"); err != nil {
		return fmt.Errorf("register sponsor: %w", err)
	}

	if _, err := funds.Deposit(ctx, sponsor, treasury.Money{Asset: treasury.NativeAsset, Amount: funding}); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	now := time.Now()
	c, err := orchestrator.CreateSponsorshipContract(ctx, sponsor, ledger.CreateContractParams{
		Athlete:    athlete,
		Sponsor:    sponsor,
		DocRef:     "doc://smoke-deal",
		TotalValue: funding,
		Start:      now,
		End:        now.AddDate(1, 0, 0),
	})
	if err != nil {
		return fmt.Errorf("create contract: %w", err)
	}

	if _, err := deals.AddMilestones(ctx, sponsor, c.ID,
		[]string{"season opener", "playoff run"},
		[]int64{400, 600},
		[]time.Time{now.AddDate(0, 6, 0), now.AddDate(1, 0, 0)},
	); err != nil {
		return fmt.Errorf("add milestones: %w", err)
	}
	if _, err := deals.Activate(ctx, sponsor, c.ID); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	for idx := 0; idx < 2; idx++ {
		if _, err := deals.SubmitMilestone(ctx, athlete, c.ID, idx, fmt.Sprintf("evidence://m%d", idx)); err != nil {
			return fmt.Errorf("submit milestone %d: %w", idx, err)
		}
		if _, err := deals.ApproveMilestone(ctx, sponsor, c.ID, idx); err != nil {
			return fmt.Errorf("approve milestone %d: %w", idx, err)
		}
	}

	final, err := deals.Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get contract: %w", err)
	}
	if final.State != ledger.StateCompleted {
		return fmt.Errorf("contract state = %s, want %s", final.State, ledger.StateCompleted)
	}

	got, err := funds.Balance(ctx, athlete, treasury.NativeAsset)
	if err != nil {
		return fmt.Errorf("athlete balance: %w", err)
	}
	left, err := funds.Balance(ctx, sponsor, treasury.NativeAsset)
	if err != nil {
		return fmt.Errorf("sponsor balance: %w", err)
	}
	if got.Amount != funding {
		return fmt.Errorf("athlete received %d, want %d", got.Amount, funding)
	}
	if got.Amount+left.Amount != funding {
		return fmt.Errorf("money not conserved: %d + %d != %d", got.Amount, left.Amount, funding)
	}
	return nil
}
