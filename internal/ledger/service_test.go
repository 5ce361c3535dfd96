package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/treasury"
)

const (
	athlete = "0xathlete"
	sponsor = "0xsponsor"
	agent   = "0xagent"
	arb     = "0xarb"
	admin   = "0xadmin"
)

type fixture struct {
	ledger   *InMemory
	funds    *treasury.InMemory
	registry *identity.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := identity.NewRegistry(admin)
	ctx := context.Background()
	for _, u := range []struct {
		addr string
		role identity.Role
	}{
		{athlete, identity.RoleAthlete},
		{sponsor, identity.RoleSponsor},
		{agent, identity.RoleAgent},
		{arb, identity.RoleArbitrator},
	} {
		if _, err := reg.Register(ctx, u.addr, u.addr, u.role, u.addr, ""); err != nil {
			t.Fatalf("register %s: %v", u.addr, err)
		}
	}
	funds := treasury.NewInMemory()
	return &fixture{
		ledger:   NewInMemory(treasury.NewGateway(funds), reg),
		funds:    funds,
		registry: reg,
	}
}

func (f *fixture) draftContract(t *testing.T, asset string) Contract {
	t.Helper()
	start := time.Now().UTC()
	c, err := f.ledger.CreateContract(context.Background(), CreateContractParams{
		Athlete:     athlete,
		Sponsor:     sponsor,
		DocRef:      "ipfs://deal-v1",
		TotalValue:  100,
		Start:       start,
		End:         start.Add(1000 * time.Second),
		Asset:       asset,
		Arbitrators: []string{arb},
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func (f *fixture) activeContract(t *testing.T) Contract {
	t.Helper()
	ctx := context.Background()
	c := f.draftContract(t, NativeAsset)
	deadlines := []time.Time{c.Start.Add(10 * time.Second), c.Start.Add(20 * time.Second)}
	if _, err := f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"jersey reveal", "season finale"}, []int64{40, 60}, deadlines); err != nil {
		t.Fatalf("add milestones: %v", err)
	}
	if _, err := f.funds.Deposit(ctx, sponsor, treasury.Money{Asset: treasury.NativeAsset, Amount: 1000}); err != nil {
		t.Fatal(err)
	}
	c2, err := f.ledger.Activate(ctx, sponsor, c.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	return c2
}

func TestContractIDsAreDenseFromZero(t *testing.T) {
	f := newFixture(t)
	a := f.draftContract(t, NativeAsset)
	b := f.draftContract(t, NativeAsset)
	if a.ID != 0 || b.ID != 1 {
		t.Fatalf("unexpected ids: %d, %d", a.ID, b.ID)
	}
}

func TestCreateContractValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Now().UTC()

	cases := []CreateContractParams{
		{Athlete: "", Sponsor: sponsor, TotalValue: 100, Start: start, End: start.Add(time.Hour)},
		{Athlete: athlete, Sponsor: athlete, TotalValue: 100, Start: start, End: start.Add(time.Hour)},
		{Athlete: athlete, Sponsor: sponsor, TotalValue: 0, Start: start, End: start.Add(time.Hour)},
		{Athlete: athlete, Sponsor: sponsor, TotalValue: 100, Start: start, End: start},
	}
	for i, p := range cases {
		if _, err := f.ledger.CreateContract(ctx, p); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestAddMilestonesSumMustMatchValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t, NativeAsset)
	dl := []time.Time{c.Start, c.Start}

	_, err := f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"a", "b"}, []int64{60, 30}, dl)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for sum mismatch, got %v", err)
	}
	_, err = f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"a", "b"}, []int64{100}, dl)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for length mismatch, got %v", err)
	}
	if _, err := f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"a", "b"}, []int64{40, 60}, dl); err != nil {
		t.Fatalf("exact sum rejected: %v", err)
	}
	// Milestones are defined exactly once.
	_, err = f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"c"}, []int64{100}, dl[:1])
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second definition, got %v", err)
	}
}

func TestAddMilestonesAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t, NativeAsset)
	dl := []time.Time{c.Start}

	if _, err := f.ledger.AddMilestones(ctx, "0xstranger", c.ID, []string{"a"}, []int64{100}, dl); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestActivatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t, NativeAsset)

	// No milestones yet.
	if _, err := f.ledger.Activate(ctx, sponsor, c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without milestones, got %v", err)
	}

	dl := []time.Time{c.Start}
	if _, err := f.ledger.AddMilestones(ctx, sponsor, c.ID, []string{"a"}, []int64{100}, dl); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Activate(ctx, arb, c.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-party, got %v", err)
	}

	got, err := f.ledger.Activate(ctx, athlete, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateActive {
		t.Fatalf("state = %s, want active", got.State)
	}
	// Activation succeeds exactly once.
	if _, err := f.ledger.Activate(ctx, athlete, c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on re-activation, got %v", err)
	}
}

func TestActivateTokenAssetRequiresAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draftContract(t, "USDX")
	dl := []time.Time{c.Start}
	if _, err := f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"a"}, []int64{100}, dl); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ledger.Activate(ctx, sponsor, c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState without allowance, got %v", err)
	}

	if err := f.funds.Approve(ctx, sponsor, f.ledger.EscrowAddress(), treasury.Money{Asset: "USDX", Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Activate(ctx, sponsor, c.ID); err != nil {
		t.Fatalf("activate with sufficient allowance: %v", err)
	}
}

func TestFullDealFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t)

	c2, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 0, "ipfs://evidence-0")
	if err != nil {
		t.Fatal(err)
	}
	if c2.Milestones[0].Status != MilestoneCompleted {
		t.Fatalf("milestone 0 status = %s", c2.Milestones[0].Status)
	}

	c2, err = f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !c2.Milestones[0].Paid || c2.State != StateActive {
		t.Fatalf("after first payment: paid=%v state=%s", c2.Milestones[0].Paid, c2.State)
	}

	if _, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 1, "ipfs://evidence-1"); err != nil {
		t.Fatal(err)
	}
	c2, err = f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if c2.State != StateCompleted {
		t.Fatalf("contract state = %s, want completed", c2.State)
	}

	bal, _ := f.funds.Balance(ctx, athlete, treasury.NativeAsset)
	if bal.Amount != 100 {
		t.Fatalf("athlete received %d, want 100", bal.Amount)
	}
}

func TestPaidLatchIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t)

	if _, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 0, "ipfs://ev"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second release must fail with ErrInvalidState, got %v", err)
	}
	bal, _ := f.funds.Balance(ctx, athlete, treasury.NativeAsset)
	if bal.Amount != 40 {
		t.Fatalf("double payment detected: athlete balance %d", bal.Amount)
	}
}

func TestApproveRollsBackOnTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Active native-asset deal, but the sponsor never funded the treasury.
	c := f.draftContract(t, NativeAsset)
	dl := []time.Time{c.Start}
	if _, err := f.ledger.AddMilestones(ctx, athlete, c.ID, []string{"a"}, []int64{100}, dl); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.Activate(ctx, sponsor, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 0, "ipfs://ev"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	got, _ := f.ledger.Get(ctx, c.ID)
	if got.Milestones[0].Paid || got.State != StateActive {
		t.Fatalf("failed transfer left partial state: %+v", got.Milestones[0])
	}

	// Funding the sponsor makes the same approval succeed.
	if _, err := f.funds.Deposit(ctx, sponsor, treasury.Money{Asset: treasury.NativeAsset, Amount: 100}); err != nil {
		t.Fatal(err)
	}
	got, err := f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Milestones[0].Paid || got.State != StateCompleted {
		t.Fatalf("retry did not settle: %+v", got)
	}
}

func TestRejectMilestoneIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t)

	if _, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 0, "ipfs://ev"); err != nil {
		t.Fatal(err)
	}
	got, err := f.ledger.RejectMilestone(ctx, sponsor, c.ID, 0, "wrong jersey")
	if err != nil {
		t.Fatal(err)
	}
	if got.Milestones[0].Status != MilestoneRejected || got.Milestones[0].RejectReason != "wrong jersey" {
		t.Fatalf("unexpected milestone: %+v", got.Milestones[0])
	}

	// No path back: resubmission and payment both fail.
	if _, err := f.ledger.SubmitMilestone(ctx, athlete, c.ID, 0, "ipfs://again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := f.ledger.ApproveMilestone(ctx, sponsor, c.ID, 0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestDisputeTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t)

	if _, err := f.ledger.MarkDisputed(ctx, arb, c.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-party dispute: %v", err)
	}
	got, err := f.ledger.MarkDisputed(ctx, athlete, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateDisputed {
		t.Fatalf("state = %s", got.State)
	}
	// Only one active dispute at a time.
	if _, err := f.ledger.MarkDisputed(ctx, sponsor, c.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// Athlete verdict reinstates.
	if _, err := f.ledger.ResolveDispute(ctx, sponsor, c.ID, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("party resolved own dispute: %v", err)
	}
	got, err = f.ledger.ResolveDispute(ctx, arb, c.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateActive {
		t.Fatalf("state = %s, want active", got.State)
	}

	// Sponsor verdict terminates.
	if _, err := f.ledger.MarkDisputed(ctx, sponsor, c.ID); err != nil {
		t.Fatal(err)
	}
	got, err = f.ledger.ResolveDispute(ctx, admin, c.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateTerminated {
		t.Fatalf("state = %s, want terminated", got.State)
	}
}

func TestUpdateDocumentHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeContract(t)

	got, err := f.ledger.UpdateDocument(ctx, sponsor, c.ID, "ipfs://deal-v2")
	if err != nil {
		t.Fatal(err)
	}
	if got.DocRef != "ipfs://deal-v2" || len(got.DocHistory) != 1 || got.DocHistory[0] != "ipfs://deal-v1" {
		t.Fatalf("unexpected document state: %+v", got)
	}

	got, err = f.ledger.UpdateDocument(ctx, athlete, c.ID, "ipfs://deal-v3")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.DocHistory) != 2 || got.DocHistory[1] != "ipfs://deal-v2" {
		t.Fatalf("history did not grow by one: %v", got.DocHistory)
	}

	if _, err := f.ledger.UpdateDocument(ctx, "0xstranger", c.ID, "ipfs://x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetUnknownContract(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.Get(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
