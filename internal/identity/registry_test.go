package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterSelfAndAccumulateRoles(t *testing.T) {
	r := NewRegistry("0xadmin")
	ctx := context.Background()

	p, err := r.Register(ctx, "0xaaa", "0xaaa", RoleAthlete, "Dana Cruz", "ipfs://profile")
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasRole(RoleAthlete) || p.Verified {
		t.Fatalf("unexpected profile: %#v", p)
	}

	// Second registration adds a role to the same profile.
	p, err = r.Register(ctx, "0xaaa", "0xaaa", RoleTeam, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasRole(RoleAthlete) || !p.HasRole(RoleTeam) {
		t.Fatalf("roles did not accumulate: %v", p.Roles)
	}

	// Granting the same role twice conflicts.
	if _, err := r.Register(ctx, "0xaaa", "0xaaa", RoleTeam, "", ""); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterRequiresSelfOrAdmin(t *testing.T) {
	r := NewRegistry("0xadmin")
	ctx := context.Background()

	if _, err := r.Register(ctx, "0xmallory", "0xaaa", RoleAthlete, "Dana", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := r.Register(ctx, "0xadmin", "0xaaa", RoleAthlete, "Dana", ""); err != nil {
		t.Fatalf("admin registration failed: %v", err)
	}
}

func TestVerifyAdminOnly(t *testing.T) {
	r := NewRegistry("0xadmin")
	ctx := context.Background()
	if _, err := r.Register(ctx, "0xaaa", "0xaaa", RoleAthlete, "Dana", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Verify(ctx, "0xaaa", "0xaaa"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := r.Verify(ctx, "0xadmin", "0xnobody"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	p, err := r.Verify(ctx, "0xadmin", "0xaaa")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Verified {
		t.Fatal("verified flag not set")
	}
}

func TestReadsOnUnknownAddress(t *testing.T) {
	r := NewRegistry("0xadmin")
	ctx := context.Background()

	ok, err := r.HasRole(ctx, "0xghost", RoleSponsor)
	if err != nil || ok {
		t.Fatalf("HasRole on unknown address: ok=%v err=%v", ok, err)
	}
	roles, err := r.Roles(ctx, "0xghost")
	if err != nil || len(roles) != 0 {
		t.Fatalf("Roles on unknown address: %v %v", roles, err)
	}
	if _, err := r.Get(ctx, "0xghost"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestLinkContractDeduplicates(t *testing.T) {
	r := NewRegistry("0xadmin")
	ctx := context.Background()
	if _, err := r.Register(ctx, "0xaaa", "0xaaa", RoleAthlete, "Dana", ""); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := r.LinkContract(ctx, "0xaaa", 7); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.LinkContract(ctx, "0xunknown", 7); err != nil {
		t.Fatalf("linking an unknown address should be a no-op, got %v", err)
	}

	ids, err := r.ContractsOf(ctx, "0xaaa")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("unexpected contract links: %v", ids)
	}
}

func TestInvalidRoleRejected(t *testing.T) {
	r := NewRegistry("0xadmin")
	if _, err := r.Register(context.Background(), "0xaaa", "0xaaa", Role("owner"), "Dana", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
