package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Registry keeps every participant profile and the roles granted to it.
// All mutation goes through the exported methods; a single mutex serializes
// writes so each call is atomic.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	admin    string
}

// NewRegistry creates a registry with one bootstrap admin profile. Every
// further admin is granted the role through Register by an existing admin.
func NewRegistry(adminAddr string) *Registry {
	r := &Registry{
		profiles: make(map[string]*Profile),
		admin:    strings.TrimSpace(adminAddr),
	}
	if r.admin != "" {
		now := time.Now().UTC()
		r.profiles[r.admin] = &Profile{
			Address:   r.admin,
			Name:      "bootstrap admin",
			Verified:  true,
			Roles:     []Role{RoleAdmin},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return r
}

// Register creates a profile for addr with the given role, or adds the role
// to an existing profile. The caller must be addr itself or an admin.
func (r *Registry) Register(ctx context.Context, caller, addr string, role Role, name, docRef string) (Profile, error) {
	caller = strings.TrimSpace(caller)
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Profile{}, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != addr && !r.hasRoleLocked(caller, RoleAdmin) {
		return Profile{}, fmt.Errorf("%w: only the address itself or an admin may register", ErrUnauthorized)
	}

	now := time.Now().UTC()
	p, ok := r.profiles[addr]
	if !ok {
		name = strings.TrimSpace(name)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		p = &Profile{
			Address:   addr,
			Name:      name,
			DocRef:    strings.TrimSpace(docRef),
			Roles:     []Role{role},
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.profiles[addr] = p
		return copyProfile(p), nil
	}

	// Existing profile: accumulate the role. Granting a role twice is a
	// conflict, matching duplicate-registration behavior.
	if p.HasRole(role) {
		return Profile{}, fmt.Errorf("%w: role %s already granted to %s", ErrAlreadyRegistered, role, addr)
	}
	p.Roles = append(p.Roles, role)
	p.UpdatedAt = now
	return copyProfile(p), nil
}

// Verify sets the verified flag. Admin only.
func (r *Registry) Verify(ctx context.Context, caller, addr string) (Profile, error) {
	caller = strings.TrimSpace(caller)
	addr = strings.TrimSpace(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRoleLocked(caller, RoleAdmin) {
		return Profile{}, fmt.Errorf("%w: verify requires the admin role", ErrUnauthorized)
	}
	p, ok := r.profiles[addr]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotRegistered, addr)
	}
	p.Verified = true
	p.UpdatedAt = time.Now().UTC()
	return copyProfile(p), nil
}

// Get returns the profile for addr.
func (r *Registry) Get(ctx context.Context, addr string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[strings.TrimSpace(addr)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotRegistered, addr)
	}
	return copyProfile(p), nil
}

// HasRole reports role membership. Unknown addresses yield false, never an
// error, so precondition checks can call this without existence guards.
func (r *Registry) HasRole(ctx context.Context, addr string, role Role) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hasRoleLocked(strings.TrimSpace(addr), role), nil
}

// Roles returns the roles granted to addr, empty for unknown addresses.
func (r *Registry) Roles(ctx context.Context, addr string) ([]Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[strings.TrimSpace(addr)]
	if !ok {
		return nil, nil
	}
	out := make([]Role, len(p.Roles))
	copy(out, p.Roles)
	return out, nil
}

// LinkContract appends a contract id to the profile's contract list. The
// factory calls this for every participant when a deal is created; unknown
// addresses are ignored so unregistered counterparties don't break creation.
func (r *Registry) LinkContract(ctx context.Context, addr string, contractID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[strings.TrimSpace(addr)]
	if !ok {
		return nil
	}
	for _, id := range p.ContractIDs {
		if id == contractID {
			return nil
		}
	}
	p.ContractIDs = append(p.ContractIDs, contractID)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ContractsOf returns the contract ids linked to addr.
func (r *Registry) ContractsOf(ctx context.Context, addr string) ([]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[strings.TrimSpace(addr)]
	if !ok {
		return nil, nil
	}
	out := make([]uint64, len(p.ContractIDs))
	copy(out, p.ContractIDs)
	return out, nil
}

func (r *Registry) hasRoleLocked(addr string, role Role) bool {
	p, ok := r.profiles[addr]
	if !ok {
		return false
	}
	return p.HasRole(role)
}

func copyProfile(p *Profile) Profile {
	out := *p
	out.Roles = make([]Role, len(p.Roles))
	copy(out.Roles, p.Roles)
	out.ContractIDs = make([]uint64, len(p.ContractIDs))
	copy(out.ContractIDs, p.ContractIDs)
	return out
}
