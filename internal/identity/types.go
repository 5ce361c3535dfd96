package identity

import (
	"errors"
	"time"
)

// Role is one of the closed set of participant roles. Roles are granted,
// never intrinsic, and a profile may hold several at once.
type Role string

const (
	RoleAthlete    Role = "athlete"
	RoleSponsor    Role = "sponsor"
	RoleAgent      Role = "agent"
	RoleTeam       Role = "team"
	RoleArbitrator Role = "arbitrator"
	RoleAdmin      Role = "admin"
)

var validRoles = map[Role]struct{}{
	RoleAthlete:    {},
	RoleSponsor:    {},
	RoleAgent:      {},
	RoleTeam:       {},
	RoleArbitrator: {},
	RoleAdmin:      {},
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := validRoles[r]
	return ok
}

func (r Role) String() string { return string(r) }

// Profile is the registry record for one address. Profiles are created once
// and never deleted; roles accumulate and the verified flag is admin-only.
type Profile struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	DocRef      string    `json:"doc_ref"`
	Verified    bool      `json:"verified"`
	Roles       []Role    `json:"roles"`
	ContractIDs []uint64  `json:"contract_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasRole reports whether the profile carries the given role.
func (p Profile) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var (
	ErrNotRegistered     = errors.New("identity: not registered")
	ErrAlreadyRegistered = errors.New("identity: already registered")
	ErrUnauthorized      = errors.New("identity: unauthorized")
	ErrInvalidInput      = errors.New("identity: invalid input")
)
