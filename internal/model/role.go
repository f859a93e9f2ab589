package model

import (
	"database/sql/driver"
	"fmt"
)

// Role is the closed set of staff roles. Roles are totally ordered by rank:
// cajero < supervisor < gerente < administrador.
type Role string

const (
	RoleCajero        Role = "cajero"
	RoleSupervisor    Role = "supervisor"
	RoleGerente       Role = "gerente"
	RoleAdministrador Role = "administrador"
)

var roleRank = map[Role]int{
	RoleCajero:        1,
	RoleSupervisor:    2,
	RoleGerente:       3,
	RoleAdministrador: 4,
}

// AllRoles lists roles from lowest to highest rank.
var AllRoles = []Role{RoleCajero, RoleSupervisor, RoleGerente, RoleAdministrador}

// ParseRole rejects anything outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("rol desconocido: %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Rank returns 0 for unknown roles so they never satisfy a tier.
func (r Role) Rank() int { return roleRank[r] }

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

// RolesAtLeast returns min and every role above it, lowest first.
func RolesAtLeast(min Role) []Role {
	out := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if r.AtLeast(min) {
			out = append(out, r)
		}
	}
	return out
}

func (r Role) String() string { return string(r) }

func (r Role) Value() (driver.Value, error) { return string(r), nil }

func (r *Role) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*r = Role(v)
	case []byte:
		*r = Role(v)
	case nil:
		*r = ""
	default:
		return fmt.Errorf("rol: tipo no soportado %T", value)
	}
	return nil
}

// Tier is the authorization level needed to approve a discount or override.
type Tier int

const (
	TierNone Tier = iota
	TierSupervisor
	TierGerente
	TierAdministrador
)

// MinRole is the lowest role that satisfies the tier. TierNone needs no role.
func (t Tier) MinRole() Role {
	switch t {
	case TierSupervisor:
		return RoleSupervisor
	case TierGerente:
		return RoleGerente
	case TierAdministrador:
		return RoleAdministrador
	default:
		return ""
	}
}

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierSupervisor:
		return "supervisor"
	case TierGerente:
		return "gerente"
	case TierAdministrador:
		return "administrador"
	default:
		return "unknown"
	}
}
