package domain

// Role is the caller's resolved role for visibility purposes.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleTeamLead Role = "team_lead"
	RoleAgent    Role = "agent"
)

// Caller identifies who is reading or mutating records.
type Caller struct {
	// KAM is the caller's own owner identity (display name).
	KAM string
	// Role decides how the allowed-owner set is derived.
	Role Role
}

// Scope is the set of owner identities a caller may see or mutate.
// The zero value is the empty scope: it allows nothing.
type Scope struct {
	unrestricted bool
	owners       map[string]struct{}
}

// UnrestrictedScope allows every owner (admin).
func UnrestrictedScope() Scope {
	return Scope{unrestricted: true}
}

// OwnerScope allows exactly the given owner identities.
func OwnerScope(owners ...string) Scope {
	s := Scope{owners: make(map[string]struct{}, len(owners))}
	for _, owner := range owners {
		if owner != "" {
			s.owners[owner] = struct{}{}
		}
	}
	return s
}

// EmptyScope allows nothing (fail closed).
func EmptyScope() Scope {
	return Scope{}
}

// Unrestricted reports whether no owner filter applies.
func (s Scope) Unrestricted() bool { return s.unrestricted }

// Empty reports whether the scope allows no owners at all.
func (s Scope) Empty() bool {
	return !s.unrestricted && len(s.owners) == 0
}

// Allows reports whether a record owned by kam is visible in this scope.
func (s Scope) Allows(kam string) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.owners[kam]
	return ok
}

// Owners returns the allowed owner identities; nil when unrestricted.
func (s Scope) Owners() []string {
	if s.unrestricted {
		return nil
	}
	result := make([]string, 0, len(s.owners))
	for owner := range s.owners {
		result = append(result, owner)
	}
	return result
}

// ResolveScope computes the allowed-owner set for a caller. Teammates are
// the roster identities sharing a team lead's team; they are ignored for
// every other role. Unknown roles and team leads without teammates fail
// closed to the empty scope.
func ResolveScope(caller Caller, teammates []string) Scope {
	switch caller.Role {
	case RoleAdmin:
		return UnrestrictedScope()
	case RoleTeamLead:
		if len(teammates) == 0 {
			return EmptyScope()
		}
		return OwnerScope(teammates...)
	case RoleAgent:
		if caller.KAM == "" {
			return EmptyScope()
		}
		return OwnerScope(caller.KAM)
	default:
		return EmptyScope()
	}
}
