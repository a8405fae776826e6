package auth

// Package auth contains domain-level types for authentication, role resolution and sessions.
// It is free of adapter concerns; storage and provider details live behind internal/ports.

import (
	"fmt"
	"strings"
)

// Role is the closed set of application roles an identity can hold.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleClient     Role = "client"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Roles lists every valid role from least to most privileged.
func Roles() []Role {
	return []Role{RoleClient, RoleEmployee, RoleManager, RoleAdmin, RoleSuperAdmin}
}

// Valid reports whether r is one of the five known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleClient, RoleManager, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// StorageValue returns the role string written to profile records.
// Employees are stored under the legacy "member" token.
func (r Role) StorageValue() string {
	if r == RoleEmployee {
		return "member"
	}
	return string(r)
}

// AtLeast reports whether r meets or exceeds target in the privilege order.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

func (r Role) level() int {
	switch r {
	case RoleSuperAdmin:
		return 50
	case RoleAdmin:
		return 40
	case RoleManager:
		return 30
	case RoleEmployee:
		return 20
	case RoleClient:
		return 10
	default:
		return 0
	}
}

// ParseRole normalizes a raw role string read from storage.
//
// Matching is case-insensitive on the trimmed value and checked in this order:
// superadmin/super_admin, admin, anything containing "manager", client, member.
// Every other value is rejected with ErrRoleNotFound.
func ParseRole(raw string) (Role, error) {
	token := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case token == "superadmin" || token == "super_admin":
		return RoleSuperAdmin, nil
	case token == "admin":
		return RoleAdmin, nil
	case strings.Contains(token, "manager"):
		return RoleManager, nil
	case token == "client":
		return RoleClient, nil
	case token == "member":
		return RoleEmployee, nil
	default:
		return "", &Error{Kind: KindRoleNotFound, Op: "parse role", Err: fmt.Errorf("unrecognized role %q", raw)}
	}
}

// RoleFromEmail guesses a role from substrings of the email local-part.
// It never fails; unmatched addresses are employees.
func RoleFromEmail(email string) Role {
	local := strings.ToLower(LocalPart(email))
	switch {
	case strings.Contains(local, "superadmin"):
		return RoleSuperAdmin
	case strings.Contains(local, "admin"):
		return RoleAdmin
	case strings.Contains(local, "manager"):
		return RoleManager
	case strings.Contains(local, "client"):
		return RoleClient
	default:
		return RoleEmployee
	}
}
