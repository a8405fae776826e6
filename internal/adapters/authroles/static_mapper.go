package authroles

import (
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

var (
	_ ports.RoleMapper       = StaticRoleMapper{}
	_ ports.EmailRoleGuesser = EmailHeuristic{}
)

// StaticRoleMapper normalizes stored role strings with the fixed token table in domain/auth.
// Disabled roles are rejected as if they were unrecognized.
type StaticRoleMapper struct {
	Disabled []domainauth.Role
}

func (m StaticRoleMapper) Map(raw string) (domainauth.Role, error) {
	role, err := domainauth.ParseRole(raw)
	if err != nil {
		return "", err
	}
	for _, d := range m.Disabled {
		if d == role {
			return "", domainauth.Errorf(domainauth.KindRoleNotFound, "map role", "role %q is disabled", role)
		}
	}
	return role, nil
}

// EmailHeuristic guesses roles from the email local-part for synthetic identities.
type EmailHeuristic struct{}

func (EmailHeuristic) Guess(email string) domainauth.Role {
	return domainauth.RoleFromEmail(email)
}
