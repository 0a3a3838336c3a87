package scim

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	RoleEnterpriseOwner   = "enterprise_owner"
	RoleBillingManager    = "billing_manager"
	RoleGuestCollaborator = "guest_collaborator"
	RoleUser              = "user"
	defaultEmailType      = "work"
)

// IdentityMapper converts source directory records into target shaped records.
// It performs no I/O. Emails are expected to contain exactly one '@'.
type IdentityMapper struct {
	// UsernameSuffix is appended as "{username}_{suffix}" for managed user accounts.
	UsernameSuffix     string
	EnterpriseOwners   []string
	BillingManagers    []string
	GuestCollaborators []string
}

func (m *IdentityMapper) MapUser(source *SourceUser) *TargetUser {
	return &TargetUser{
		UserName: m.EmailToUsername(source.PrimaryEmail),
		Emails: []Email{{
			Value:   source.PrimaryEmail,
			Type:    defaultEmailType,
			Primary: true,
		}},
		Name: Name{
			GivenName:  source.GivenName,
			FamilyName: source.FamilyName,
			Formatted:  source.FullName,
		},
		Active:     !source.Suspended,
		ExternalId: source.Id,
		Roles:      []Role{{Value: m.DetermineRole(source.PrimaryEmail), Primary: true}},
	}
}

// EmailToUsername uses the local part of the email with dots replaced by hyphens.
func (m *IdentityMapper) EmailToUsername(email string) string {
	var local = email
	if pos := strings.Index(email, "@"); pos >= 0 {
		local = email[:pos]
	}
	var username = strings.ReplaceAll(local, ".", "-")
	if len(m.UsernameSuffix) > 0 {
		username = fmt.Sprintf("%s_%s", username, m.UsernameSuffix)
	}
	return username
}

// DetermineRole picks exactly one role. Tables are checked in order
// enterprise owner, billing manager, guest collaborator; the first match wins.
func (m *IdentityMapper) DetermineRole(email string) string {
	switch {
	case containsEmail(m.EnterpriseOwners, email):
		return RoleEnterpriseOwner
	case containsEmail(m.BillingManagers, email):
		return RoleBillingManager
	case containsEmail(m.GuestCollaborators, email):
		return RoleGuestCollaborator
	}
	return RoleUser
}

func containsEmail(table []string, email string) bool {
	for _, e := range table {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// MapTeamSlug lowercases the name and replaces spaces and underscores with
// hyphens. Repeated separators and non-ASCII characters are kept as they are.
func MapTeamSlug(name string) string {
	var slug = cases.Lower(language.Und).String(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	return strings.ReplaceAll(slug, "_", "-")
}
