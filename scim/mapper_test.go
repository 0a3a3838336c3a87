package scim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailToUsername(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		email  string
		want   string
	}{
		{name: "dots become hyphens", email: "john.doe@x.com", want: "john-doe"},
		{name: "plain local part", email: "alice@x.com", want: "alice"},
		{name: "suffix appended", suffix: "acme", email: "john.doe@x.com", want: "john-doe_acme"},
		{name: "no at sign", email: "service.account", want: "service-account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &IdentityMapper{UsernameSuffix: tt.suffix}
			assert.Equal(t, tt.want, m.EmailToUsername(tt.email))
		})
	}
}

func TestDetermineRolePrecedence(t *testing.T) {
	m := &IdentityMapper{
		EnterpriseOwners:   []string{"boss@x.com"},
		BillingManagers:    []string{"boss@x.com", "money@x.com"},
		GuestCollaborators: []string{"boss@x.com", "money@x.com", "guest@x.com"},
	}

	assert.Equal(t, RoleEnterpriseOwner, m.DetermineRole("boss@x.com"))
	assert.Equal(t, RoleEnterpriseOwner, m.DetermineRole("BOSS@x.com"))
	assert.Equal(t, RoleBillingManager, m.DetermineRole("money@x.com"))
	assert.Equal(t, RoleGuestCollaborator, m.DetermineRole("guest@x.com"))
	assert.Equal(t, RoleUser, m.DetermineRole("someone@x.com"))
}

func TestMapUser(t *testing.T) {
	m := &IdentityMapper{UsernameSuffix: "acme", BillingManagers: []string{"john.doe@x.com"}}
	source := &SourceUser{
		Id:           "g-1",
		PrimaryEmail: "john.doe@x.com",
		GivenName:    "John",
		FamilyName:   "Doe",
		FullName:     "John Doe",
		Suspended:    true,
	}

	user := m.MapUser(source)
	require.NotNil(t, user)
	assert.Empty(t, user.Id)
	assert.Equal(t, "john-doe_acme", user.UserName)
	assert.Equal(t, []Email{{Value: "john.doe@x.com", Type: "work", Primary: true}}, user.Emails)
	assert.Equal(t, Name{GivenName: "John", FamilyName: "Doe", Formatted: "John Doe"}, user.Name)
	assert.False(t, user.Active)
	assert.Equal(t, "g-1", user.ExternalId)
	assert.Equal(t, []Role{{Value: RoleBillingManager, Primary: true}}, user.Roles)
}

func TestMapUserIsDeterministic(t *testing.T) {
	m := &IdentityMapper{}
	source := sourceUser("jane.roe@x.com", "/Org")
	assert.Equal(t, m.MapUser(source), m.MapUser(source))
}

func TestMapTeamSlug(t *testing.T) {
	assert.Equal(t, "engineering", MapTeamSlug("Engineering"))
	assert.Equal(t, "data-science", MapTeamSlug("Data Science"))
	assert.Equal(t, "data-science", MapTeamSlug("data_science"))
	assert.Equal(t, "a--b", MapTeamSlug("A  B"))
	assert.Equal(t, "r&d", MapTeamSlug("R&D"))
}
