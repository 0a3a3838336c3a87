package scim

import (
	"slices"
	"strings"
)

// PrimaryEmail returns the email marked primary, or the first email when none is.
func PrimaryEmail(user *TargetUser) string {
	for _, e := range user.Emails {
		if e.Primary {
			return e.Value
		}
	}
	if len(user.Emails) > 0 {
		return user.Emails[0].Value
	}
	return ""
}

// UsersDiffer compares username, emails, name, active flag and roles.
func UsersDiffer(existing *TargetUser, target *TargetUser) bool {
	return existing.UserName != target.UserName ||
		!slices.Equal(existing.Emails, target.Emails) ||
		existing.Name != target.Name ||
		existing.Active != target.Active ||
		!slices.Equal(existing.Roles, target.Roles)
}

// TeamsDiffer compares name, description and the member set, ignoring member order.
func TeamsDiffer(existing *TargetTeam, target *TargetTeam) bool {
	return existing.Name != target.Name ||
		existing.Description != target.Description ||
		!MakeSet(existing.Members).EqualTo(MakeSet(target.Members))
}

// DiffUsers emits create and update operations in source order followed by
// suspend operations in target order. Target users are matched on primary email.
func DiffUsers(mapper *IdentityMapper, sources []*SourceUser, existing []*TargetUser) (diffs []UserDiff, stats SyncStats) {
	var byEmail = make(map[string]*TargetUser, len(existing))
	for _, u := range existing {
		var key = strings.ToLower(PrimaryEmail(u))
		if _, ok := byEmail[key]; !ok {
			byEmail[key] = u
		}
	}

	var sourceEmails = NewSet[string]()
	for _, su := range sources {
		var key = strings.ToLower(su.PrimaryEmail)
		sourceEmails.Add(key)

		var target = mapper.MapUser(su)
		var current, ok = byEmail[key]
		if !ok {
			diffs = append(diffs, NewUserCreate(su, target))
			stats.UsersToCreate++
			continue
		}
		if UsersDiffer(current, target) {
			diffs = append(diffs, NewUserUpdate(su, current, target))
			stats.UsersToUpdate++
		} else {
			stats.UsersUpToDate++
		}
	}

	for _, u := range existing {
		if !u.Active || sourceEmails.Has(strings.ToLower(PrimaryEmail(u))) {
			continue
		}
		diffs = append(diffs, NewUserSuspend(u))
		stats.UsersToSuspend++
	}
	return
}

// DiffTeams emits create and update operations in membership order. Target
// teams missing from the membership are left untouched.
func DiffTeams(membership *TeamMembership, existing []*TargetTeam) (diffs []TeamDiff, stats SyncStats) {
	var bySlug = make(map[string]*TargetTeam, len(existing))
	for _, t := range existing {
		if _, ok := bySlug[t.Slug]; !ok {
			bySlug[t.Slug] = t
		}
	}

	for _, slug := range membership.Slugs() {
		var candidate, _ = membership.Get(slug)
		var target = &TargetTeam{
			Name:        candidate.Name,
			Slug:        candidate.Slug,
			Description: candidate.Description,
			Members:     Sorted(candidate.Members),
		}
		var current, ok = bySlug[slug]
		if !ok {
			diffs = append(diffs, NewTeamCreate(target))
			stats.TeamsToCreate++
			continue
		}
		if TeamsDiffer(current, target) {
			diffs = append(diffs, NewTeamUpdate(current, target))
			stats.TeamsToUpdate++
		} else {
			stats.TeamsUpToDate++
		}
	}
	return
}
