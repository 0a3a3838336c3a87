package scim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// IHierarchyResolver turns the source hierarchy into flat candidate teams.
type IHierarchyResolver interface {
	Resolve(ctx context.Context, users []*SourceUser) (*TeamMembership, error)
}

type TeamCandidate struct {
	Slug        string
	Name        string
	Description string
	Members     Set[string]
}

// TeamMembership maps team slugs to candidate teams, remembering the order
// in which slugs were first seen.
type TeamMembership struct {
	slugs []string
	teams map[string]*TeamCandidate
}

func NewTeamMembership() *TeamMembership {
	return &TeamMembership{
		teams: make(map[string]*TeamCandidate),
	}
}

// Team returns the candidate for slug, creating it on first use. Name and
// description of the first registration are kept.
func (tm *TeamMembership) Team(slug string, name string, description string) *TeamCandidate {
	var team, ok = tm.teams[slug]
	if !ok {
		team = &TeamCandidate{
			Slug:        slug,
			Name:        name,
			Description: description,
			Members:     NewSet[string](),
		}
		tm.teams[slug] = team
		tm.slugs = append(tm.slugs, slug)
	}
	return team
}

func (tm *TeamMembership) Get(slug string) (team *TeamCandidate, ok bool) {
	team, ok = tm.teams[slug]
	return
}

func (tm *TeamMembership) Slugs() []string {
	return append([]string(nil), tm.slugs...)
}

func (tm *TeamMembership) Len() int {
	return len(tm.slugs)
}

// usernameLookup maps lower-cased primary emails of the synced users to usernames.
func usernameLookup(mapper *IdentityMapper, users []*SourceUser) map[string]string {
	var lookup = make(map[string]string, len(users))
	for _, u := range users {
		lookup[strings.ToLower(u.PrimaryEmail)] = mapper.EmailToUsername(u.PrimaryEmail)
	}
	return lookup
}

// PathFlattener creates a team for every org unit path segment below the root.
// A user in /Org/Engineering/Backend joins "engineering" and "backend".
type PathFlattener struct {
	Mapper *IdentityMapper
}

func (pf *PathFlattener) Resolve(_ context.Context, users []*SourceUser) (membership *TeamMembership, err error) {
	membership = NewTeamMembership()
	for _, u := range users {
		var segments = strings.Split(strings.Trim(u.OrgUnitPath, "/"), "/")
		var username = pf.Mapper.EmailToUsername(u.PrimaryEmail)
		for _, segment := range segments[1:] {
			if len(segment) == 0 {
				continue
			}
			var slug = MapTeamSlug(segment)
			var description = fmt.Sprintf("Team for %s OU", strings.ReplaceAll(slug, "-", " "))
			membership.Team(slug, slug, description).Members.Add(username)
		}
	}
	return
}

// OrgUnitResolver creates one team per configured org unit, without flattening.
type OrgUnitResolver struct {
	Source ISourceDirectory
	Mapper *IdentityMapper
	Paths  []string
	Logger *zap.SugaredLogger
}

func (r *OrgUnitResolver) Resolve(ctx context.Context, users []*SourceUser) (membership *TeamMembership, err error) {
	var lookup = usernameLookup(r.Mapper, users)
	membership = NewTeamMembership()
	for _, path := range r.Paths {
		var ou *OrgUnit
		if ou, err = r.Source.GetOrgUnit(ctx, path); err != nil {
			if errors.Is(err, ErrNotFound) {
				r.Logger.Warnw("skipping org unit", "path", path, "error", err)
				err = nil
				continue
			}
			return
		}
		var slug = MapTeamSlug(ou.Name)
		var team = membership.Team(slug, slug, ou.Description)
		for _, email := range ou.UserEmails {
			if username, ok := lookup[strings.ToLower(email)]; ok {
				team.Members.Add(username)
			} else {
				r.Logger.Debugw("org unit member is not synced", "path", path, "email", email)
			}
		}
	}
	return
}

// GroupNestingResolver expands configured top-level groups through their
// nested groups. With Flatten every reachable group becomes its own team,
// otherwise each top-level group gets the union of all reachable members.
type GroupNestingResolver struct {
	Source    ISourceDirectory
	Mapper    *IdentityMapper
	GroupKeys []string
	Flatten   bool
	Logger    *zap.SugaredLogger
}

func (gr *GroupNestingResolver) Resolve(ctx context.Context, users []*SourceUser) (membership *TeamMembership, err error) {
	var lookup = usernameLookup(gr.Mapper, users)
	membership = NewTeamMembership()
	for _, groupKey := range gr.GroupKeys {
		var top *SourceGroup
		if top, err = gr.Source.GetGroup(ctx, groupKey); err != nil {
			if errors.Is(err, ErrNotFound) {
				gr.Logger.Warnw("skipping group", "group", groupKey, "error", err)
				err = nil
				continue
			}
			return
		}
		var reachable []*SourceGroup
		if reachable, err = WalkGroups(ctx, gr.Source, top, gr.Logger); err != nil {
			return
		}
		var topTeam = membership.Team(MapTeamSlug(top.Name), top.Name, top.Description)
		for _, g := range reachable {
			var team = topTeam
			if gr.Flatten {
				team = membership.Team(MapTeamSlug(g.Name), g.Name, g.Description)
			}
			for _, email := range g.MemberEmails {
				if username, ok := lookup[strings.ToLower(email)]; ok {
					team.Members.Add(username)
				}
			}
		}
	}
	return
}

// WalkGroups returns top followed by every group reachable through nesting,
// breadth first. Group keys are visited at most once, so cycles terminate.
func WalkGroups(ctx context.Context, source ISourceDirectory, top *SourceGroup, logger *zap.SugaredLogger) (groups []*SourceGroup, err error) {
	groups = []*SourceGroup{top}
	var visited = MakeSet[string]([]string{strings.ToLower(top.Email)})
	var pos = 0
	for pos < len(groups) {
		var g = groups[pos]
		pos++

		var nested []*SourceGroup
		if nested, err = source.GetNestedGroups(ctx, g.Email); err != nil {
			if errors.Is(err, ErrNotFound) {
				logger.Warnw("skipping nested groups", "group", g.Email, "error", err)
				err = nil
				continue
			}
			return
		}
		for _, n := range nested {
			var key = strings.ToLower(n.Email)
			if visited.Has(key) {
				continue
			}
			visited.Add(key)
			groups = append(groups, n)
		}
	}
	return
}
