package scim

import (
	"context"
	"fmt"
	"strings"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var nopLogger = zap.NewNop().Sugar()

func sourceUser(email string, path string) *SourceUser {
	var local = strings.Split(email, "@")[0]
	var parts = strings.Split(local, ".")
	var given = strings.ToUpper(parts[0][:1]) + parts[0][1:]
	var family = "User"
	if len(parts) > 1 {
		family = strings.ToUpper(parts[1][:1]) + parts[1][1:]
	}
	return &SourceUser{
		Id:           "google_" + strings.NewReplacer("@", "_", ".", "_").Replace(email),
		PrimaryEmail: email,
		GivenName:    given,
		FamilyName:   family,
		FullName:     given + " " + family,
		OrgUnitPath:  path,
	}
}

// existingUser is the target record a previous successful sync would have created.
func existingUser(mapper *IdentityMapper, source *SourceUser, id string) *TargetUser {
	var u = mapper.MapUser(source)
	u.Id = id
	return u
}

type fakeTarget struct {
	users            []*TargetUser
	teams            []*TargetTeam
	calls            []string
	failOn           map[string]error
	teamsUnsupported bool
	nextId           int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{failOn: make(map[string]error)}
}

func (f *fakeTarget) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeTarget) id() string {
	f.nextId++
	return fmt.Sprintf("id-%d", f.nextId)
}

func (f *fakeTarget) GetUsers(_ context.Context) ([]*TargetUser, error) {
	if err := f.record("GetUsers"); err != nil {
		return nil, err
	}
	var users []*TargetUser
	for _, u := range f.users {
		var c = *u
		users = append(users, &c)
	}
	return users, nil
}

func (f *fakeTarget) GetTeams(_ context.Context) ([]*TargetTeam, error) {
	if err := f.record("GetTeams"); err != nil {
		return nil, err
	}
	if f.teamsUnsupported {
		return nil, fmt.Errorf("groups: %w", ErrNotSupported)
	}
	var teams []*TargetTeam
	for _, t := range f.teams {
		var c = *t
		teams = append(teams, &c)
	}
	return teams, nil
}

func (f *fakeTarget) CreateUser(_ context.Context, user *TargetUser) (*TargetUser, error) {
	if err := f.record("CreateUser " + user.UserName); err != nil {
		return nil, err
	}
	var c = *user
	c.Id = f.id()
	f.users = append(f.users, &c)
	return &c, nil
}

func (f *fakeTarget) findUser(id string) int {
	for i, u := range f.users {
		if u.Id == id {
			return i
		}
	}
	return -1
}

func (f *fakeTarget) UpdateUser(_ context.Context, id string, user *TargetUser) (*TargetUser, error) {
	if err := f.record("UpdateUser " + id); err != nil {
		return nil, err
	}
	var pos = f.findUser(id)
	if pos < 0 {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	var c = *user
	c.Id = id
	f.users[pos] = &c
	return &c, nil
}

func (f *fakeTarget) SuspendUser(_ context.Context, id string) (*TargetUser, error) {
	if err := f.record("SuspendUser " + id); err != nil {
		return nil, err
	}
	var pos = f.findUser(id)
	if pos < 0 {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	f.users[pos].Active = false
	var c = *f.users[pos]
	return &c, nil
}

func (f *fakeTarget) DeleteUser(_ context.Context, id string) error {
	if err := f.record("DeleteUser " + id); err != nil {
		return err
	}
	var pos = f.findUser(id)
	if pos < 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	f.users = append(f.users[:pos], f.users[pos+1:]...)
	return nil
}

func (f *fakeTarget) CreateTeam(_ context.Context, team *TargetTeam) (*TargetTeam, error) {
	if err := f.record("CreateTeam " + team.Slug); err != nil {
		return nil, err
	}
	if f.teamsUnsupported {
		return nil, fmt.Errorf("groups: %w", ErrNotSupported)
	}
	var c = *team
	c.Id = f.id()
	f.teams = append(f.teams, &c)
	return &c, nil
}

func (f *fakeTarget) UpdateTeam(_ context.Context, id string, team *TargetTeam) (*TargetTeam, error) {
	if err := f.record("UpdateTeam " + id); err != nil {
		return nil, err
	}
	if f.teamsUnsupported {
		return nil, fmt.Errorf("groups: %w", ErrNotSupported)
	}
	for i, t := range f.teams {
		if t.Id == id {
			var c = *team
			c.Id = id
			f.teams[i] = &c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
}

type fakeSource struct {
	users    []*SourceUser
	groups   map[string]*SourceGroup
	nested   map[string][]string
	orgUnits map[string]*OrgUnit
	fetchErr error
	calls    []string
}

func newFakeSource(users ...*SourceUser) *fakeSource {
	return &fakeSource{
		users:    users,
		groups:   make(map[string]*SourceGroup),
		nested:   make(map[string][]string),
		orgUnits: make(map[string]*OrgUnit),
	}
}

func (f *fakeSource) addGroup(email string, name string, members ...string) {
	f.groups[email] = &SourceGroup{Id: "g-" + email, Name: name, Email: email, MemberEmails: members}
}

func (f *fakeSource) GetUser(_ context.Context, email string) (*SourceUser, error) {
	f.calls = append(f.calls, "GetUser "+email)
	for _, u := range f.users {
		if strings.EqualFold(u.PrimaryEmail, email) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

func (f *fakeSource) GetUsersInGroup(ctx context.Context, groupKey string) (users []*SourceUser, err error) {
	f.calls = append(f.calls, "GetUsersInGroup "+groupKey)
	var g, ok = f.groups[groupKey]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupKey, ErrNotFound)
	}
	for _, m := range g.MemberEmails {
		if u, er1 := f.GetUser(ctx, m); er1 == nil {
			users = append(users, u)
		}
	}
	return
}

func (f *fakeSource) GetGroup(_ context.Context, groupKey string) (*SourceGroup, error) {
	f.calls = append(f.calls, "GetGroup "+groupKey)
	if g, ok := f.groups[groupKey]; ok {
		var c = *g
		return &c, nil
	}
	return nil, fmt.Errorf("group %s: %w", groupKey, ErrNotFound)
}

func (f *fakeSource) GetNestedGroups(_ context.Context, groupKey string) (groups []*SourceGroup, err error) {
	f.calls = append(f.calls, "GetNestedGroups "+groupKey)
	for _, key := range f.nested[groupKey] {
		if g, ok := f.groups[key]; ok {
			var c = *g
			c.ParentKey = groupKey
			groups = append(groups, &c)
		}
	}
	return
}

func (f *fakeSource) GetAllUsersInGroups(ctx context.Context, groupKeys []string) (users []*SourceUser, err error) {
	f.calls = append(f.calls, "GetAllUsersInGroups")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var seen = NewSet[string]()
	for _, key := range groupKeys {
		var top, er1 = f.GetGroup(ctx, key)
		if er1 != nil {
			continue
		}
		var groups []*SourceGroup
		if groups, err = WalkGroups(ctx, f, top, nopLogger); err != nil {
			return
		}
		for _, g := range groups {
			var groupUsers, _ = f.GetUsersInGroup(ctx, g.Email)
			for _, u := range groupUsers {
				if !seen.Has(u.PrimaryEmail) {
					seen.Add(u.PrimaryEmail)
					users = append(users, u)
				}
			}
		}
	}
	return
}

func (f *fakeSource) GetOrgUnit(_ context.Context, path string) (*OrgUnit, error) {
	f.calls = append(f.calls, "GetOrgUnit "+path)
	if ou, ok := f.orgUnits[path]; ok {
		return ou, nil
	}
	return nil, fmt.Errorf("org unit %s: %w", path, ErrNotFound)
}

// GetAllUsers returns every user below the paths plus the individual users,
// without deduplicating, so the caller's deduplication is exercised.
func (f *fakeSource) GetAllUsers(ctx context.Context, paths []string, individualEmails []string) (users []*SourceUser, err error) {
	f.calls = append(f.calls, "GetAllUsers")
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	for _, path := range paths {
		for _, u := range f.users {
			if InOrgUnit(u.OrgUnitPath, path) {
				users = append(users, u)
			}
		}
	}
	for _, email := range individualEmails {
		if u, er1 := f.GetUser(ctx, email); er1 == nil {
			users = append(users, u)
		}
	}
	return
}

type targetMock struct{ mock.Mock }

var _ ITargetDirectory = (*targetMock)(nil)

func (m *targetMock) GetUsers(ctx context.Context) ([]*TargetUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*TargetUser), args.Error(1)
}

func (m *targetMock) GetTeams(ctx context.Context) ([]*TargetTeam, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*TargetTeam), args.Error(1)
}

func (m *targetMock) CreateUser(ctx context.Context, user *TargetUser) (*TargetUser, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TargetUser), args.Error(1)
}

func (m *targetMock) UpdateUser(ctx context.Context, id string, user *TargetUser) (*TargetUser, error) {
	args := m.Called(ctx, id, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TargetUser), args.Error(1)
}

func (m *targetMock) SuspendUser(ctx context.Context, id string) (*TargetUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TargetUser), args.Error(1)
}

func (m *targetMock) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *targetMock) CreateTeam(ctx context.Context, team *TargetTeam) (*TargetTeam, error) {
	args := m.Called(ctx, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TargetTeam), args.Error(1)
}

func (m *targetMock) UpdateTeam(ctx context.Context, id string, team *TargetTeam) (*TargetTeam, error) {
	args := m.Called(ctx, id, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TargetTeam), args.Error(1)
}
