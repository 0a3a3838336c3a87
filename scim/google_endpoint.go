package scim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	defaultCustomer   = "my_customer"
	memberTypeUser    = "USER"
	memberTypeGroup   = "GROUP"
	userFetchParallel = 8
)

type GoogleEndpointParameters struct {
	// AdminAccount is the Google Workspace admin impersonated by the service account.
	AdminAccount string
	// Credentials is the service account JSON key.
	Credentials []byte
	Customer    string
}

// GoogleEndpoint reads users, groups and org units from the Google Workspace Admin SDK.
type GoogleEndpoint struct {
	directory *admin.Service
	customer  string
	logger    *zap.SugaredLogger
}

// NewGoogleEndpoint creates an ISourceDirectory for Google Workspace using
// domain-wide delegation with read-only directory scopes.
func NewGoogleEndpoint(ctx context.Context, params *GoogleEndpointParameters, logger *zap.SugaredLogger) (ge *GoogleEndpoint, err error) {
	var credParams = google.CredentialsParams{
		Scopes: []string{admin.AdminDirectoryUserReadonlyScope,
			admin.AdminDirectoryGroupReadonlyScope, admin.AdminDirectoryGroupMemberReadonlyScope,
			admin.AdminDirectoryOrgunitReadonlyScope},
		Subject: params.AdminAccount,
	}
	var cred *google.Credentials
	if cred, err = google.CredentialsFromJSONWithParams(ctx, params.Credentials, credParams); err != nil {
		err = fmt.Errorf("google service account credentials: %w", err)
		return
	}
	var directory *admin.Service
	if directory, err = admin.NewService(ctx, option.WithCredentials(cred)); err != nil {
		return
	}
	ge = newGoogleEndpoint(directory, params.Customer, logger)
	return
}

func newGoogleEndpoint(directory *admin.Service, customer string, logger *zap.SugaredLogger) *GoogleEndpoint {
	if len(customer) == 0 {
		customer = defaultCustomer
	}
	return &GoogleEndpoint{
		directory: directory,
		customer:  customer,
		logger:    logger,
	}
}

func directoryError(err error, kind string, key string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%s \"%s\": %w", kind, key, ErrNotFound)
	}
	return fmt.Errorf("google directory API: %s \"%s\": %w", kind, key, err)
}

func (ge *GoogleEndpoint) parseTime(value string) *time.Time {
	if len(value) == 0 {
		return nil
	}
	var t, err = time.Parse(time.RFC3339, value)
	if err != nil {
		ge.logger.Warnw("failed to parse timestamp", "value", value, "error", err)
		return nil
	}
	return &t
}

func (ge *GoogleEndpoint) parseUser(u *admin.User) *SourceUser {
	var su = &SourceUser{
		Id:            u.Id,
		PrimaryEmail:  u.PrimaryEmail,
		Suspended:     u.Suspended,
		OrgUnitPath:   u.OrgUnitPath,
		LastLoginTime: ge.parseTime(u.LastLoginTime),
		CreationTime:  ge.parseTime(u.CreationTime),
	}
	if len(su.OrgUnitPath) == 0 {
		su.OrgUnitPath = "/"
	}
	if u.Name != nil {
		su.GivenName = u.Name.GivenName
		su.FamilyName = u.Name.FamilyName
		if len(u.Name.FullName) > 0 {
			su.FullName = u.Name.FullName
		} else {
			su.FullName = strings.TrimSpace(strings.Join([]string{u.Name.GivenName, u.Name.FamilyName}, " "))
		}
	}
	return su
}

func (ge *GoogleEndpoint) listMembers(ctx context.Context, groupKey string) (members []*admin.Member, err error) {
	err = ge.directory.Members.List(groupKey).MaxResults(200).Pages(ctx, func(page *admin.Members) error {
		members = append(members, page.Members...)
		return nil
	})
	if err != nil {
		err = directoryError(err, "group", groupKey)
	}
	return
}

func (ge *GoogleEndpoint) listUsers(ctx context.Context, query string) (users []*SourceUser, err error) {
	var call = ge.directory.Users.List().Customer(ge.customer).MaxResults(500)
	if len(query) > 0 {
		call = call.Query(query)
	}
	err = call.Pages(ctx, func(page *admin.Users) error {
		for _, u := range page.Users {
			users = append(users, ge.parseUser(u))
		}
		return nil
	})
	if err != nil {
		err = directoryError(err, "users", query)
	}
	return
}

func orgUnitQuery(path string) string {
	return fmt.Sprintf("orgUnitPath='%s'", strings.ReplaceAll(path, "'", "\\'"))
}

func (ge *GoogleEndpoint) GetUser(ctx context.Context, email string) (user *SourceUser, err error) {
	var u *admin.User
	if u, err = ge.directory.Users.Get(email).Context(ctx).Do(); err != nil {
		err = directoryError(err, "user", email)
		return
	}
	user = ge.parseUser(u)
	return
}

func (ge *GoogleEndpoint) GetUsersInGroup(ctx context.Context, groupKey string) (users []*SourceUser, err error) {
	var members []*admin.Member
	if members, err = ge.listMembers(ctx, groupKey); err != nil {
		return
	}
	for _, m := range members {
		if m.Type != memberTypeUser {
			continue
		}
		var u *SourceUser
		if u, err = ge.GetUser(ctx, m.Email); err != nil {
			if errors.Is(err, ErrNotFound) {
				ge.logger.Warnw("skipping missing user", "email", m.Email, "group", groupKey)
				err = nil
				continue
			}
			return
		}
		users = append(users, u)
	}
	ge.logger.Debugw("found users in group", "group", groupKey, "count", len(users))
	return
}

func (ge *GoogleEndpoint) GetGroup(ctx context.Context, groupKey string) (group *SourceGroup, err error) {
	var g *admin.Group
	if g, err = ge.directory.Groups.Get(groupKey).Context(ctx).Do(); err != nil {
		err = directoryError(err, "group", groupKey)
		return
	}
	group = &SourceGroup{
		Id:                 g.Id,
		Name:               g.Name,
		Email:              g.Email,
		Description:        g.Description,
		DirectMembersCount: g.DirectMembersCount,
	}
	var members []*admin.Member
	if members, err = ge.listMembers(ctx, groupKey); err != nil {
		ge.logger.Warnw("failed to list group members", "group", groupKey, "error", err)
		err = nil
		return
	}
	for _, m := range members {
		if len(m.Email) > 0 {
			group.MemberEmails = append(group.MemberEmails, m.Email)
		}
	}
	return
}

func (ge *GoogleEndpoint) GetNestedGroups(ctx context.Context, groupKey string) (groups []*SourceGroup, err error) {
	var members []*admin.Member
	if members, err = ge.listMembers(ctx, groupKey); err != nil {
		return
	}
	for _, m := range members {
		if m.Type != memberTypeGroup {
			continue
		}
		var g *SourceGroup
		if g, err = ge.GetGroup(ctx, m.Email); err != nil {
			if errors.Is(err, ErrNotFound) {
				ge.logger.Warnw("skipping missing group", "email", m.Email, "parent", groupKey)
				err = nil
				continue
			}
			return
		}
		g.ParentKey = groupKey
		groups = append(groups, g)
	}
	return
}

// GetAllUsersInGroups collects the users of every group and of every group
// nested below them, keeping the first occurrence of each email.
func (ge *GoogleEndpoint) GetAllUsersInGroups(ctx context.Context, groupKeys []string) (users []*SourceUser, err error) {
	var seen = NewSet[string]()
	for _, groupKey := range groupKeys {
		var top *SourceGroup
		if top, err = ge.GetGroup(ctx, groupKey); err != nil {
			if errors.Is(err, ErrNotFound) {
				ge.logger.Warnw("skipping group", "group", groupKey, "error", err)
				err = nil
				continue
			}
			return
		}
		var groups []*SourceGroup
		if groups, err = WalkGroups(ctx, ge, top, ge.logger); err != nil {
			return
		}
		for _, g := range groups {
			var groupUsers []*SourceUser
			if groupUsers, err = ge.GetUsersInGroup(ctx, g.Email); err != nil {
				if errors.Is(err, ErrNotFound) {
					err = nil
					continue
				}
				return
			}
			for _, u := range groupUsers {
				var key = strings.ToLower(u.PrimaryEmail)
				if !seen.Has(key) {
					seen.Add(key)
					users = append(users, u)
				}
			}
		}
	}
	ge.logger.Infow("found unique users across groups", "count", len(users))
	return
}

func (ge *GoogleEndpoint) GetOrgUnit(ctx context.Context, path string) (orgUnit *OrgUnit, err error) {
	var ou *admin.OrgUnit
	if ou, err = ge.directory.Orgunits.Get(ge.customer, strings.TrimPrefix(path, "/")).Context(ctx).Do(); err != nil {
		err = directoryError(err, "org unit", path)
		return
	}
	orgUnit = &OrgUnit{
		Path:        ou.OrgUnitPath,
		Name:        ou.Name,
		Description: ou.Description,
	}
	var users []*SourceUser
	if users, err = ge.listUsers(ctx, orgUnitQuery(path)); err != nil {
		return
	}
	for _, u := range users {
		orgUnit.UserEmails = append(orgUnit.UserEmails, u.PrimaryEmail)
	}
	return
}

// GetAllUsers returns users below the org unit paths followed by the
// individual users, in input order and without duplicate emails. Individual
// users are fetched in parallel.
func (ge *GoogleEndpoint) GetAllUsers(ctx context.Context, paths []string, individualEmails []string) (users []*SourceUser, err error) {
	var seen = NewSet[string]()
	var add = func(u *SourceUser) {
		var key = strings.ToLower(u.PrimaryEmail)
		if !seen.Has(key) {
			seen.Add(key)
			users = append(users, u)
		}
	}

	for _, path := range paths {
		var ouUsers []*SourceUser
		if ouUsers, err = ge.listUsers(ctx, orgUnitQuery(path)); err != nil {
			return
		}
		ge.logger.Debugw("found users in org unit", "path", path, "count", len(ouUsers))
		for _, u := range ouUsers {
			add(u)
		}
	}

	var individuals = make([]*SourceUser, len(individualEmails))
	var eg, egCtx = errgroup.WithContext(ctx)
	eg.SetLimit(userFetchParallel)
	for i, email := range individualEmails {
		eg.Go(func() error {
			var u, er1 = ge.GetUser(egCtx, email)
			if er1 != nil {
				if errors.Is(er1, ErrNotFound) {
					ge.logger.Warnw("skipping missing individual user", "email", email)
					return nil
				}
				return er1
			}
			individuals[i] = u
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return
	}
	for _, u := range individuals {
		if u != nil {
			add(u)
		}
	}
	ge.logger.Infow("found source users", "count", len(users))
	return
}
