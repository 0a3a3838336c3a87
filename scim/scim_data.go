package scim

import (
	"context"
	"fmt"
	"time"
)

// ISourceDirectory is the authoritative directory users and groups are read from.
// Missing users, groups and org units are reported with an error wrapping ErrNotFound.
type ISourceDirectory interface {
	GetUser(ctx context.Context, email string) (*SourceUser, error)
	GetUsersInGroup(ctx context.Context, groupKey string) ([]*SourceUser, error)
	GetGroup(ctx context.Context, groupKey string) (*SourceGroup, error)
	// GetNestedGroups returns the groups that are direct members of groupKey.
	GetNestedGroups(ctx context.Context, groupKey string) ([]*SourceGroup, error)
	GetAllUsersInGroups(ctx context.Context, groupKeys []string) ([]*SourceUser, error)
	GetOrgUnit(ctx context.Context, path string) (*OrgUnit, error)
	GetAllUsers(ctx context.Context, paths []string, individualEmails []string) ([]*SourceUser, error)
}

// ITargetDirectory is the SCIM provisioning system being reconciled.
// Team calls fail with an error wrapping ErrNotSupported when the target has no teams.
type ITargetDirectory interface {
	GetUsers(ctx context.Context) ([]*TargetUser, error)
	GetTeams(ctx context.Context) ([]*TargetTeam, error)
	CreateUser(ctx context.Context, user *TargetUser) (*TargetUser, error)
	UpdateUser(ctx context.Context, id string, user *TargetUser) (*TargetUser, error)
	SuspendUser(ctx context.Context, id string) (*TargetUser, error)
	DeleteUser(ctx context.Context, id string) error
	CreateTeam(ctx context.Context, team *TargetTeam) (*TargetTeam, error)
	UpdateTeam(ctx context.Context, id string, team *TargetTeam) (*TargetTeam, error)
}

type SourceUser struct {
	Id            string
	PrimaryEmail  string
	GivenName     string
	FamilyName    string
	FullName      string
	Suspended     bool
	OrgUnitPath   string
	LastLoginTime *time.Time
	CreationTime  *time.Time
}

// SourceGroup is one node of the group nesting graph. Nesting is expressed
// through ParentKey only, the graph may contain cycles.
type SourceGroup struct {
	Id                 string
	Name               string
	Email              string
	Description        string
	DirectMembersCount int64
	MemberEmails       []string
	ParentKey          string
}

type OrgUnit struct {
	Path        string
	Name        string
	Description string
	UserEmails  []string
}

type Email struct {
	Value   string
	Type    string
	Primary bool
}

type Name struct {
	GivenName  string
	FamilyName string
	Formatted  string
}

type Role struct {
	Value   string
	Primary bool
}

// TargetUser is either a user read from the target or a candidate computed
// from a SourceUser. Candidates have an empty Id.
type TargetUser struct {
	Id         string
	UserName   string
	Emails     []Email
	Name       Name
	Active     bool
	ExternalId string
	Roles      []Role
}

type TargetTeam struct {
	Id          string
	Name        string
	Slug        string
	Description string
	Members     []string
}

type UserAction int

const (
	ActionCreate UserAction = iota + 1
	ActionUpdate
	ActionSuspend
)

func (a UserAction) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionSuspend:
		return "suspend"
	}
	return fmt.Sprintf("UserAction(%d)", int(a))
}

func ParseUserAction(s string) (action UserAction, err error) {
	switch s {
	case "create":
		action = ActionCreate
	case "update":
		action = ActionUpdate
	case "suspend":
		action = ActionSuspend
	default:
		err = fmt.Errorf("unknown user action \"%s\"", s)
	}
	return
}

// TeamAction has no suspend: orphaned teams are left alone.
type TeamAction int

const (
	TeamActionCreate TeamAction = iota + 1
	TeamActionUpdate
)

func (a TeamAction) String() string {
	switch a {
	case TeamActionCreate:
		return "create"
	case TeamActionUpdate:
		return "update"
	}
	return fmt.Sprintf("TeamAction(%d)", int(a))
}

func ParseTeamAction(s string) (action TeamAction, err error) {
	switch s {
	case "create":
		action = TeamActionCreate
	case "update":
		action = TeamActionUpdate
	default:
		err = fmt.Errorf("unknown team action \"%s\"", s)
	}
	return
}

// UserDiff is a single user operation. Use NewUserCreate, NewUserUpdate or
// NewUserSuspend; they guarantee the records the action needs are present.
type UserDiff struct {
	Action   UserAction
	Source   *SourceUser
	Existing *TargetUser
	Target   *TargetUser
}

func NewUserCreate(source *SourceUser, target *TargetUser) UserDiff {
	if target == nil {
		panic("scim: create user diff requires a target user")
	}
	return UserDiff{Action: ActionCreate, Source: source, Target: target}
}

func NewUserUpdate(source *SourceUser, existing *TargetUser, target *TargetUser) UserDiff {
	if existing == nil || target == nil {
		panic("scim: update user diff requires existing and target users")
	}
	return UserDiff{Action: ActionUpdate, Source: source, Existing: existing, Target: target}
}

func NewUserSuspend(existing *TargetUser) UserDiff {
	if existing == nil {
		panic("scim: suspend user diff requires an existing user")
	}
	return UserDiff{Action: ActionSuspend, Existing: existing}
}

type TeamDiff struct {
	Action   TeamAction
	Existing *TargetTeam
	Target   *TargetTeam
}

func NewTeamCreate(target *TargetTeam) TeamDiff {
	if target == nil {
		panic("scim: create team diff requires a target team")
	}
	return TeamDiff{Action: TeamActionCreate, Target: target}
}

func NewTeamUpdate(existing *TargetTeam, target *TargetTeam) TeamDiff {
	if existing == nil || target == nil {
		panic("scim: update team diff requires existing and target teams")
	}
	return TeamDiff{Action: TeamActionUpdate, Existing: existing, Target: target}
}

// SyncStats accumulates the counters of one run. Diff and apply steps each
// return their own SyncStats; the orchestrator merges them.
type SyncStats struct {
	UsersToCreate  int
	UsersToUpdate  int
	UsersToSuspend int
	UsersUpToDate  int
	UsersCreated   int
	UsersUpdated   int
	UsersSuspended int
	UsersFailed    int
	UsersSkipped   int

	TeamsToCreate int
	TeamsToUpdate int
	TeamsUpToDate int
	TeamsCreated  int
	TeamsUpdated  int
	TeamsFailed   int
	TeamsSkipped  int

	Failures []string
}

func (s *SyncStats) Merge(other SyncStats) {
	s.UsersToCreate += other.UsersToCreate
	s.UsersToUpdate += other.UsersToUpdate
	s.UsersToSuspend += other.UsersToSuspend
	s.UsersUpToDate += other.UsersUpToDate
	s.UsersCreated += other.UsersCreated
	s.UsersUpdated += other.UsersUpdated
	s.UsersSuspended += other.UsersSuspended
	s.UsersFailed += other.UsersFailed
	s.UsersSkipped += other.UsersSkipped
	s.TeamsToCreate += other.TeamsToCreate
	s.TeamsToUpdate += other.TeamsToUpdate
	s.TeamsUpToDate += other.TeamsUpToDate
	s.TeamsCreated += other.TeamsCreated
	s.TeamsUpdated += other.TeamsUpdated
	s.TeamsFailed += other.TeamsFailed
	s.TeamsSkipped += other.TeamsSkipped
	s.Failures = append(s.Failures, other.Failures...)
}

func (s SyncStats) String() string {
	return fmt.Sprintf(
		"users: %d to create, %d to update, %d to suspend, %d up to date, %d skipped; "+
			"applied %d created, %d updated, %d suspended, %d failed; "+
			"teams: %d to create, %d to update, %d up to date, %d skipped; "+
			"applied %d created, %d updated, %d failed",
		s.UsersToCreate, s.UsersToUpdate, s.UsersToSuspend, s.UsersUpToDate, s.UsersSkipped,
		s.UsersCreated, s.UsersUpdated, s.UsersSuspended, s.UsersFailed,
		s.TeamsToCreate, s.TeamsToUpdate, s.TeamsUpToDate, s.TeamsSkipped,
		s.TeamsCreated, s.TeamsUpdated, s.TeamsFailed,
	)
}

type SyncResult struct {
	RunId     string
	Success   bool
	Error     string
	UserDiffs []UserDiff
	TeamDiffs []TeamDiff
	Stats     SyncStats
	DryRun    bool
	StartTime time.Time
	EndTime   time.Time
}

func (r *SyncResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate is the percentage of attempted operations that succeeded.
// A run that attempted nothing is 100% successful.
func (r *SyncResult) SuccessRate() float64 {
	var s = r.Stats
	var succeeded = s.UsersCreated + s.UsersUpdated + s.UsersSuspended + s.TeamsCreated + s.TeamsUpdated
	var total = succeeded + s.UsersFailed + s.TeamsFailed
	if total == 0 {
		return 100.0
	}
	return float64(succeeded) * 100.0 / float64(total)
}
