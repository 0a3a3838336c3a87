package scim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SyncMode string

const (
	// ModeOrgUnit syncs users by org unit path; teams follow the org unit tree.
	ModeOrgUnit SyncMode = "ou"
	// ModeGroup syncs members of groups; teams follow group nesting.
	ModeGroup SyncMode = "group"
)

func ParseSyncMode(s string) (mode SyncMode, err error) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOrgUnit, "":
		mode = ModeOrgUnit
	case ModeGroup:
		mode = ModeGroup
	default:
		err = fmt.Errorf("%w: unknown sync mode \"%s\"", ErrValidation, s)
	}
	return
}

// Scope selects the source users of a run.
type Scope struct {
	OrgUnits        []string
	Groups          []string
	IndividualUsers []string
}

type SyncOptions struct {
	Mode             SyncMode
	DeleteSuspended  bool
	CreateTeams      bool
	FlattenHierarchy bool
	IncludeSuspended bool
	// OrgUnitFilter restricts synced users to these org unit subtrees. Empty allows all.
	OrgUnitFilter []string
}

// Validate fails with ErrValidation when the scope selects nothing for the mode.
func (o SyncOptions) Validate(scope Scope) error {
	switch o.Mode {
	case ModeOrgUnit:
		if len(scope.OrgUnits) == 0 && len(scope.IndividualUsers) == 0 {
			return fmt.Errorf("%w: no org units or individual users specified for synchronization", ErrValidation)
		}
	case ModeGroup:
		if len(scope.Groups) == 0 && len(scope.IndividualUsers) == 0 {
			return fmt.Errorf("%w: no groups or individual users specified for synchronization", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown sync mode \"%s\"", ErrValidation, o.Mode)
	}
	return nil
}

type Synchronizer struct {
	source  ISourceDirectory
	target  ITargetDirectory
	mapper  *IdentityMapper
	options SyncOptions
	logger  *zap.SugaredLogger
}

func NewSynchronizer(source ISourceDirectory, target ITargetDirectory, mapper *IdentityMapper, options SyncOptions, logger *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{
		source:  source,
		target:  target,
		mapper:  mapper,
		options: options,
		logger:  logger,
	}
}

// Synchronize runs one reconciliation pass. It never returns an error: faults
// end up in the result together with the statistics gathered so far.
func (s *Synchronizer) Synchronize(ctx context.Context, scope Scope, dryRun bool) (result *SyncResult) {
	result = &SyncResult{
		RunId:     uuid.NewString(),
		DryRun:    dryRun,
		StartTime: time.Now(),
	}
	var logger = s.logger.With("run_id", result.RunId, "dry_run", dryRun)
	var stats SyncStats

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprint(r)
			result.UserDiffs = nil
			result.TeamDiffs = nil
			logger.Errorw("synchronization failed", "error", result.Error)
		}
		result.Stats = stats
		result.EndTime = time.Now()
	}()

	logger.Infow("starting synchronization", "mode", string(s.options.Mode))
	var err error
	if err = s.options.Validate(scope); err == nil {
		err = s.run(ctx, logger, scope, dryRun, result, &stats)
	}
	if err != nil {
		logger.Errorw("synchronization failed", "error", err)
		result.Error = err.Error()
		result.UserDiffs = nil
		result.TeamDiffs = nil
		return
	}
	result.Success = true
	logger.Infow("synchronization completed", "stats", stats.String())
	return
}

func (s *Synchronizer) run(ctx context.Context, logger *zap.SugaredLogger, scope Scope, dryRun bool, result *SyncResult, stats *SyncStats) (err error) {
	var sourceUsers []*SourceUser
	var skipped int
	if sourceUsers, skipped, err = s.fetchSourceUsers(ctx, logger, scope); err != nil {
		return
	}
	stats.UsersSkipped += skipped

	logger.Info("fetching existing target users")
	var targetUsers []*TargetUser
	if targetUsers, err = s.target.GetUsers(ctx); err != nil {
		return
	}
	logger.Infow("found existing target users", "count", len(targetUsers))

	var userStats SyncStats
	result.UserDiffs, userStats = DiffUsers(s.mapper, sourceUsers, targetUsers)
	stats.Merge(userStats)
	logger.Infow("calculated user differences", "count", len(result.UserDiffs))

	var applicator = &ChangeApplicator{
		Target:          s.target,
		DeleteSuspended: s.options.DeleteSuspended,
		Logger:          logger,
	}
	if dryRun {
		PreviewUserChanges(logger, result.UserDiffs, s.options.DeleteSuspended)
	} else {
		stats.Merge(applicator.ApplyUserChanges(ctx, result.UserDiffs))
	}

	if !s.options.CreateTeams {
		return
	}
	if err = s.syncTeams(ctx, logger, scope, dryRun, sourceUsers, applicator, result, stats); errors.Is(err, ErrNotSupported) {
		logger.Warnw("team operations disabled", "error", err)
		logger.Info("continuing with user provisioning only; consider setting create_teams=false")
		err = nil
	}
	return
}

func (s *Synchronizer) syncTeams(ctx context.Context, logger *zap.SugaredLogger, scope Scope, dryRun bool, sourceUsers []*SourceUser,
	applicator *ChangeApplicator, result *SyncResult, stats *SyncStats) (err error) {
	logger.Info("fetching existing target teams")
	var targetTeams []*TargetTeam
	if targetTeams, err = s.target.GetTeams(ctx); err != nil {
		return
	}
	logger.Infow("found existing target teams", "count", len(targetTeams))

	var membership *TeamMembership
	if membership, err = s.resolver(scope).Resolve(ctx, sourceUsers); err != nil {
		return
	}

	var teamStats SyncStats
	result.TeamDiffs, teamStats = DiffTeams(membership, targetTeams)
	stats.Merge(teamStats)
	logger.Infow("calculated team differences", "count", len(result.TeamDiffs))

	if dryRun {
		PreviewTeamChanges(logger, result.TeamDiffs)
		return
	}
	teamStats, err = applicator.ApplyTeamChanges(ctx, result.TeamDiffs)
	stats.Merge(teamStats)
	return
}

func (s *Synchronizer) resolver(scope Scope) IHierarchyResolver {
	if s.options.Mode == ModeGroup {
		return &GroupNestingResolver{
			Source:    s.source,
			Mapper:    s.mapper,
			GroupKeys: scope.Groups,
			Flatten:   s.options.FlattenHierarchy,
			Logger:    s.logger,
		}
	}
	if s.options.FlattenHierarchy {
		return &PathFlattener{Mapper: s.mapper}
	}
	return &OrgUnitResolver{
		Source: s.source,
		Mapper: s.mapper,
		Paths:  scope.OrgUnits,
		Logger: s.logger,
	}
}

// fetchSourceUsers returns the users in scope, deduplicated by primary email
// with the first occurrence kept, and the number of users filtered out.
func (s *Synchronizer) fetchSourceUsers(ctx context.Context, logger *zap.SugaredLogger, scope Scope) (users []*SourceUser, skipped int, err error) {
	var fetched []*SourceUser
	if s.options.Mode == ModeGroup {
		logger.Infow("fetching users from source groups", "groups", len(scope.Groups), "individual_users", len(scope.IndividualUsers))
		if len(scope.Groups) > 0 {
			if fetched, err = s.source.GetAllUsersInGroups(ctx, scope.Groups); err != nil {
				return
			}
		}
		if len(scope.IndividualUsers) > 0 {
			var individuals []*SourceUser
			if individuals, err = s.source.GetAllUsers(ctx, nil, scope.IndividualUsers); err != nil {
				return
			}
			fetched = append(fetched, individuals...)
		}
	} else {
		logger.Infow("fetching users from source org units", "org_units", len(scope.OrgUnits), "individual_users", len(scope.IndividualUsers))
		if fetched, err = s.source.GetAllUsers(ctx, scope.OrgUnits, scope.IndividualUsers); err != nil {
			return
		}
	}

	var seen = NewSet[string]()
	for _, u := range fetched {
		var key = strings.ToLower(u.PrimaryEmail)
		if seen.Has(key) {
			continue
		}
		seen.Add(key)
		if !s.shouldSyncUser(u) {
			logger.Debugw("skipping user", "email", u.PrimaryEmail)
			skipped++
			continue
		}
		users = append(users, u)
	}
	logger.Infow("found source users to sync", "count", len(users), "skipped", skipped)
	return
}

func (s *Synchronizer) shouldSyncUser(user *SourceUser) bool {
	if user.Suspended && !s.options.IncludeSuspended {
		return false
	}
	if len(s.options.OrgUnitFilter) == 0 {
		return true
	}
	for _, allowed := range s.options.OrgUnitFilter {
		if InOrgUnit(user.OrgUnitPath, allowed) {
			return true
		}
	}
	return false
}

// InOrgUnit reports whether path equals root or lies below it, comparing whole segments.
func InOrgUnit(path string, root string) bool {
	var p = "/" + strings.Trim(path, "/")
	var r = "/" + strings.Trim(root, "/")
	if r == "/" {
		return true
	}
	return strings.EqualFold(p, r) || strings.HasPrefix(strings.ToLower(p), strings.ToLower(r)+"/")
}
