package scim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ChangeApplicator executes computed operations against the target. Every
// operation ends either applied or failed; a failure never stops the batch.
type ChangeApplicator struct {
	Target ITargetDirectory
	// DeleteSuspended deletes orphaned users instead of deactivating them.
	DeleteSuspended bool
	Logger          *zap.SugaredLogger
}

func userKey(diff UserDiff) string {
	switch {
	case diff.Source != nil:
		return diff.Source.PrimaryEmail
	case diff.Target != nil:
		return diff.Target.UserName
	case diff.Existing != nil:
		return diff.Existing.UserName
	}
	return ""
}

func teamKey(diff TeamDiff) string {
	if diff.Target != nil {
		return diff.Target.Name
	}
	if diff.Existing != nil {
		return diff.Existing.Name
	}
	return ""
}

func (ca *ChangeApplicator) applyUser(ctx context.Context, diff UserDiff) (err error) {
	var user *TargetUser
	switch diff.Action {
	case ActionCreate:
		if user, err = ca.Target.CreateUser(ctx, diff.Target); err == nil {
			ca.Logger.Infow("created user", "username", user.UserName)
		}
	case ActionUpdate:
		if user, err = ca.Target.UpdateUser(ctx, diff.Existing.Id, diff.Target); err == nil {
			ca.Logger.Infow("updated user", "username", user.UserName)
		}
	case ActionSuspend:
		if ca.DeleteSuspended {
			if err = ca.Target.DeleteUser(ctx, diff.Existing.Id); err == nil {
				ca.Logger.Infow("deleted user", "username", diff.Existing.UserName)
			}
		} else if user, err = ca.Target.SuspendUser(ctx, diff.Existing.Id); err == nil {
			ca.Logger.Infow("suspended user", "username", user.UserName)
		}
	default:
		err = fmt.Errorf("unsupported user action %s", diff.Action)
	}
	return
}

func (ca *ChangeApplicator) ApplyUserChanges(ctx context.Context, diffs []UserDiff) (stats SyncStats) {
	ca.Logger.Infow("applying user changes", "count", len(diffs))
	for _, diff := range diffs {
		if err := ca.applyUser(ctx, diff); err != nil {
			ca.Logger.Errorw("failed to apply user change", "action", diff.Action.String(), "user", userKey(diff), "error", err)
			stats.UsersFailed++
			stats.Failures = append(stats.Failures, fmt.Sprintf("%s user \"%s\": %s", diff.Action, userKey(diff), err))
			continue
		}
		switch diff.Action {
		case ActionCreate:
			stats.UsersCreated++
		case ActionUpdate:
			stats.UsersUpdated++
		case ActionSuspend:
			stats.UsersSuspended++
		}
	}
	return
}

func (ca *ChangeApplicator) applyTeam(ctx context.Context, diff TeamDiff) (err error) {
	var team *TargetTeam
	switch diff.Action {
	case TeamActionCreate:
		if team, err = ca.Target.CreateTeam(ctx, diff.Target); err == nil {
			ca.Logger.Infow("created team", "team", team.Name)
		}
	case TeamActionUpdate:
		if team, err = ca.Target.UpdateTeam(ctx, diff.Existing.Id, diff.Target); err == nil {
			ca.Logger.Infow("updated team", "team", team.Name)
		}
	default:
		err = fmt.Errorf("unsupported team action %s", diff.Action)
	}
	return
}

// ApplyTeamChanges stops at the first operation the target reports as not
// supported. That operation counts as failed, the rest as skipped, and the
// returned error wraps ErrNotSupported.
func (ca *ChangeApplicator) ApplyTeamChanges(ctx context.Context, diffs []TeamDiff) (stats SyncStats, err error) {
	ca.Logger.Infow("applying team changes", "count", len(diffs))
	for i, diff := range diffs {
		var er1 = ca.applyTeam(ctx, diff)
		if er1 == nil {
			switch diff.Action {
			case TeamActionCreate:
				stats.TeamsCreated++
			case TeamActionUpdate:
				stats.TeamsUpdated++
			}
			continue
		}
		stats.TeamsFailed++
		stats.Failures = append(stats.Failures, fmt.Sprintf("%s team \"%s\": %s", diff.Action, teamKey(diff), er1))
		if errors.Is(er1, ErrNotSupported) {
			stats.TeamsSkipped += len(diffs) - i - 1
			err = er1
			return
		}
		ca.Logger.Errorw("failed to apply team change", "action", diff.Action.String(), "team", teamKey(diff), "error", er1)
	}
	return
}

// PreviewUserChanges renders the operations without touching the target.
func PreviewUserChanges(logger *zap.SugaredLogger, diffs []UserDiff, deleteSuspended bool) (lines []string) {
	logger.Infof("DRY RUN: would apply %d user changes", len(diffs))
	for _, diff := range diffs {
		var line string
		switch diff.Action {
		case ActionCreate:
			line = fmt.Sprintf("CREATE: %s", userKey(diff))
		case ActionUpdate:
			line = fmt.Sprintf("UPDATE: %s", userKey(diff))
		case ActionSuspend:
			if deleteSuspended {
				line = fmt.Sprintf("DELETE: %s", diff.Existing.UserName)
			} else {
				line = fmt.Sprintf("SUSPEND: %s", diff.Existing.UserName)
			}
		default:
			continue
		}
		logger.Info("  " + line)
		lines = append(lines, line)
	}
	return
}

func PreviewTeamChanges(logger *zap.SugaredLogger, diffs []TeamDiff) (lines []string) {
	logger.Infof("DRY RUN: would apply %d team changes", len(diffs))
	for _, diff := range diffs {
		var line string
		switch diff.Action {
		case TeamActionCreate:
			line = fmt.Sprintf("CREATE TEAM: %s", teamKey(diff))
		case TeamActionUpdate:
			line = fmt.Sprintf("UPDATE TEAM: %s", teamKey(diff))
		default:
			continue
		}
		logger.Info("  " + line)
		lines = append(lines, line)
	}
	return
}
