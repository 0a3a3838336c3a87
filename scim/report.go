package scim

import (
	"fmt"
	"io"
)

// PrintStatistics writes a human readable run summary.
func PrintStatistics(w io.Writer, result *SyncResult) {
	if result == nil {
		return
	}
	var s = result.Stats
	if result.DryRun {
		_, _ = fmt.Fprintf(w, "Dry run, no changes were applied\n")
	}
	_, _ = fmt.Fprintf(w, "Users:\n")
	_, _ = fmt.Fprintf(w, "\tTo create: %d, to update: %d, to suspend: %d, up to date: %d, skipped: %d\n",
		s.UsersToCreate, s.UsersToUpdate, s.UsersToSuspend, s.UsersUpToDate, s.UsersSkipped)
	_, _ = fmt.Fprintf(w, "\tCreated: %d, updated: %d, suspended: %d, failed: %d\n",
		s.UsersCreated, s.UsersUpdated, s.UsersSuspended, s.UsersFailed)
	_, _ = fmt.Fprintf(w, "Teams:\n")
	_, _ = fmt.Fprintf(w, "\tTo create: %d, to update: %d, up to date: %d, skipped: %d\n",
		s.TeamsToCreate, s.TeamsToUpdate, s.TeamsUpToDate, s.TeamsSkipped)
	_, _ = fmt.Fprintf(w, "\tCreated: %d, updated: %d, failed: %d\n",
		s.TeamsCreated, s.TeamsUpdated, s.TeamsFailed)
	if len(s.Failures) > 0 {
		_, _ = fmt.Fprintf(w, "Failures:\n")
		for _, txt := range s.Failures {
			_, _ = fmt.Fprintf(w, "\t%s\n", txt)
		}
	}
	if len(result.Error) > 0 {
		_, _ = fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
}
