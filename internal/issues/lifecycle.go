package issues

import "time"

// Transition computes the resolvedAt value of an issue moving from one status to another.
// from is empty for a newly created issue. Every mutating path goes through here so that
// resolvedAt is set exactly when the status is Resolved or Closed.
func Transition(from, to Status, prev *time.Time, now time.Time) *time.Time {
	if !to.Finished() {
		return nil
	}
	if from == to && prev != nil {
		return prev
	}
	t := now.UTC()
	return &t
}

// applyStatus moves issue to status at now, keeping resolvedAt consistent.
func applyStatus(issue *Issue, status Status, now time.Time) {
	issue.ResolvedAt = Transition(issue.Status, status, issue.ResolvedAt, now)
	issue.Status = status
}
