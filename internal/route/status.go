package route

import "strings"

// PaperStatus is a point in the paper lifecycle:
// Submitted → Under Review → {Major Revision, Minor Revision} → Under Review
// → {Accepted, Rejected}.
type PaperStatus string

const (
	PaperSubmitted     PaperStatus = "Submitted"
	PaperUnderReview   PaperStatus = "Under Review"
	PaperMajorRevision PaperStatus = "Major Revision"
	PaperMinorRevision PaperStatus = "Minor Revision"
	PaperAccepted      PaperStatus = "Accepted"
	PaperRejected      PaperStatus = "Rejected"
)

// ReviewStatus is a point in the review-task lifecycle:
// Invited → {Accepted, Declined}; Accepted → In Progress → Completed.
type ReviewStatus string

const (
	ReviewInvited    ReviewStatus = "Invited"
	ReviewAccepted   ReviewStatus = "Accepted"
	ReviewDeclined   ReviewStatus = "Declined"
	ReviewInProgress ReviewStatus = "In Progress"
	ReviewCompleted  ReviewStatus = "Completed"
)

// statusRule maps a substring of the extracted status phrase onto a
// lifecycle state. Rules are ordered: more specific phrases come first so
// "major revision" is never shadowed by a broad "revision" match.
type statusRule[T ~string] struct {
	marker string
	status T
}

var paperRules = []statusRule[PaperStatus]{
	{"major revision", PaperMajorRevision},
	{"minor revision", PaperMinorRevision},
	{"revise and resubmit", PaperMajorRevision},
	{"under review", PaperUnderReview},
	{"with editor", PaperUnderReview},
	{"in review", PaperUnderReview},
	{"reject", PaperRejected},
	{"accept", PaperAccepted},
	{"submitted", PaperSubmitted},
	{"received", PaperSubmitted},
	{"submission", PaperSubmitted},
}

var reviewRules = []statusRule[ReviewStatus]{
	{"declin", ReviewDeclined},
	{"in progress", ReviewInProgress},
	{"complet", ReviewCompleted},
	{"submitted", ReviewCompleted},
	{"thank you for your review", ReviewCompleted},
	{"invit", ReviewInvited},
	{"reminder", ReviewInvited},
	{"accept", ReviewAccepted},
}

// NormalizePaperStatus maps a free-text status phrase onto the paper
// lifecycle. ok is false when nothing matched; the caller keeps the entity's
// current state and logs.
func NormalizePaperStatus(raw string) (PaperStatus, bool) {
	return matchStatus(raw, paperRules)
}

// NormalizeReviewStatus maps a free-text status phrase onto the review-task
// lifecycle.
func NormalizeReviewStatus(raw string) (ReviewStatus, bool) {
	return matchStatus(raw, reviewRules)
}

func matchStatus[T ~string](raw string, rules []statusRule[T]) (T, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		var zero T
		return zero, false
	}
	for _, r := range rules {
		if strings.Contains(lower, r.marker) {
			return r.status, true
		}
	}
	var zero T
	return zero, false
}
