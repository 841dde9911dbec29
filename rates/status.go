package rates

// =============================================================================
// APPROVAL STATUS
// =============================================================================

type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusReady     ApprovalStatus = "ready"
	StatusReview    ApprovalStatus = "review"
	StatusException ApprovalStatus = "exception"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
)

// Confidence bands. Downstream bulk approval assumes these exact values;
// they are not tuning knobs.
const (
	ReadyThreshold  = 0.95
	ReviewThreshold = 0.80
)

// IsTerminal reports whether no further transition is possible.
// Exception is not terminal: an override can still approve it.
func (s ApprovalStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// StatusSubject is anything the resolver can classify.
type StatusSubject interface {
	// ExplicitStatus returns a status set by a human action, or "".
	ExplicitStatus() ApprovalStatus
	// MatchConfidence returns the match confidence and whether a match
	// result exists at all.
	MatchConfidence() (float64, bool)
}

// ResolveStatus derives the workflow status of an item. It is total and has
// no side effects. An explicit status always wins over confidence.
func ResolveStatus(item StatusSubject) ApprovalStatus {
	if s := item.ExplicitStatus(); s != "" {
		return s
	}
	confidence, matched := item.MatchConfidence()
	if !matched {
		return StatusPending
	}
	return StatusForConfidence(confidence)
}

// StatusForConfidence applies the confidence bands.
func StatusForConfidence(confidence float64) ApprovalStatus {
	switch {
	case confidence >= ReadyThreshold:
		return StatusReady
	case confidence >= ReviewThreshold:
		return StatusReview
	default:
		return StatusException
	}
}
