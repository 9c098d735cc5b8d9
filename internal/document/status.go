package document

import "sort"

// Status is the publication state of a document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusReview    Status = "review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Trigger names the action that moves a document between two statuses.
type Trigger string

const (
	TriggerSubmitForReview Trigger = "submit-for-review"
	TriggerPublish         Trigger = "publish"
	TriggerApprove         Trigger = "approve"
	TriggerReject          Trigger = "reject"
	TriggerArchive         Trigger = "archive"
	TriggerReactivate      Trigger = "reactivate"
)

// transitions is the full set of legal status changes. Anything missing here
// is rejected, including a transition to the current status.
var transitions = map[Status]map[Status]Trigger{
	StatusDraft: {
		StatusReview:    TriggerSubmitForReview,
		StatusPublished: TriggerPublish,
	},
	StatusReview: {
		StatusPublished: TriggerApprove,
		StatusDraft:     TriggerReject,
	},
	StatusPublished: {
		StatusArchived: TriggerArchive,
	},
	StatusArchived: {
		StatusDraft: TriggerReactivate,
	},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string { return string(s) }

// ParseStatus converts user input into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", NewValidationError(map[string]string{"status": "unknown status " + quote(v)})
	}
	return s, nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// TriggerFor returns the action name for from -> to.
func TriggerFor(from, to Status) (Trigger, bool) {
	t, ok := transitions[from][to]
	return t, ok
}

// ValidateTransition returns an *InvalidTransitionError when from -> to is not
// in the transition table.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// NextStatuses lists the statuses reachable from s, sorted by name.
func NextStatuses(s Status) []Status {
	out := make([]Status, 0, len(transitions[s]))
	for to := range transitions[s] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
