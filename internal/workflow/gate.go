// Package workflow defines the application lifecycle state machine and the
// mutation gate deciding which fields may change in a given status.
package workflow

import "fmt"

// Status enumerates application workflow states.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusSubmitted      Status = "SUBMITTED"
	StatusUnderReview    Status = "UNDER_REVIEW"
	StatusActionRequired Status = "ACTION_REQUIRED"
	StatusProcessing     Status = "PROCESSING"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusDiscarded      Status = "DISCARDED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusActionRequired,
		StatusProcessing, StatusApproved, StatusRejected, StatusDiscarded:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusDiscarded:
		return true
	}
	return false
}

// Field names a mutable part of an application record. A single update
// operation targets exactly one field, never both.
type Field string

const (
	FieldDocument Field = "document"
	FieldStatus   Field = "status"
)

type edge struct {
	from Status
	to   Status
}

// transitions is the full transition graph, kept as an explicit table so it
// is auditable and exhaustively testable. Reviewer edges are authorized by
// role at the service boundary; the applicant may only submit or discard a
// draft.
var transitions = map[edge]struct{}{
	{StatusDraft, StatusSubmitted}:            {},
	{StatusDraft, StatusDiscarded}:            {},
	{StatusSubmitted, StatusUnderReview}:      {},
	{StatusUnderReview, StatusActionRequired}: {},
	{StatusUnderReview, StatusProcessing}:     {},
	{StatusActionRequired, StatusSubmitted}:   {},
	{StatusProcessing, StatusApproved}:        {},
	{StatusProcessing, StatusRejected}:        {},
}

// applicantEdges are the transitions an applicant may request through the
// controlled status update operation. Discarding a draft is a separate
// destructive operation, not an ordinary status write.
var applicantEdges = map[edge]struct{}{
	{StatusDraft, StatusSubmitted}: {},
}

// InvalidTransition reports an illegal status change request.
type InvalidTransition struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

func (e *InvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// CanMutate decides whether the given field of an application may be written
// while the record is in the given status. Answer content is mutable only in
// DRAFT; the status field itself changes only through CheckTransition.
func CanMutate(field Field, current Status) bool {
	switch field {
	case FieldDocument:
		return current == StatusDraft
	case FieldStatus:
		// A status write is permitted only when at least one edge leaves the
		// current state; the concrete edge is checked by CheckTransition.
		return !current.Terminal()
	default:
		return false
	}
}

// CheckTransition validates a requested status change against the transition
// table, returning *InvalidTransition when the edge does not exist.
func CheckTransition(from, to Status) error {
	if _, ok := transitions[edge{from, to}]; !ok {
		return &InvalidTransition{From: from, To: to}
	}
	return nil
}

// CheckApplicantTransition validates a status change requested by the
// applicant. Only the submit edge out of DRAFT is allowed; everything else
// is a reviewer operation or the dedicated discard operation.
func CheckApplicantTransition(from, to Status) error {
	if _, ok := applicantEdges[edge{from, to}]; !ok {
		return &InvalidTransition{From: from, To: to}
	}
	return nil
}
