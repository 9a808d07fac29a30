// Package fault defines the caller-facing error conditions of the
// coordination engine. Every value is recoverable; the server maps each
// kind to a status code and structured envelope.
package fault

import "fmt"

// NotFoundError indicates a referenced entity is missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ForbiddenError indicates the actor lacks authorization for the mutation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string { return e.Reason }

// InvalidTransitionError indicates a lifecycle edge absent from the
// transition table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid project status transition %s -> %s", e.From, e.To)
}

// InvalidStatusError indicates a status token outside the recognized set.
type InvalidStatusError struct {
	Status string
}

func (e InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status value %q", e.Status)
}

// InvalidCandidateError indicates an assignment target that does not exist
// or lacks the assembler capability.
type InvalidCandidateError struct {
	CandidateID string
	Reason      string
}

func (e InvalidCandidateError) Error() string {
	return fmt.Sprintf("candidate %s: %s", e.CandidateID, e.Reason)
}

// ReviewDeniedError carries the first failed eligibility rule.
type ReviewDeniedError struct {
	Reason ReviewDenialReason
}

type ReviewDenialReason string

const (
	ProjectNotCompleted    ReviewDenialReason = "project_not_completed"
	NotAParticipant        ReviewDenialReason = "not_a_participant"
	SelfReview             ReviewDenialReason = "self_review"
	RevieweeNotParticipant ReviewDenialReason = "reviewee_not_a_participant"
	DuplicateReview        ReviewDenialReason = "duplicate_review"
)

func (e ReviewDeniedError) Error() string {
	switch e.Reason {
	case ProjectNotCompleted:
		return "only completed projects can be reviewed"
	case NotAParticipant:
		return "only the project creator or the assigned assembler can leave reviews"
	case SelfReview:
		return "you cannot review yourself"
	case RevieweeNotParticipant:
		return "the reviewee must be involved in this project"
	case DuplicateReview:
		return "you have already reviewed this project"
	}
	return string(e.Reason)
}

// ConflictError indicates a concurrent writer changed the record between
// read and guarded write; the caller may retry the whole operation.
type ConflictError struct {
	Kind string
	ID   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("concurrent update on %s %s", e.Kind, e.ID)
}
