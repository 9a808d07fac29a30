package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"flatpack/internal/domain"
	"flatpack/internal/engine/fault"
	"flatpack/internal/events"
	"flatpack/internal/repo"
)

// ReviewCreateOptions are parameters for reviewing a completed project.
type ReviewCreateOptions struct {
	ProjectID  string
	RevieweeID string
	Rating     int
	Comment    string
	ActorID    string
}

// canReview runs the eligibility rules in order; the first failure wins.
// The project is read inside the caller's transaction so the duplicate
// check and the insert cannot race another review from the same actor.
func canReview(actor string, p domain.Project, revieweeID string, exists bool) error {
	if p.Status != domain.StatusCompleted {
		return fault.ReviewDeniedError{Reason: fault.ProjectNotCompleted}
	}
	if !isParticipant(p, actor) {
		return fault.ReviewDeniedError{Reason: fault.NotAParticipant}
	}
	if revieweeID == actor {
		return fault.ReviewDeniedError{Reason: fault.SelfReview}
	}
	if !isParticipant(p, revieweeID) {
		return fault.ReviewDeniedError{Reason: fault.RevieweeNotParticipant}
	}
	if exists {
		return fault.ReviewDeniedError{Reason: fault.DuplicateReview}
	}
	return nil
}

func isParticipant(p domain.Project, actorID string) bool {
	if actorID == p.CreatorID {
		return true
	}
	return p.AssignedTo != nil && *p.AssignedTo == actorID
}

// CreateReview gates, inserts and recomputes the reviewee's aggregate in a
// single transaction: a review is never counted without its aggregate
// update nor the other way around.
func (e Engine) CreateReview(ctx context.Context, opts ReviewCreateOptions) (domain.Review, error) {
	if opts.Rating < 1 || opts.Rating > 5 {
		return domain.Review{}, errors.New("rating must be between 1 and 5")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Review{}, fault.NotFoundError{Kind: "project", ID: opts.ProjectID}
		}
		return domain.Review{}, err
	}
	exists, err := e.Repo.ReviewExistsTx(ctx, tx, opts.ProjectID, opts.ActorID)
	if err != nil {
		return domain.Review{}, err
	}
	if err := canReview(opts.ActorID, p, opts.RevieweeID, exists); err != nil {
		return domain.Review{}, err
	}
	now := e.nowString()
	rv := domain.Review{
		ID:         uuid.New().String(),
		ProjectID:  opts.ProjectID,
		ReviewerID: opts.ActorID,
		RevieweeID: opts.RevieweeID,
		Rating:     opts.Rating,
		Comment:    opts.Comment,
		CreatedAt:  now,
	}
	// Reviewee was a participant, but their profile row may predate the
	// ledger; provision the 0.0 baseline before updating.
	if err := e.Repo.EnsureProfile(ctx, tx, opts.RevieweeID, now); err != nil {
		return domain.Review{}, err
	}
	if err := e.Repo.InsertReview(ctx, tx, rv); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.Review{}, fault.ReviewDeniedError{Reason: fault.DuplicateReview}
		}
		return domain.Review{}, err
	}
	avg, err := e.Repo.AverageRatingTx(ctx, tx, opts.RevieweeID)
	if err != nil {
		return domain.Review{}, err
	}
	if err := e.Repo.SetAverageRating(ctx, tx, opts.RevieweeID, avg); err != nil {
		return domain.Review{}, err
	}
	if err := e.Events.Append(ctx, tx, "review.created", "review", rv.ID, opts.ActorID, events.EventPayload{
		"project_id": rv.ProjectID,
		"reviewee":   rv.RevieweeID,
		"rating":     rv.Rating,
		"average":    avg,
	}); err != nil {
		return domain.Review{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// ReviewsFor lists reviews received by an actor, newest first.
func (e Engine) ReviewsFor(ctx context.Context, revieweeID string, limit int) ([]domain.Review, error) {
	if _, err := e.Repo.GetProfile(ctx, revieweeID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fault.NotFoundError{Kind: "user", ID: revieweeID}
		}
		return nil, err
	}
	return e.Repo.ListReviewsFor(ctx, revieweeID, limit)
}
