package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"flatpack/internal/domain"
	"flatpack/internal/engine/fault"
	"flatpack/internal/events"
	"flatpack/internal/repo"
)

// ServiceCreateOptions are parameters for publishing a service listing.
type ServiceCreateOptions struct {
	Title           string
	Description     string
	HourlyRate      float64
	ExperienceYears int
	IsAvailable     bool
	ActorID         string
}

func (e Engine) CreateService(ctx context.Context, opts ServiceCreateOptions) (domain.ServiceListing, error) {
	if opts.Title == "" {
		return domain.ServiceListing{}, errors.New("title is required")
	}
	if opts.HourlyRate <= 0 {
		return domain.ServiceListing{}, errors.New("hourly_rate must be positive")
	}
	now := e.nowString()
	s := domain.ServiceListing{
		ID:              uuid.New().String(),
		ProviderID:      opts.ActorID,
		Title:           opts.Title,
		Description:     opts.Description,
		HourlyRate:      opts.HourlyRate,
		ExperienceYears: opts.ExperienceYears,
		IsAvailable:     opts.IsAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServiceListing{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureProfile(ctx, tx, opts.ActorID, now); err != nil {
		return domain.ServiceListing{}, err
	}
	if err := e.Repo.InsertService(ctx, tx, s); err != nil {
		return domain.ServiceListing{}, err
	}
	if err := e.Events.Append(ctx, tx, "service.created", "service", s.ID, opts.ActorID, events.EventPayload{"title": s.Title}); err != nil {
		return domain.ServiceListing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ServiceListing{}, err
	}
	return s, nil
}

// ServiceUpdateOptions encapsulates allowed listing updates.
type ServiceUpdateOptions struct {
	ID              string
	Title           *string
	Description     *string
	HourlyRate      *float64
	ExperienceYears *int
	IsAvailable     *bool
	ActorID         string
}

func (e Engine) UpdateService(ctx context.Context, opts ServiceUpdateOptions) (domain.ServiceListing, error) {
	s, err := e.Repo.GetService(ctx, opts.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s, fault.NotFoundError{Kind: "service", ID: opts.ID}
		}
		return s, err
	}
	if s.ProviderID != opts.ActorID {
		return s, fault.ForbiddenError{Reason: "only the provider can update this listing"}
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return s, errors.New("title is required")
		}
		s.Title = *opts.Title
	}
	if opts.Description != nil {
		s.Description = *opts.Description
	}
	if opts.HourlyRate != nil {
		if *opts.HourlyRate <= 0 {
			return s, errors.New("hourly_rate must be positive")
		}
		s.HourlyRate = *opts.HourlyRate
	}
	if opts.ExperienceYears != nil {
		s.ExperienceYears = *opts.ExperienceYears
	}
	if opts.IsAvailable != nil {
		s.IsAvailable = *opts.IsAvailable
	}
	s.UpdatedAt = e.nowString()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateService(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "service.updated", "service", s.ID, opts.ActorID, nil); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) DeleteService(ctx context.Context, actorID, id string) error {
	s, err := e.Repo.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fault.NotFoundError{Kind: "service", ID: id}
		}
		return err
	}
	if s.ProviderID != actorID {
		return fault.ForbiddenError{Reason: "only the provider can delete this listing"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteService(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "service.deleted", "service", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
