package engine

import (
	"context"
	"errors"

	"flatpack/internal/domain"
	"flatpack/internal/engine/fault"
	"flatpack/internal/repo"
)

// MyProfile returns the actor's profile, provisioning the baseline row on
// first contact.
func (e Engine) MyProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, actorID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Profile{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	now := e.nowString()
	if err := e.Repo.EnsureProfile(ctx, tx, actorID, now); err != nil {
		return domain.Profile{}, err
	}
	p, err = e.Repo.GetProfileTx(ctx, tx, actorID)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// ProfileUpdateOptions encapsulates the caller-editable profile fields.
type ProfileUpdateOptions struct {
	Bio         *string
	Location    *string
	Phone       *string
	IsAssembler *bool
	ActorID     string
}

func (e Engine) UpdateMyProfile(ctx context.Context, opts ProfileUpdateOptions) (domain.Profile, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	defer tx.Rollback()
	now := e.nowString()
	if err := e.Repo.EnsureProfile(ctx, tx, opts.ActorID, now); err != nil {
		return domain.Profile{}, err
	}
	if err := e.Repo.UpdateProfile(ctx, tx, opts.ActorID, opts.Bio, opts.Location, opts.Phone, opts.IsAssembler); err != nil {
		return domain.Profile{}, err
	}
	p, err := e.Repo.GetProfileTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// GetProfile looks up another actor's profile.
func (e Engine) GetProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	p, err := e.Repo.GetProfile(ctx, actorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Profile{}, fault.NotFoundError{Kind: "user", ID: actorID}
		}
		return domain.Profile{}, err
	}
	return p, nil
}
