package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"flatpack/internal/config"
	"flatpack/internal/domain"
	"flatpack/internal/engine/fault"
	"flatpack/internal/events"
	"flatpack/internal/repo"
)

// Engine is the sole writer of project status, assignment, rating
// aggregates and message read state. Callers hand it an authenticated
// actor id; identity itself is somebody else's problem.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProjectCreateOptions are parameters for posting a project.
type ProjectCreateOptions struct {
	ID            string
	Title         string
	Description   string
	FurnitureType string
	Location      string
	Budget        float64
	ActorID       string
}

// CreateProject posts a new project in open status on behalf of the actor.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.FurnitureType == "" {
		return domain.Project{}, errors.New("furniture_type is required")
	}
	if opts.Budget < 0 {
		return domain.Project{}, errors.New("budget must not be negative")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowString()
	p := domain.Project{
		ID:            id,
		CreatorID:     opts.ActorID,
		Title:         opts.Title,
		Description:   opts.Description,
		FurnitureType: opts.FurnitureType,
		Location:      opts.Location,
		Budget:        opts.Budget,
		Status:        domain.StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureProfile(ctx, tx, opts.ActorID, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", "project", p.ID, opts.ActorID, events.EventPayload{"status": p.Status, "title": p.Title}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AssignProject hands an open project to a candidate with the assembler
// capability. Only the creator may assign; the open -> in_progress flip and
// the assignee write happen in one guarded UPDATE.
func (e Engine) AssignProject(ctx context.Context, actorID, projectID, candidateID string) (domain.Project, error) {
	if candidateID == "" {
		return domain.Project{}, errors.New("candidate is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fault.NotFoundError{Kind: "project", ID: projectID}
		}
		return domain.Project{}, err
	}
	if p.CreatorID != actorID {
		return domain.Project{}, fault.ForbiddenError{Reason: "only the project creator can assign assemblers"}
	}
	if p.Status != domain.StatusOpen {
		return domain.Project{}, fault.InvalidTransitionError{From: p.Status, To: domain.StatusInProgress}
	}
	candidate, err := e.Repo.GetProfileTx(ctx, tx, candidateID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fault.InvalidCandidateError{CandidateID: candidateID, Reason: "no such user"}
		}
		return domain.Project{}, err
	}
	if !candidate.IsAssembler {
		return domain.Project{}, fault.InvalidCandidateError{CandidateID: candidateID, Reason: "not registered as an assembler"}
	}
	now := e.nowString()
	ok, err := e.Repo.AssignProject(ctx, tx, projectID, candidateID, now)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		// A concurrent assign won between our read and the guarded write.
		return domain.Project{}, fault.ConflictError{Kind: "project", ID: projectID}
	}
	if err := e.Events.Append(ctx, tx, "project.assigned", "project", projectID, actorID, events.EventPayload{
		"assigned_to": candidateID,
		"from_status": domain.StatusOpen,
		"to_status":   domain.StatusInProgress,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Status = domain.StatusInProgress
	p.AssignedTo = &candidateID
	p.UpdatedAt = now
	return p, nil
}

// ensureProjectTransition enforces the explicit transition table. open ->
// in_progress is reachable only through AssignProject, never here; completed
// and cancelled are terminal.
func ensureProjectTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusOpen:
		if newStatus == domain.StatusCancelled {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusCompleted || newStatus == domain.StatusCancelled {
			return nil
		}
	}
	return fault.InvalidTransitionError{From: oldStatus, To: newStatus}
}

// SetProjectStatus moves a project along the transition table. The assignee
// is cleared when cancelling so assigned_to stays non-null exactly for
// in_progress and completed projects.
func (e Engine) SetProjectStatus(ctx context.Context, actorID, projectID, newStatus string) (domain.Project, error) {
	if !domain.KnownStatus(newStatus) {
		return domain.Project{}, fault.InvalidStatusError{Status: newStatus}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, fault.NotFoundError{Kind: "project", ID: projectID}
		}
		return domain.Project{}, err
	}
	if err := ensureProjectTransition(p.Status, newStatus); err != nil {
		return domain.Project{}, err
	}
	if p.CreatorID != actorID {
		return domain.Project{}, fault.ForbiddenError{Reason: "only the project creator can mark a project as completed or cancelled"}
	}
	now := e.nowString()
	clearAssignee := newStatus == domain.StatusCancelled
	ok, err := e.Repo.SetProjectStatus(ctx, tx, projectID, p.Status, newStatus, now, clearAssignee)
	if err != nil {
		return domain.Project{}, err
	}
	if !ok {
		return domain.Project{}, fault.ConflictError{Kind: "project", ID: projectID}
	}
	if err := e.Events.Append(ctx, tx, "project.status_changed", "project", projectID, actorID, events.EventPayload{
		"from_status": p.Status,
		"to_status":   newStatus,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Status = newStatus
	p.UpdatedAt = now
	if clearAssignee {
		p.AssignedTo = nil
	}
	return p, nil
}
