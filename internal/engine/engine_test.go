package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"flatpack/internal/config"
	"flatpack/internal/db"
	"flatpack/internal/domain"
	"flatpack/internal/engine"
	"flatpack/internal/engine/fault"
	"flatpack/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func registerAssembler(t *testing.T, env testEnv, actorID string) {
	t.Helper()
	yes := true
	if _, err := env.Engine.UpdateMyProfile(env.Ctx, engine.ProfileUpdateOptions{
		IsAssembler: &yes,
		ActorID:     actorID,
	}); err != nil {
		t.Fatalf("register assembler %s: %v", actorID, err)
	}
}

func newProject(t *testing.T, env testEnv, creator string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Title:         "Assemble wardrobe",
		FurnitureType: "wardrobe",
		Budget:        120,
		ActorID:       creator,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	p := newProject(t, env, "alice")
	if p.Status != domain.StatusOpen {
		t.Fatalf("new project status = %s, want open", p.Status)
	}
	if p.AssignedTo != nil {
		t.Fatalf("new project should have no assignee")
	}

	// only the creator assigns
	_, err := env.Engine.AssignProject(env.Ctx, "mallory", p.ID, "bob")
	var fb fault.ForbiddenError
	if !errors.As(err, &fb) {
		t.Fatalf("assign by non-creator: got %v, want ForbiddenError", err)
	}

	p, err = env.Engine.AssignProject(env.Ctx, "alice", p.ID, "bob")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if p.Status != domain.StatusInProgress || p.AssignedTo == nil || *p.AssignedTo != "bob" {
		t.Fatalf("after assign: status=%s assigned_to=%v", p.Status, p.AssignedTo)
	}

	// the assignee cannot complete, only the creator
	_, err = env.Engine.SetProjectStatus(env.Ctx, "bob", p.ID, domain.StatusCompleted)
	if !errors.As(err, &fb) {
		t.Fatalf("complete by assignee: got %v, want ForbiddenError", err)
	}
	p, err = env.Engine.SetProjectStatus(env.Ctx, "alice", p.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if p.Status != domain.StatusCompleted {
		t.Fatalf("after complete: status=%s", p.Status)
	}
	if p.AssignedTo == nil || *p.AssignedTo != "bob" {
		t.Fatalf("completing must keep the assignee")
	}

	// completed is terminal
	var it fault.InvalidTransitionError
	_, err = env.Engine.AssignProject(env.Ctx, "alice", p.ID, "bob")
	if !errors.As(err, &it) {
		t.Fatalf("assign completed project: got %v, want InvalidTransitionError", err)
	}
	_, err = env.Engine.SetProjectStatus(env.Ctx, "alice", p.ID, domain.StatusCancelled)
	if !errors.As(err, &it) {
		t.Fatalf("cancel completed project: got %v, want InvalidTransitionError", err)
	}
}

func TestAssignCandidateValidation(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env, "alice")

	var ic fault.InvalidCandidateError
	_, err := env.Engine.AssignProject(env.Ctx, "alice", p.ID, "ghost")
	if !errors.As(err, &ic) {
		t.Fatalf("assign to unknown user: got %v, want InvalidCandidateError", err)
	}

	// a known profile without the assembler flag is still rejected
	if _, err := env.Engine.MyProfile(env.Ctx, "carol"); err != nil {
		t.Fatalf("provision carol: %v", err)
	}
	_, err = env.Engine.AssignProject(env.Ctx, "alice", p.ID, "carol")
	if !errors.As(err, &ic) {
		t.Fatalf("assign to non-assembler: got %v, want InvalidCandidateError", err)
	}

	var nf fault.NotFoundError
	_, err = env.Engine.AssignProject(env.Ctx, "alice", "missing", "carol")
	if !errors.As(err, &nf) {
		t.Fatalf("assign missing project: got %v, want NotFoundError", err)
	}
}

func TestCancelClearsAssignee(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	p := newProject(t, env, "alice")
	if _, err := env.Engine.AssignProject(env.Ctx, "alice", p.ID, "bob"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	cancelled, err := env.Engine.SetProjectStatus(env.Ctx, "alice", p.ID, domain.StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled || cancelled.AssignedTo != nil {
		t.Fatalf("after cancel: status=%s assigned_to=%v", cancelled.Status, cancelled.AssignedTo)
	}
	stored, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.AssignedTo != nil {
		t.Fatalf("cancel must clear the stored assignee")
	}
}

func TestInvalidStatusValue(t *testing.T) {
	env := newTestEnv(t)
	p := newProject(t, env, "alice")
	var is fault.InvalidStatusError
	_, err := env.Engine.SetProjectStatus(env.Ctx, "alice", p.ID, "finished")
	if !errors.As(err, &is) {
		t.Fatalf("unknown status token: got %v, want InvalidStatusError", err)
	}
}

func completedProject(t *testing.T, env testEnv, creator, assembler string) domain.Project {
	t.Helper()
	p := newProject(t, env, creator)
	if _, err := env.Engine.AssignProject(env.Ctx, creator, p.ID, assembler); err != nil {
		t.Fatalf("assign: %v", err)
	}
	p, err := env.Engine.SetProjectStatus(env.Ctx, creator, p.ID, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return p
}

func TestReviewEligibility(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	open := newProject(t, env, "alice")
	done := completedProject(t, env, "alice", "bob")

	expectDenied := func(err error, reason fault.ReviewDenialReason) {
		t.Helper()
		var rd fault.ReviewDeniedError
		if !errors.As(err, &rd) || rd.Reason != reason {
			t.Fatalf("got %v, want ReviewDeniedError(%s)", err, reason)
		}
	}

	_, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: open.ID, RevieweeID: "bob", Rating: 5, ActorID: "alice",
	})
	expectDenied(err, fault.ProjectNotCompleted)

	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "bob", Rating: 5, ActorID: "mallory",
	})
	expectDenied(err, fault.NotAParticipant)

	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "alice", Rating: 5, ActorID: "alice",
	})
	expectDenied(err, fault.SelfReview)

	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "carol", Rating: 5, ActorID: "alice",
	})
	expectDenied(err, fault.RevieweeNotParticipant)

	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "bob", Rating: 4, ActorID: "alice",
	}); err != nil {
		t.Fatalf("first review: %v", err)
	}
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "bob", Rating: 5, ActorID: "alice",
	})
	expectDenied(err, fault.DuplicateReview)

	// both directions count; the assignee still gets one review of their own
	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "alice", Rating: 5, ActorID: "bob",
	}); err != nil {
		t.Fatalf("review by assignee: %v", err)
	}

	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: done.ID, RevieweeID: "bob", Rating: 0, ActorID: "alice",
	})
	if err == nil {
		t.Fatalf("rating 0 must be rejected")
	}
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: "missing", RevieweeID: "bob", Rating: 5, ActorID: "alice",
	})
	var nf fault.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("review on missing project: got %v, want NotFoundError", err)
	}
}

func TestRatingAggregateRecompute(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	first := completedProject(t, env, "alice", "bob")
	second := completedProject(t, env, "alice", "bob")

	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: first.ID, RevieweeID: "bob", Rating: 4, ActorID: "alice",
	}); err != nil {
		t.Fatalf("first review: %v", err)
	}
	bob, err := env.Engine.GetProfile(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if bob.AverageRating != 4.0 {
		t.Fatalf("after one review average = %v, want 4.0", bob.AverageRating)
	}

	if _, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		ProjectID: second.ID, RevieweeID: "bob", Rating: 5, ActorID: "alice",
	}); err != nil {
		t.Fatalf("second review: %v", err)
	}
	bob, err = env.Engine.GetProfile(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if bob.AverageRating != 4.5 {
		t.Fatalf("after two reviews average = %v, want 4.5", bob.AverageRating)
	}

	reviews, err := env.Engine.ReviewsFor(env.Ctx, "bob", 10)
	if err != nil {
		t.Fatalf("reviews for: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("reviews for bob = %d, want 2", len(reviews))
	}
}

func TestConversationReadMarking(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	if _, err := env.Engine.MyProfile(env.Ctx, "alice"); err != nil {
		t.Fatalf("provision alice: %v", err)
	}

	for _, content := range []string{"hi", "are you free", "wardrobe job"} {
		if _, err := env.Engine.SendMessage(env.Ctx, "alice", "bob", content); err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
	}

	convos, err := env.Engine.ListConversations(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convos) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convos))
	}
	if convos[0].CounterpartID != "alice" || convos[0].UnreadCount != 3 {
		t.Fatalf("conversation = %+v, want alice with 3 unread", convos[0])
	}
	if convos[0].Latest.Content != "wardrobe job" {
		t.Fatalf("latest content = %q", convos[0].Latest.Content)
	}

	// viewing marks the counterpart's messages read
	msgs, err := env.Engine.History(env.Ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("history = %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if !m.IsRead {
			t.Fatalf("message %d still unread after viewing", m.ID)
		}
	}
	convos, err = env.Engine.ListConversations(env.Ctx, "bob")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if convos[0].UnreadCount != 0 {
		t.Fatalf("unread after viewing = %d, want 0", convos[0].UnreadCount)
	}

	// the sender's copy is untouched by their own listing
	convos, err = env.Engine.ListConversations(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convos) != 1 || convos[0].CounterpartID != "bob" || convos[0].UnreadCount != 0 {
		t.Fatalf("alice conversations = %+v", convos)
	}

	var nf fault.NotFoundError
	if _, err := env.Engine.SendMessage(env.Ctx, "alice", "ghost", "hello"); !errors.As(err, &nf) {
		t.Fatalf("send to unknown receiver: got %v, want NotFoundError", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, "alice", "alice", "note to self"); err == nil {
		t.Fatalf("sending to yourself must be rejected")
	}
}

func TestServiceOwnership(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateService(env.Ctx, engine.ServiceCreateOptions{
		Title:       "Wardrobe assembly",
		HourlyRate:  35,
		IsAvailable: true,
		ActorID:     "bob",
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}

	var fb fault.ForbiddenError
	title := "Hijacked"
	_, err = env.Engine.UpdateService(env.Ctx, engine.ServiceUpdateOptions{
		ID: s.ID, Title: &title, ActorID: "mallory",
	})
	if !errors.As(err, &fb) {
		t.Fatalf("update by non-owner: got %v, want ForbiddenError", err)
	}
	if err := env.Engine.DeleteService(env.Ctx, "mallory", s.ID); !errors.As(err, &fb) {
		t.Fatalf("delete by non-owner: got %v, want ForbiddenError", err)
	}

	rate := 40.0
	updated, err := env.Engine.UpdateService(env.Ctx, engine.ServiceUpdateOptions{
		ID: s.ID, HourlyRate: &rate, ActorID: "bob",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.HourlyRate != 40 || updated.Title != "Wardrobe assembly" {
		t.Fatalf("updated = %+v", updated)
	}
	if err := env.Engine.DeleteService(env.Ctx, "bob", s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var nf fault.NotFoundError
	if err := env.Engine.DeleteService(env.Ctx, "bob", s.ID); !errors.As(err, &nf) {
		t.Fatalf("delete twice: got %v, want NotFoundError", err)
	}
}

func TestEventLog(t *testing.T) {
	env := newTestEnv(t)
	registerAssembler(t, env, "bob")
	p := newProject(t, env, "alice")
	if _, err := env.Engine.AssignProject(env.Ctx, "alice", p.ID, "bob"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, 0, "", "project", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("project events = %d, want at least created and assigned", len(events))
	}
	if events[0].Type != "project.assigned" {
		t.Fatalf("latest event = %s, want project.assigned", events[0].Type)
	}
}
