package engine

import (
	"context"
	"errors"
	"strings"

	"flatpack/internal/domain"
	"flatpack/internal/engine/fault"
	"flatpack/internal/events"
	"flatpack/internal/repo"
)

// SendMessage appends a direct message to the log, unread. The receiver
// must already be known to the marketplace.
func (e Engine) SendMessage(ctx context.Context, senderID, receiverID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, errors.New("content is required")
	}
	if receiverID == "" {
		return domain.Message{}, errors.New("receiver is required")
	}
	if receiverID == senderID {
		return domain.Message{}, errors.New("receiver must differ from sender")
	}
	if _, err := e.Repo.GetProfile(ctx, receiverID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Message{}, fault.NotFoundError{Kind: "user", ID: receiverID}
		}
		return domain.Message{}, err
	}
	now := e.nowString()
	m := domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		IsRead:     false,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureProfile(ctx, tx, senderID, now); err != nil {
		return domain.Message{}, err
	}
	id, err := e.Repo.InsertMessage(ctx, tx, m)
	if err != nil {
		return domain.Message{}, err
	}
	m.ID = id
	if err := e.Events.Append(ctx, tx, "message.sent", "message", "", senderID, events.EventPayload{"receiver": receiverID}); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ListConversations derives one summary per counterpart from the message
// log: latest message of the pair plus the actor's unread count.
func (e Engine) ListConversations(ctx context.Context, actorID string) ([]domain.ConversationSummary, error) {
	return e.Repo.Conversations(ctx, actorID)
}

// History returns the full exchange between actor and other in
// chronological order. Viewing marks as read: every returned message
// addressed to the actor is flipped to read in the same transaction, so a
// second call returns the same messages with is_read set.
func (e Engine) History(ctx context.Context, actorID, otherID string) ([]domain.Message, error) {
	if _, err := e.Repo.GetProfile(ctx, otherID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fault.NotFoundError{Kind: "user", ID: otherID}
		}
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msgs, err := e.Repo.MessagesBetween(ctx, tx, actorID, otherID)
	if err != nil {
		return nil, err
	}
	flipped, err := e.Repo.MarkConversationRead(ctx, tx, actorID, otherID)
	if err != nil {
		return nil, err
	}
	if flipped > 0 {
		if err := e.Events.Append(ctx, tx, "messages.read", "conversation", "", actorID, events.EventPayload{
			"counterpart": otherID,
			"count":       flipped,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range msgs {
		if msgs[i].ReceiverID == actorID {
			msgs[i].IsRead = true
		}
	}
	return msgs, nil
}
