package repo

import (
	"context"
	"database/sql"
	"sort"

	"flatpack/internal/domain"
)

const messageColumns = `id,sender_id,receiver_id,content,is_read,created_at`

func scanMessage(scan func(dest ...any) error) (domain.Message, error) {
	var m domain.Message
	err := scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.IsRead, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.Message) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO messages(sender_id,receiver_id,content,is_read,created_at) VALUES (?,?,?,?,?)`,
		m.SenderID, m.ReceiverID, m.Content, m.IsRead, m.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMessage(ctx context.Context, id int64) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=?`, id)
	return scanMessage(row.Scan)
}

// MessagesBetween returns the full exchange between two actors in
// chronological order, oldest first.
func (r Repo) MessagesBetween(ctx context.Context, tx *sql.Tx, actorID, otherID string) ([]domain.Message, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages
WHERE (sender_id=? AND receiver_id=?) OR (sender_id=? AND receiver_id=?)
ORDER BY created_at ASC, id ASC`, actorID, otherID, otherID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// MarkConversationRead flips every unread message from other to actor.
// Idempotent: already-read rows are untouched and is_read never reverts.
func (r Repo) MarkConversationRead(ctx context.Context, tx *sql.Tx, actorID, otherID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE messages SET is_read=1 WHERE receiver_id=? AND sender_id=? AND is_read=0`, actorID, otherID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Counterparts returns the distinct set of actors the given actor has
// exchanged messages with in either direction.
func (r Repo) Counterparts(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT receiver_id FROM messages WHERE sender_id=?
UNION SELECT sender_id FROM messages WHERE receiver_id=?`, actorID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

// LatestMessageBetween returns the newest message of the pair; ties on
// created_at go to the highest id, i.e. the most recently inserted row.
func (r Repo) LatestMessageBetween(ctx context.Context, actorID, otherID string) (domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages
WHERE (sender_id=? AND receiver_id=?) OR (sender_id=? AND receiver_id=?)
ORDER BY created_at DESC, id DESC LIMIT 1`, actorID, otherID, otherID, actorID)
	return scanMessage(row.Scan)
}

func (r Repo) UnreadCountFrom(ctx context.Context, actorID, otherID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE receiver_id=? AND sender_id=? AND is_read=0`, actorID, otherID).Scan(&n)
	return n, err
}

// Conversations derives one summary per counterpart, ordered by latest
// message time descending so repeated calls return a stable sequence.
func (r Repo) Conversations(ctx context.Context, actorID string) ([]domain.ConversationSummary, error) {
	partners, err := r.Counterparts(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var res []domain.ConversationSummary
	for _, other := range partners {
		latest, err := r.LatestMessageBetween(ctx, actorID, other)
		if err != nil {
			return nil, err
		}
		unread, err := r.UnreadCountFrom(ctx, actorID, other)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.ConversationSummary{
			CounterpartID: other,
			Latest:        latest,
			UnreadCount:   unread,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Latest.CreatedAt != res[j].Latest.CreatedAt {
			return res[i].Latest.CreatedAt > res[j].Latest.CreatedAt
		}
		return res[i].Latest.ID > res[j].Latest.ID
	})
	return res, nil
}
