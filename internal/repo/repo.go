package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"flatpack/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EnsureProfile inserts a baseline profile row if the actor has none.
// Baseline average rating is 0.0 until the first review lands.
func (r Repo) EnsureProfile(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO profiles(actor_id, is_assembler, average_rating, joined_at) VALUES (?,0,0.0,?)`, actorID, now)
	return err
}

func scanProfile(scan func(dest ...any) error) (domain.Profile, error) {
	var p domain.Profile
	var bio, location, phone sql.NullString
	err := scan(&p.ActorID, &bio, &location, &phone, &p.IsAssembler, &p.AverageRating, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if bio.Valid {
		p.Bio = bio.String
	}
	if location.Valid {
		p.Location = location.String
	}
	if phone.Valid {
		p.Phone = phone.String
	}
	return p, nil
}

const profileColumns = `actor_id,bio,location,phone,is_assembler,average_rating,joined_at`

func (r Repo) GetProfile(ctx context.Context, actorID string) (domain.Profile, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE actor_id=?`, actorID)
	return scanProfile(row.Scan)
}

func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Profile, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE actor_id=?`, actorID)
	return scanProfile(row.Scan)
}

// UpdateProfile touches only the caller-owned fields; average_rating is
// written exclusively by the rating ledger.
func (r Repo) UpdateProfile(ctx context.Context, tx *sql.Tx, actorID string, bio, location, phone *string, isAssembler *bool) error {
	var (
		fields []string
		args   []any
	)
	if bio != nil {
		fields = append(fields, "bio=?")
		args = append(args, nullable(*bio))
	}
	if location != nil {
		fields = append(fields, "location=?")
		args = append(args, nullable(*location))
	}
	if phone != nil {
		fields = append(fields, "phone=?")
		args = append(args, nullable(*phone))
	}
	if isAssembler != nil {
		fields = append(fields, "is_assembler=?")
		args = append(args, *isAssembler)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, actorID)
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET `+strings.Join(fields, ",")+` WHERE actor_id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ProfileFilters struct {
	IsAssembler *bool
	Limit       int
}

func (r Repo) ListProfiles(ctx context.Context, f ProfileFilters) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	var args []any
	if f.IsAssembler != nil {
		query += ` WHERE is_assembler=?`
		args = append(args, *f.IsAssembler)
	}
	query += ` ORDER BY joined_at DESC, actor_id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
