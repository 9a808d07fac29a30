package repo

import (
	"context"
	"database/sql"

	"flatpack/internal/domain"
)

const reviewColumns = `id,project_id,reviewer_id,reviewee_id,rating,comment,created_at`

func scanReview(scan func(dest ...any) error) (domain.Review, error) {
	var rv domain.Review
	var comment sql.NullString
	err := scan(&rv.ID, &rv.ProjectID, &rv.ReviewerID, &rv.RevieweeID, &rv.Rating, &comment, &rv.CreatedAt)
	if err == sql.ErrNoRows {
		return rv, ErrNotFound
	}
	if err != nil {
		return rv, err
	}
	if comment.Valid {
		rv.Comment = comment.String
	}
	return rv, nil
}

func (r Repo) InsertReview(ctx context.Context, tx *sql.Tx, rv domain.Review) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reviews(id,project_id,reviewer_id,reviewee_id,rating,comment,created_at) VALUES (?,?,?,?,?,?,?)`,
		rv.ID, rv.ProjectID, rv.ReviewerID, rv.RevieweeID, rv.Rating, nullable(rv.Comment), rv.CreatedAt)
	return err
}

func (r Repo) ReviewExistsTx(ctx context.Context, tx *sql.Tx, projectID, reviewerID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM reviews WHERE project_id=? AND reviewer_id=? LIMIT 1`, projectID, reviewerID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// AverageRatingTx recomputes the reviewee's mean over every stored review.
// The full recompute avoids drift from repeated incremental updates.
func (r Repo) AverageRatingTx(ctx context.Context, tx *sql.Tx, revieweeID string) (float64, error) {
	var avg sql.NullFloat64
	err := tx.QueryRowContext(ctx, `SELECT AVG(rating) FROM reviews WHERE reviewee_id=?`, revieweeID).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

func (r Repo) SetAverageRating(ctx context.Context, tx *sql.Tx, revieweeID string, rating float64) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET average_rating=? WHERE actor_id=?`, rating, revieweeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListReviewsFor(ctx context.Context, revieweeID string, limit int) ([]domain.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE reviewee_id=? ORDER BY created_at DESC, id DESC`
	args := []any{revieweeID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}

func (r Repo) ListReviewsForProject(ctx context.Context, projectID string) ([]domain.Review, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}
