package repo

import (
	"context"
	"database/sql"
	"strings"

	"flatpack/internal/domain"
)

const projectColumns = `id,creator_id,title,description,furniture_type,location,budget,status,assigned_to,created_at,updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var description, location, assignedTo sql.NullString
	err := scan(&p.ID, &p.CreatorID, &p.Title, &description, &p.FurnitureType, &location, &p.Budget, &p.Status, &assignedTo, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if location.Valid {
		p.Location = location.String
	}
	if assignedTo.Valid {
		p.AssignedTo = &assignedTo.String
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,creator_id,title,description,furniture_type,location,budget,status,assigned_to,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.CreatorID, p.Title, nullable(p.Description), p.FurnitureType, nullable(p.Location), p.Budget,
		p.Status, nullableStringPtr(p.AssignedTo), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

// AssignProject flips open -> in_progress and sets the assignee in one
// guarded UPDATE. Returns false when the row was not in open status anymore,
// i.e. a concurrent writer got there first.
func (r Repo) AssignProject(ctx context.Context, tx *sql.Tx, projectID, candidateID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, assigned_to=?, updated_at=? WHERE id=? AND status=?`,
		domain.StatusInProgress, candidateID, now, projectID, domain.StatusOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// SetProjectStatus moves a project from one status to another with a
// compare-and-set guard on the previous status. When clearAssignee is set
// the assignee is dropped in the same write.
func (r Repo) SetProjectStatus(ctx context.Context, tx *sql.Tx, projectID, from, to, now string, clearAssignee bool) (bool, error) {
	query := `UPDATE projects SET status=?, updated_at=? WHERE id=? AND status=?`
	if clearAssignee {
		query = `UPDATE projects SET status=?, updated_at=?, assigned_to=NULL WHERE id=? AND status=?`
	}
	res, err := tx.ExecContext(ctx, query, to, now, projectID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

type ProjectFilters struct {
	CreatorID       string
	AssignedTo      string
	Status          string
	FurnitureType   string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.CreatorID != "" {
		clauses = append(clauses, "creator_id=?")
		args = append(args, f.CreatorID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.FurnitureType != "" {
		clauses = append(clauses, "furniture_type=?")
		args = append(args, f.FurnitureType)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) CountProjectsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM projects GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
