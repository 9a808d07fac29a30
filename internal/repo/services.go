package repo

import (
	"context"
	"database/sql"
	"strings"

	"flatpack/internal/domain"
)

const serviceColumns = `id,provider_id,title,description,hourly_rate,experience_years,is_available,created_at,updated_at`

func scanService(scan func(dest ...any) error) (domain.ServiceListing, error) {
	var s domain.ServiceListing
	var description sql.NullString
	err := scan(&s.ID, &s.ProviderID, &s.Title, &description, &s.HourlyRate, &s.ExperienceYears, &s.IsAvailable, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if description.Valid {
		s.Description = description.String
	}
	return s, nil
}

func (r Repo) InsertService(ctx context.Context, tx *sql.Tx, s domain.ServiceListing) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO service_listings(id,provider_id,title,description,hourly_rate,experience_years,is_available,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProviderID, s.Title, nullable(s.Description), s.HourlyRate, s.ExperienceYears, s.IsAvailable, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetService(ctx context.Context, id string) (domain.ServiceListing, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM service_listings WHERE id=?`, id)
	return scanService(row.Scan)
}

func (r Repo) UpdateService(ctx context.Context, tx *sql.Tx, s domain.ServiceListing) error {
	res, err := tx.ExecContext(ctx, `UPDATE service_listings SET title=?, description=?, hourly_rate=?, experience_years=?, is_available=?, updated_at=? WHERE id=?`,
		s.Title, nullable(s.Description), s.HourlyRate, s.ExperienceYears, s.IsAvailable, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteService(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM service_listings WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ServiceFilters struct {
	ProviderID      string
	AvailableOnly   bool
	MaxHourlyRate   float64
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListServices(ctx context.Context, f ServiceFilters) ([]domain.ServiceListing, error) {
	var clauses []string
	var args []any
	if f.ProviderID != "" {
		clauses = append(clauses, "provider_id=?")
		args = append(args, f.ProviderID)
	}
	if f.AvailableOnly {
		clauses = append(clauses, "is_available=1")
	}
	if f.MaxHourlyRate > 0 {
		clauses = append(clauses, "hourly_rate<=?")
		args = append(args, f.MaxHourlyRate)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + serviceColumns + ` FROM service_listings ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ServiceListing
	for rows.Next() {
		s, err := scanService(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
