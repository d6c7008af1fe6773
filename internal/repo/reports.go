package repo

import (
	"context"
	"database/sql"

	"drydock/internal/domain"
)

const reportCols = `id, name, type, generated_by, generated_at, source_project_id, artifact_path`

func scanReportRow(scan func(dest ...any) error) (domain.ReportRecord, error) {
	var (
		rec    domain.ReportRecord
		source sql.NullString
	)
	err := scan(&rec.ID, &rec.Name, &rec.Type, &rec.GeneratedBy, &rec.GeneratedAt, &source, &rec.ArtifactPath)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.SourceProjectID = strPtr(source)
	return rec, nil
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rec domain.ReportRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reports(id,name,type,generated_by,generated_at,source_project_id,artifact_path) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.Name, rec.Type, rec.GeneratedBy, rec.GeneratedAt, nullableStr(rec.SourceProjectID), rec.ArtifactPath)
	return err
}

func (r Repo) GetReport(ctx context.Context, tx *sql.Tx, id string) (domain.ReportRecord, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+reportCols+` FROM reports WHERE id=?`, id)
	return scanReportRow(row.Scan)
}

// ListReports returns report records, optionally filtered to one generator.
func (r Repo) ListReports(ctx context.Context, generatedBy string) ([]domain.ReportRecord, error) {
	query := `SELECT ` + reportCols + ` FROM reports`
	var args []any
	if generatedBy != "" {
		query += ` WHERE generated_by=?`
		args = append(args, generatedBy)
	}
	query += ` ORDER BY generated_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ReportRecord
	for rows.Next() {
		rec, err := scanReportRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r Repo) DeleteReport(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM reports WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
