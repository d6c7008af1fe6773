package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"drydock/internal/domain"
)

const projectCols = `id, name, COALESCE(vessel_name,''), COALESCE(vessel_type,''), COALESCE(vessel_owner,''),
status, budget, spending, start_date, end_date, COALESCE(description,''), creator_id, created_at, updated_at`

func scanProjectRow(scan func(dest ...any) error) (domain.Project, error) {
	var (
		p                    domain.Project
		budget, spending     sql.NullFloat64
		startDate, endDate   sql.NullString
	)
	err := scan(&p.ID, &p.Name, &p.VesselName, &p.VesselType, &p.VesselOwner,
		&p.Status, &budget, &spending, &startDate, &endDate, &p.Description, &p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Budget = floatPtr(budget)
	p.Spending = floatPtr(spending)
	p.StartDate = strPtr(startDate)
	p.EndDate = strPtr(endDate)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,name,vessel_name,vessel_type,vessel_owner,status,budget,spending,start_date,end_date,description,creator_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.VesselName), nullable(p.VesselType), nullable(p.VesselOwner),
		p.Status, nullableFloat(p.Budget), nullableFloat(p.Spending), nullableStr(p.StartDate), nullableStr(p.EndDate),
		nullable(p.Description), p.CreatorID, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProjectRow(row.Scan)
}

func (r Repo) ListProjects(ctx context.Context, tx *sql.Tx, ids []string) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects`
	var args []any
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		query += ` WHERE id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProjectRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET name=?, vessel_name=?, vessel_type=?, vessel_owner=?, status=?, budget=?, spending=?, start_date=?, end_date=?, description=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.VesselName), nullable(p.VesselType), nullable(p.VesselOwner), p.Status,
		nullableFloat(p.Budget), nullableFloat(p.Spending), nullableStr(p.StartDate), nullableStr(p.EndDate),
		nullable(p.Description), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes the project; tasks and memberships cascade via
// foreign keys.
func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMemberIDs(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT actor_id FROM project_members WHERE project_id=? ORDER BY actor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r Repo) ListMemberActors(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Actor, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT a.id, a.username, COALESCE(a.full_name,''), a.role, a.active, a.created_at
FROM actors a JOIN project_members m ON m.actor_id=a.id WHERE m.project_id=? ORDER BY a.username`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Username, &a.FullName, &a.Role, &a.Active, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceMembers swaps the project's team for the given set. Duplicate ids
// collapse via the primary key.
func (r Repo) ReplaceMembers(ctx context.Context, tx *sql.Tx, projectID string, actorIDs []string, now string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=?`, projectID); err != nil {
		return err
	}
	for _, actorID := range actorIDs {
		if strings.TrimSpace(actorID) == "" {
			return fmt.Errorf("empty member actor id")
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,actor_id,added_at) VALUES (?,?,?)`,
			projectID, actorID, now); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
