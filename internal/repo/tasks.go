package repo

import (
	"context"
	"database/sql"

	"drydock/internal/domain"
)

const taskCols = `id, project_id, name, COALESCE(description,''), assigned_to, priority, status, is_maintenance,
start_date, due_date, completed_at, created_at, updated_at`

func scanTaskRow(scan func(dest ...any) error) (domain.Task, error) {
	var (
		t                               domain.Task
		assignedTo                      sql.NullString
		startDate, dueDate, completedAt sql.NullString
	)
	err := scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &assignedTo, &t.Priority, &t.Status,
		&t.IsMaintenance, &startDate, &dueDate, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.AssignedTo = strPtr(assignedTo)
	t.StartDate = strPtr(startDate)
	t.DueDate = strPtr(dueDate)
	t.CompletedAt = strPtr(completedAt)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,project_id,name,description,assigned_to,priority,status,is_maintenance,start_date,due_date,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Name, nullable(t.Description), nullableStr(t.AssignedTo), t.Priority, t.Status,
		t.IsMaintenance, nullableStr(t.StartDate), nullableStr(t.DueDate), nullableStr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTaskRow(row.Scan)
}

// TaskFilter narrows ListTasks. A nil ProjectIDs means no project filter; an
// empty non-nil slice matches nothing.
type TaskFilter struct {
	ProjectIDs []string
	AssignedTo string
	Status     string
}

func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks`
	var (
		conds []string
		args  []any
	)
	if f.ProjectIDs != nil {
		if len(f.ProjectIDs) == 0 {
			return nil, nil
		}
		conds = append(conds, `project_id IN (`+placeholders(len(f.ProjectIDs))+`)`)
		for _, id := range f.ProjectIDs {
			args = append(args, id)
		}
	}
	if f.AssignedTo != "" {
		conds = append(conds, `assigned_to=?`)
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		conds = append(conds, `status=?`)
		args = append(args, f.Status)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY created_at`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET name=?, description=?, assigned_to=?, priority=?, status=?, is_maintenance=?, start_date=?, due_date=?, completed_at=?, updated_at=? WHERE id=?`,
		t.Name, nullable(t.Description), nullableStr(t.AssignedTo), t.Priority, t.Status, t.IsMaintenance,
		nullableStr(t.StartDate), nullableStr(t.DueDate), nullableStr(t.CompletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnassignActorTasks clears assignments held by an actor within one project.
// Used when a member is removed from the team, so the assignment invariant
// keeps holding. Returns the ids of the tasks touched.
func (r Repo) UnassignActorTasks(ctx context.Context, tx *sql.Tx, projectID, actorID, now string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id=? AND assigned_to=?`, projectID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET assigned_to=NULL, updated_at=? WHERE id=?`, now, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// CountTasks returns open (non-completed) and completed counts for the given
// scope. A nil projectIDs counts org-wide; assignedTo further narrows.
func (r Repo) CountTasks(ctx context.Context, tx *sql.Tx, projectIDs []string, assignedTo string) (open, completed int, err error) {
	if projectIDs != nil && len(projectIDs) == 0 {
		return 0, 0, nil
	}
	query := `SELECT
  COUNT(CASE WHEN status != 'completed' THEN 1 END),
  COUNT(CASE WHEN status = 'completed' THEN 1 END)
FROM tasks`
	var (
		conds []string
		args  []any
	)
	if projectIDs != nil {
		conds = append(conds, `project_id IN (`+placeholders(len(projectIDs))+`)`)
		for _, id := range projectIDs {
			args = append(args, id)
		}
	}
	if assignedTo != "" {
		conds = append(conds, `assigned_to=?`)
		args = append(args, assignedTo)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	err = r.q(tx).QueryRowContext(ctx, query, args...).Scan(&open, &completed)
	return open, completed, err
}
