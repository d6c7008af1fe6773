package scope

import (
	"context"
	"database/sql"

	"drydock/internal/domain"
)

// Resolver answers, for one identity, which rows are visible and which
// mutations are permitted. All visibility reads go through the supplied tx
// when one is given, so aggregation sees a single consistent snapshot.
type Resolver struct {
	DB *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Resolver) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

// VisibleProjects returns the project ids the identity may read. admin sees
// everything, a project_manager sees projects they created, engineer and
// technician see projects they are a team member of.
func (r Resolver) VisibleProjects(ctx context.Context, tx *sql.Tx, id Identity) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch id.Role {
	case RoleAdmin:
		query = `SELECT id FROM projects ORDER BY created_at`
	case RoleProjectManager:
		query = `SELECT id FROM projects WHERE creator_id=? ORDER BY created_at`
		args = append(args, id.ActorID)
	case RoleEngineer, RoleTechnician:
		query = `SELECT p.id FROM projects p JOIN project_members m ON m.project_id=p.id WHERE m.actor_id=? ORDER BY p.created_at`
		args = append(args, id.ActorID)
	default:
		return nil, PermissionDeniedError{Action: "project.read"}
	}
	return r.scanIDs(ctx, tx, query, args...)
}

// ProjectVisible reports whether one project is inside the identity's scope.
func (r Resolver) ProjectVisible(ctx context.Context, tx *sql.Tx, id Identity, projectID string) (bool, error) {
	var (
		query string
		args  []any
	)
	switch id.Role {
	case RoleAdmin:
		query = `SELECT 1 FROM projects WHERE id=? LIMIT 1`
		args = append(args, projectID)
	case RoleProjectManager:
		query = `SELECT 1 FROM projects WHERE id=? AND creator_id=? LIMIT 1`
		args = append(args, projectID, id.ActorID)
	case RoleEngineer, RoleTechnician:
		query = `SELECT 1 FROM project_members WHERE project_id=? AND actor_id=? LIMIT 1`
		args = append(args, projectID, id.ActorID)
	default:
		return false, nil
	}
	var n int
	err := r.q(tx).QueryRowContext(ctx, query, args...).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// VisibleTasks returns the task ids the identity may read, optionally limited
// to one project. For engineer/technician the set is further filtered to
// tasks assigned to the actor; an unassigned task in their own project stays
// invisible to them.
func (r Resolver) VisibleTasks(ctx context.Context, tx *sql.Tx, id Identity, projectFilter string) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch id.Role {
	case RoleAdmin:
		query = `SELECT id FROM tasks`
		if projectFilter != "" {
			query += ` WHERE project_id=?`
			args = append(args, projectFilter)
		}
	case RoleProjectManager:
		query = `SELECT t.id FROM tasks t JOIN projects p ON p.id=t.project_id WHERE p.creator_id=?`
		args = append(args, id.ActorID)
		if projectFilter != "" {
			query += ` AND t.project_id=?`
			args = append(args, projectFilter)
		}
	case RoleEngineer, RoleTechnician:
		query = `SELECT t.id FROM tasks t JOIN project_members m ON m.project_id=t.project_id AND m.actor_id=? WHERE t.assigned_to=?`
		args = append(args, id.ActorID, id.ActorID)
		if projectFilter != "" {
			query += ` AND t.project_id=?`
			args = append(args, projectFilter)
		}
	default:
		return nil, PermissionDeniedError{Action: "task.read"}
	}
	query += ` ORDER BY created_at`
	return r.scanIDs(ctx, tx, query, args...)
}

// IsMember reports whether an actor is on a project's team.
func (r Resolver) IsMember(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx,
		`SELECT 1 FROM project_members WHERE project_id=? AND actor_id=? LIMIT 1`,
		projectID, actorID).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CanMutateProject decides whether the identity may mutate a project row.
// Admin always may; a project_manager only on projects they created.
func (r Resolver) CanMutateProject(id Identity, p domain.Project) error {
	switch id.Role {
	case RoleAdmin:
		return nil
	case RoleProjectManager:
		if p.CreatorID == id.ActorID {
			return nil
		}
		return PermissionDeniedError{Action: "project.write"}
	default:
		return PermissionDeniedError{Action: "project.write"}
	}
}

// CanMutateInventory decides inventory mutation rights. Inventory is visible
// org-wide to every role but only admin/project_manager may change it.
func (r Resolver) CanMutateInventory(id Identity) error {
	if id.Manages() {
		return nil
	}
	return PermissionDeniedError{Action: "inventory.write"}
}

// TaskChange describes the parts of a task an update touches, which is all
// the resolver needs to authorize it.
type TaskChange struct {
	Status      *string
	OtherFields bool
}

// CanMutateTask authorizes a task mutation. The state machine is checked
// before role rules so that even an admin cannot move a task out of
// completed. engineer/technician may only change status, only on tasks
// assigned to them.
func (r Resolver) CanMutateTask(id Identity, p domain.Project, t domain.Task, change TaskChange) error {
	if change.Status != nil {
		if err := EnsureTaskTransition(t.Status, *change.Status); err != nil {
			return err
		}
	}
	switch id.Role {
	case RoleAdmin:
		return nil
	case RoleProjectManager:
		if p.CreatorID == id.ActorID {
			return nil
		}
		return PermissionDeniedError{Action: "task.write"}
	case RoleEngineer, RoleTechnician:
		if change.OtherFields || change.Status == nil {
			return PermissionDeniedError{Action: "task.write"}
		}
		if t.AssignedTo == nil || *t.AssignedTo != id.ActorID {
			return PermissionDeniedError{Action: "task.status"}
		}
		return nil
	default:
		return PermissionDeniedError{Action: "task.write"}
	}
}

func (r Resolver) scanIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
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
	return ids, rows.Err()
}
