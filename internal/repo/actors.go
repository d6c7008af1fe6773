package repo

import (
	"context"
	"database/sql"

	"drydock/internal/domain"
)

const actorCols = `id, username, COALESCE(full_name,''), role, active, created_at`

func scanActor(row *sql.Row) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Username, &a.FullName, &a.Role, &a.Active, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id,username,full_name,role,active,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Username, nullable(a.FullName), a.Role, a.Active, a.CreatedAt)
	return err
}

// EnsureActor inserts an actor row if missing. Used when identities arrive
// from the auth collaborator before any local record exists.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,username,full_name,role,active,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Username, nullable(a.FullName), a.Role, a.Active, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(r.q(tx).QueryRowContext(ctx, `SELECT `+actorCols+` FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorByUsername(ctx context.Context, username string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT `+actorCols+` FROM actors WHERE username=?`, username))
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actorCols+` FROM actors ORDER BY username`)
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

func (r Repo) SetActorRole(ctx context.Context, id, role string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE actors SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
