package repo

import (
	"context"
	"database/sql"

	"drydock/internal/domain"
)

const inventoryCols = `id, name, COALESCE(category,''), COALESCE(description,''), quantity, COALESCE(unit,''),
unit_price, reorder_level, COALESCE(supplier,''), COALESCE(location,''), created_at, updated_at`

func scanInventoryRow(scan func(dest ...any) error) (domain.InventoryItem, error) {
	var (
		it        domain.InventoryItem
		unitPrice sql.NullFloat64
	)
	err := scan(&it.ID, &it.Name, &it.Category, &it.Description, &it.Quantity, &it.Unit,
		&unitPrice, &it.ReorderLevel, &it.Supplier, &it.Location, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.UnitPrice = floatPtr(unitPrice)
	return it, nil
}

func (r Repo) InsertInventoryItem(ctx context.Context, tx *sql.Tx, it domain.InventoryItem) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO inventory(id,name,category,description,quantity,unit,unit_price,reorder_level,supplier,location,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Name, nullable(it.Category), nullable(it.Description), it.Quantity, nullable(it.Unit),
		nullableFloat(it.UnitPrice), it.ReorderLevel, nullable(it.Supplier), nullable(it.Location), it.CreatedAt, it.UpdatedAt)
	return err
}

func (r Repo) GetInventoryItem(ctx context.Context, tx *sql.Tx, id string) (domain.InventoryItem, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+inventoryCols+` FROM inventory WHERE id=?`, id)
	return scanInventoryRow(row.Scan)
}

// ListInventory returns inventory org-wide; lowStockOnly keeps rows where
// quantity <= reorder_level.
func (r Repo) ListInventory(ctx context.Context, tx *sql.Tx, lowStockOnly bool) ([]domain.InventoryItem, error) {
	query := `SELECT ` + inventoryCols + ` FROM inventory`
	if lowStockOnly {
		query += ` WHERE quantity <= reorder_level`
	}
	query += ` ORDER BY name`
	rows, err := r.q(tx).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.InventoryItem
	for rows.Next() {
		it, err := scanInventoryRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r Repo) UpdateInventoryItem(ctx context.Context, tx *sql.Tx, it domain.InventoryItem) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE inventory SET name=?, category=?, description=?, quantity=?, unit=?, unit_price=?, reorder_level=?, supplier=?, location=?, updated_at=? WHERE id=?`,
		it.Name, nullable(it.Category), nullable(it.Description), it.Quantity, nullable(it.Unit),
		nullableFloat(it.UnitPrice), it.ReorderLevel, nullable(it.Supplier), nullable(it.Location), it.UpdatedAt, it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInventoryItem(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM inventory WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountInventory(ctx context.Context, tx *sql.Tx) (total, lowStock int, err error) {
	err = r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*), COUNT(CASE WHEN quantity <= reorder_level THEN 1 END) FROM inventory`).Scan(&total, &lowStock)
	return total, lowStock, err
}

func (r Repo) InsertStockTransaction(ctx context.Context, tx *sql.Tx, st domain.StockTransaction) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO stock_transactions(id,item_id,project_id,kind,quantity,performed_by,notes,ts) VALUES (?,?,?,?,?,?,?,?)`,
		st.ID, st.ItemID, nullableStr(st.ProjectID), st.Kind, st.Quantity, st.PerformedBy, nullable(st.Notes), st.TS)
	return err
}

func (r Repo) ListStockTransactions(ctx context.Context, itemID string) ([]domain.StockTransaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, item_id, project_id, kind, quantity, performed_by, COALESCE(notes,''), ts
FROM stock_transactions WHERE item_id=? ORDER BY ts DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StockTransaction
	for rows.Next() {
		var (
			st        domain.StockTransaction
			projectID sql.NullString
		)
		if err := rows.Scan(&st.ID, &st.ItemID, &projectID, &st.Kind, &st.Quantity, &st.PerformedBy, &st.Notes, &st.TS); err != nil {
			return nil, err
		}
		st.ProjectID = strPtr(projectID)
		out = append(out, st)
	}
	return out, rows.Err()
}
