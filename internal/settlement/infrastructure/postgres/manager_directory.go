package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const defaultStoresTable = "stores"

// ManagerDirectory resolves the responsible manager for a store from the
// stores table.
type ManagerDirectory struct {
	db    *sql.DB
	table string
}

// ManagerDirectoryOption configures the directory.
type ManagerDirectoryOption func(*ManagerDirectory)

// WithStoresTable overrides the stores table name.
func WithStoresTable(table string) ManagerDirectoryOption {
	return func(d *ManagerDirectory) {
		if table != "" {
			d.table = table
		}
	}
}

// NewManagerDirectory constructs a directory.
func NewManagerDirectory(db *sql.DB, opts ...ManagerDirectoryOption) *ManagerDirectory {
	directory := &ManagerDirectory{db: db, table: defaultStoresTable}
	for _, opt := range opts {
		opt(directory)
	}
	return directory
}

// ManagerFor returns the manager staff id for a store. An unknown store or a
// store without a manager yields an empty id and no error; the caller skips
// the penalty in that case.
func (d *ManagerDirectory) ManagerFor(ctx context.Context, storeID int) (string, error) {
	query := fmt.Sprintf(`SELECT COALESCE(manager_staff_id, '') FROM %s WHERE id = $1`, d.table)
	var managerID string
	err := d.db.QueryRowContext(ctx, query, storeID).Scan(&managerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("manager directory: %w", err)
	}
	return managerID, nil
}
