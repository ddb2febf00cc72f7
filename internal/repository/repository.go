package repository

import (
	"context"
	"database/sql"
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. Repositories run against
// it so a service can compose several repository calls inside one transaction
// (order placement must write the order, the stock reservation and the coupon
// counter atomically).
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
