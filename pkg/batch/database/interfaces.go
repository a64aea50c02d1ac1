package database

import (
	"context"
	"database/sql"
)

// Tx はデータベーストランザクションのインターフェースです。
// sql.Tx の必要なメソッドを抽象化します。
type Tx interface {
	Commit() error
	Rollback() error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DBConnection はデータベース接続のインターフェースです。
// sql.DB の必要なメソッドを抽象化します。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	// Dialect は接続先のデータベースタイプ ("postgres", "mysql" など) を返します。
	Dialect() string
}
