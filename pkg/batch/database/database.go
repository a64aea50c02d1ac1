package database

import (
	"context"
	"database/sql"
	"strings"

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/database/connector"
	"itemstep/pkg/batch/util/exception"
)

// sqlTxAdapter は sql.Tx を database.Tx インターフェースに適合させるアダプターです。
type sqlTxAdapter struct {
	*sql.Tx
}

var _ Tx = (*sqlTxAdapter)(nil)

// sqlDBAdapter は sql.DB を database.DBConnection インターフェースに適合させるアダプターです。
type sqlDBAdapter struct {
	db      *sql.DB
	dialect string
}

var _ DBConnection = (*sqlDBAdapter)(nil)

// NewSQLDBAdapter は新しい sqlDBAdapter のインスタンスを作成します。
func NewSQLDBAdapter(db *sql.DB, dialect string) DBConnection {
	return &sqlDBAdapter{db: db, dialect: strings.ToLower(dialect)}
}

// BeginTx は sql.DB の BeginTx メソッドを呼び出し、結果を database.Tx でラップします。
func (a *sqlDBAdapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := a.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTxAdapter{tx}, nil
}

func (a *sqlDBAdapter) Close() error {
	return a.db.Close()
}

func (a *sqlDBAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *sqlDBAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, query, args...)
}

func (a *sqlDBAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, query, args...)
}

func (a *sqlDBAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, query, args...)
}

func (a *sqlDBAdapter) Dialect() string {
	return a.dialect
}

// NewDBConnectionFromConfig は設定に基づいて適切なデータベース接続を確立します。
// 登録されたコネクタの中から適切なものを選択して接続します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (DBConnection, error) {
	rawDB, err := connector.GetSQLDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, exception.NewBatchError("database", "データベースへのPingに失敗しました", err, true, false)
	}
	return NewSQLDBAdapter(rawDB, cfg.Type), nil
}
