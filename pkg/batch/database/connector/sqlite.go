package connector

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite ドライバ (cgo 不要)

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/util/exception"
)

// sqliteConnector はSQLiteファイルへの接続を確立するDBConnectorの実装です。
type sqliteConnector struct{}

func (c *sqliteConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, exception.NewBatchErrorf("database", "sqlite の場合 database.path は必須です")
	}
	db, err := openWithPool("sqlite", cfg.Path, "SQLite", cfg.ConnectionPool)
	if err != nil {
		return nil, err
	}
	// 書き込みは単一接続に直列化する。":memory:" は接続ごとに別のデータベースになる。
	db.SetMaxOpenConns(1)
	return db, nil
}

func init() {
	RegisterConnector("sqlite", &sqliteConnector{})
}
