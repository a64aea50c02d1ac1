package connector

import (
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ

	"itemstep/pkg/batch/config"
)

// mysqlConnector はMySQLデータベースへの接続を確立するDBConnectorの実装です。
type mysqlConnector struct{}

func (c *mysqlConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return openWithPool("mysql", cfg.ConnectionString(), "MySQL", cfg.ConnectionPool)
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
