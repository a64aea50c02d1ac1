package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"itemstep/pkg/batch/config"
)

// postgresConnector はPostgreSQLデータベースへの接続を確立するDBConnectorの実装です。
type postgresConnector struct{}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return openWithPool("postgres", cfg.ConnectionString(), "PostgreSQL", cfg.ConnectionPool)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
