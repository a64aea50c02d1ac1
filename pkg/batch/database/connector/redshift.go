package connector

import (
	"database/sql"

	_ "github.com/lib/pq" // Redshift は PostgreSQL と互換性があるため、pq ドライバを使用

	"itemstep/pkg/batch/config"
)

// redshiftConnector はRedshiftデータベースへの接続を確立するDBConnectorの実装です。
type redshiftConnector struct{}

func (c *redshiftConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return openWithPool("postgres", cfg.ConnectionString(), "Redshift", cfg.ConnectionPool)
}

func init() {
	RegisterConnector("redshift", &redshiftConnector{})
}
