package connector

import (
	"database/sql"

	"github.com/snowflakedb/gosnowflake"

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/util/exception"
)

// snowflakeConnector はSnowflakeへの接続を確立するDBConnectorの実装です。
type snowflakeConnector struct{}

func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := SnowflakeDSN(cfg)
	if err != nil {
		return nil, err
	}
	return openWithPool("snowflake", dsn, "Snowflake", cfg.ConnectionPool)
}

// SnowflakeDSN は設定から gosnowflake の DSN を組み立てます。
func SnowflakeDSN(cfg config.DatabaseConfig) (string, error) {
	sfCfg := &gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	}
	if cfg.Host != "" {
		sfCfg.Host = cfg.Host
		sfCfg.Port = cfg.Port
	}
	dsn, err := gosnowflake.DSN(sfCfg)
	if err != nil {
		return "", exception.NewBatchError("database", "Snowflake の DSN を作成できません", err, false, false)
	}
	return dsn, nil
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
