package connector

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
// 返される *sql.DB はまだ Ping されていません。
type DBConnector interface {
	Connect(cfg config.DatabaseConfig) (*sql.DB, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名でDBConnectorを登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(dbType)
	if _, exists := connectors[key]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", key)
	}
	connectors[key] = connector
}

// Registered は登録済みのデータベースタイプを名前順に返します。
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GetSQLDB は設定に基づいて適切なデータベース接続を確立します。
// 登録されたコネクタの中から適切なものを選択して接続します。
func GetSQLDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	mu.RLock()
	connector, ok := connectors[strings.ToLower(cfg.Type)]
	mu.RUnlock()
	if !ok {
		return nil, exception.NewBatchError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", cfg.Type), nil, false, false)
	}
	return connector.Connect(cfg)
}

// openWithPool は sql.Open を呼び出し、接続プール設定を適用します。
func openWithPool(driverName, dsn, label string, pool config.ConnectionPoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への接続に失敗しました", label), err, false, false)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)

	logger.Debugf("%s の接続を作成しました。MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		label, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
