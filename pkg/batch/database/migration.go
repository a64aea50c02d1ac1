package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"   // SQLite (modernc) ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/source/file"       // ファイルソースドライバを登録

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// MigrationsTable はマイグレーション履歴を記録するテーブル名です。
const MigrationsTable = "itemstep_schema_migrations"

// RunMigrations は cfg.AppMigrationPath のマイグレーションを適用します。
// パスが空の場合は何もしません。
func RunMigrations(cfg config.DatabaseConfig) error {
	if cfg.AppMigrationPath == "" {
		logger.Infof("マイグレーションパスが指定されていません。スキップします。")
		return nil
	}

	databaseURL, err := migrationURL(cfg)
	if err != nil {
		return err
	}

	sourcePath, err := filepath.Abs(cfg.AppMigrationPath)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("マイグレーションパスを解決できません: %s", cfg.AppMigrationPath), err, false, false)
	}

	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", cfg.Type, sourcePath)
	m, err := migrate.New("file://"+filepath.ToSlash(sourcePath), databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer m.Close()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}

// migrationURL は golang-migrate/migrate が期待するデータベースURL形式に調整します。
func migrationURL(cfg config.DatabaseConfig) (string, error) {
	var databaseURL string
	switch strings.ToLower(cfg.Type) {
	case "postgres", "redshift":
		databaseURL = cfg.ConnectionString()
	case "mysql":
		databaseURL = "mysql://" + cfg.ConnectionString()
	case "sqlite":
		databaseURL = "sqlite://" + cfg.Path
	default:
		return "", exception.NewBatchErrorf("migration", "サポートされていないデータベースタイプ: %s", cfg.Type)
	}
	if strings.Contains(databaseURL, "?") {
		databaseURL += "&"
	} else {
		databaseURL += "?"
	}
	return databaseURL + "x-migrations-table=" + MigrationsTable, nil
}
