package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// ConfigLoader は設定をロードするためのインターフェースです。
type ConfigLoader interface {
	Load() (*Config, error)
}

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

var _ ConfigLoader = (*BytesConfigLoader)(nil)

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := loadYamlConfig(l.data, cfg); err != nil {
		return nil, exception.NewBatchError("config", "YAML設定のパースに失敗しました", err, false, false)
	}
	cfg.EmbeddedConfig = l.data

	// 環境変数で個別の設定値を上書き
	loadEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, exception.NewBatchError("config", "設定が不正です", err, false, false)
	}
	return cfg, nil
}

// FileConfigLoader はファイルから設定をロードする ConfigLoader の実装です。
type FileConfigLoader struct {
	path string
}

var _ ConfigLoader = (*FileConfigLoader)(nil)

// NewFileConfigLoader は新しい FileConfigLoader のインスタンスを作成します。
func NewFileConfigLoader(path string) *FileConfigLoader {
	return &FileConfigLoader{path: path}
}

// Load は設定ファイルを読み込み、BytesConfigLoader と同じ手順でロードします。
func (l *FileConfigLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, exception.NewBatchError("config", fmt.Sprintf("設定ファイル '%s' を読み込めません", l.path), err, false, false)
	}
	return NewBytesConfigLoader(data).Load()
}

// YAMLデータをデフォルト値の入った Config の上にパースする関数
func loadYamlConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	setString("DATABASE_TYPE", &cfg.Database.Type)
	setString("DATABASE_HOST", &cfg.Database.Host)
	setInt("DATABASE_PORT", &cfg.Database.Port)
	setString("DATABASE_DATABASE", &cfg.Database.Database)
	setString("DATABASE_USER", &cfg.Database.User)
	setString("DATABASE_PASSWORD", &cfg.Database.Password)
	setString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	setString("DATABASE_PATH", &cfg.Database.Path)
	setString("DATABASE_ACCOUNT", &cfg.Database.Account)
	setString("DATABASE_WAREHOUSE", &cfg.Database.Warehouse)
	setString("DATABASE_SCHEMA", &cfg.Database.Schema)
	setString("DATABASE_ROLE", &cfg.Database.Role)
	setString("DATABASE_APP_MIGRATION_PATH", &cfg.Database.AppMigrationPath)
	setInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	setInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	setInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)
	setInt("DATABASE_CONNECT_MAX_RETRIES", &cfg.Database.ConnectMaxRetries)
	setInt("DATABASE_CONNECT_RETRY_DELAY_SECONDS", &cfg.Database.ConnectRetryDelaySeconds)

	// Writer 設定
	setString("WRITER_TYPE", &cfg.Writer.Type)
	setString("WRITER_OUTPUT_DIR", &cfg.Writer.OutputDir)
	setString("WRITER_TABLE", &cfg.Writer.Table)

	// Batch 設定
	setInt("BATCH_PARALLELISM", &cfg.Batch.Parallelism)

	// System 設定
	setString("SYSTEM_TIMEZONE", &cfg.System.Timezone)
	setString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
	setBool("SYSTEM_METRICS_ENABLED", &cfg.System.Metrics.Enabled)
	setString("SYSTEM_METRICS_TEXTFILE", &cfg.System.Metrics.Textfile)
	setBool("SYSTEM_TRACING_ENABLED", &cfg.System.Tracing.Enabled)
	setString("SYSTEM_TRACING_ENDPOINT", &cfg.System.Tracing.Endpoint)
	setBool("SYSTEM_TRACING_INSECURE", &cfg.System.Tracing.Insecure)
	setString("SYSTEM_TRACING_SERVICE_NAME", &cfg.System.Tracing.ServiceName)
	setFloat("SYSTEM_TRACING_SAMPLE_RATE", &cfg.System.Tracing.SampleRate)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warnf("警告: %s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, v)
		return
	}
	*dst = n
}

func setBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("警告: %s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, v)
		return
	}
	*dst = b
}

func setFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warnf("警告: %s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。", key, v)
		return
	}
	*dst = f
}
