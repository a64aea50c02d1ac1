package config

import (
	"fmt"
	"net/url"
	"strings"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// sqlite のデータベースファイル (":memory:" も可)
	Path string `yaml:"path"`
	// snowflake 用
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	Role      string `yaml:"role"`
	// 出力テーブルのマイグレーションファイルのパス
	AppMigrationPath string               `yaml:"app_migration_path"`
	ConnectionPool   ConnectionPoolConfig `yaml:"connection_pool"`
	// 接続の試行回数と試行間隔。0 以下は 1 回のみ。
	ConnectMaxRetries        int `yaml:"connect_max_retries"`
	ConnectRetryDelaySeconds int `yaml:"connect_retry_delay_seconds"`
}

// ConnectionString はドライバに渡す接続文字列を返します。
// snowflake の DSN はコネクタ側で組み立てるため空文字列を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:   "/" + c.Database,
		}
		if c.Sslmode != "" {
			u.RawQuery = "sslmode=" + url.QueryEscape(c.Sslmode)
		}
		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "sqlite":
		return c.Path
	default:
		return ""
	}
}

// StepConfig は一つのステップの入力を定義します。
type StepConfig struct {
	ID        uint8  `yaml:"id"`
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
	// 省略時は true
	Processing *bool `yaml:"processing"`
	// 処理の前に適用するフィルタ式 (例: "Age >= 20")
	Filter string `yaml:"filter"`
}

// ProcessingEnabled はバッチ処理段階を実行するかどうかを返します。
func (s StepConfig) ProcessingEnabled() bool {
	return s.Processing == nil || *s.Processing
}

const (
	WriterNone     = "none"
	WriterFile     = "file"
	WriterDatabase = "database"
)

// WriterConfig は処理済みバッチの出力先の設定です。
type WriterConfig struct {
	Type      string `yaml:"type"`
	OutputDir string `yaml:"output_dir"`
	Table     string `yaml:"table"`
}

type BatchConfig struct {
	// 同時に実行するステップ数。0 以下は無制限。
	Parallelism int `yaml:"parallelism"`
}

// LoggingConfig はログ出力の設定です。
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig は実行メトリクスの設定です。
// Textfile を指定すると実行終了時に Prometheus のテキスト形式で書き出します。
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// TracingConfig は OpenTelemetry トレースの設定です。
// Endpoint が空の場合、スパンはプロセス内で破棄されます。
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Tracing  TracingConfig `yaml:"tracing"`
}

type Config struct {
	Steps          []StepConfig   `yaml:"steps"`
	Writer         WriterConfig   `yaml:"writer"`
	Database       DatabaseConfig `yaml:"database"`
	Batch          BatchConfig    `yaml:"batch"`
	System         SystemConfig   `yaml:"system"`
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig は Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		Writer: WriterConfig{Type: WriterNone},
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
			Tracing:  TracingConfig{ServiceName: "itemstep", SampleRate: 1.0},
		},
		Batch: BatchConfig{Parallelism: 0},
	}
}

// Validate は設定の整合性を検証します。
func (c *Config) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("steps が一つも定義されていません")
	}
	seen := make(map[uint8]string, len(c.Steps))
	names := make(map[string]struct{}, len(c.Steps))
	for i, s := range c.Steps {
		if s.Name == "" {
			return fmt.Errorf("steps[%d]: name は必須です", i)
		}
		// name は出力ファイル名とメトリクスのラベルに使われる
		if strings.ContainsAny(s.Name, `/\`) || s.Name == "." || s.Name == ".." {
			return fmt.Errorf("steps[%d]: name '%s' にパス区切り文字は使えません", i, s.Name)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("ステップ名 '%s' が重複しています", s.Name)
		}
		names[s.Name] = struct{}{}
		if s.Path == "" {
			return fmt.Errorf("ステップ '%s': path は必須です", s.Name)
		}
		if s.Delimiter == "" {
			return fmt.Errorf("ステップ '%s': delimiter は必須です", s.Name)
		}
		if other, dup := seen[s.ID]; dup {
			return fmt.Errorf("ステップ '%s' と '%s' の id %d が重複しています", other, s.Name, s.ID)
		}
		seen[s.ID] = s.Name
	}

	if r := c.System.Tracing.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("system.tracing.sample_rate は 0 から 1 の範囲で指定してください: %v", r)
	}

	switch c.Writer.Type {
	case "", WriterNone:
	case WriterFile:
		if c.Writer.OutputDir == "" {
			return fmt.Errorf("writer.type が file の場合 writer.output_dir は必須です")
		}
	case WriterDatabase:
		if c.Writer.Table == "" {
			return fmt.Errorf("writer.type が database の場合 writer.table は必須です")
		}
		if c.Database.Type == "" {
			return fmt.Errorf("writer.type が database の場合 database.type は必須です")
		}
	default:
		return fmt.Errorf("未対応の writer.type です: %s", c.Writer.Type)
	}
	return nil
}
