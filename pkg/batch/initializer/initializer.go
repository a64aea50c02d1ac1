package initializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/database"
	"itemstep/pkg/batch/step/listener"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
	"itemstep/pkg/batch/util/tracing"
)

// BatchInitializer はステップ実行前の環境の準備と後片付けを担当します。
type BatchInitializer struct {
	Config         *config.Config
	Conn           database.DBConnection // writer.type が database の場合のみ
	Metrics        *listener.MetricsListener
	TracerProvider *sdktrace.TracerProvider
	Listeners      []core.StepExecutionListener
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{Config: cfg}
}

// Initialize はロギング・タイムゾーン・データベース・リスナーを設定に従って準備します。
// 失敗した場合も、それまでに確保したリソースは Close で解放できます。
func (bi *BatchInitializer) Initialize(ctx context.Context) error {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")
	cfg := bi.Config

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Debugf("ロギングレベルを '%s' に設定しました。", cfg.System.Logging.Level)
	applyTimezone(cfg.System.Timezone)

	if cfg.Writer.Type == config.WriterDatabase {
		if err := database.RunMigrations(cfg.Database); err != nil {
			return exception.NewBatchError("initializer", "アプリケーションのマイグレーションに失敗しました", err, false, false)
		}
		conn, err := connectWithRetry(ctx, cfg.Database)
		if err != nil {
			return exception.NewBatchError("initializer", "データベースへの接続に失敗しました", err, true, false)
		}
		bi.Conn = conn
	}

	bi.Listeners = []core.StepExecutionListener{listener.NewLoggingListener()}
	if cfg.System.Metrics.Enabled {
		bi.Metrics = listener.NewMetricsListener()
		bi.Listeners = append(bi.Listeners, bi.Metrics)
	}
	if cfg.System.Tracing.Enabled {
		tp, err := tracing.NewProvider(ctx, cfg.System.Tracing)
		if err != nil {
			return err
		}
		bi.TracerProvider = tp
		bi.Listeners = append(bi.Listeners, listener.NewTracingListener(tp))
	}
	logger.Debugf("%d 個のリスナーを準備しました。", len(bi.Listeners))
	return nil
}

// connectWithRetry は指定されたデータベースにリトライ付きで接続を試みます。
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	attempts := max(cfg.ConnectMaxRetries, 1)
	delay := time.Duration(cfg.ConnectRetryDelaySeconds) * time.Second

	var err error
	for i := 0; i < attempts; i++ {
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", i+1, attempts)
		var conn database.DBConnection
		conn, err = database.NewDBConnectionFromConfig(ctx, cfg)
		if err == nil {
			logger.Infof("データベース接続に成功しました。")
			return conn, nil
		}
		logger.Warnf("データベースへの接続に失敗しました: %v", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("データベースへの接続に最大試行回数 (%d) 失敗しました: %w", attempts, err)
}

func applyTimezone(tz string) {
	if tz == "" {
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warnf("タイムゾーン '%s' を読み込めません。システムの設定を使用します: %v", tz, err)
		return
	}
	time.Local = loc
}

// Finish は実行後の成果物を書き出します。現在はメトリクスのテキストファイルのみです。
func (bi *BatchInitializer) Finish() {
	path := bi.Config.System.Metrics.Textfile
	if bi.Metrics == nil || path == "" {
		return
	}
	if err := bi.Metrics.WriteToTextfile(path); err != nil {
		logger.Warnf("メトリクスの書き出しに失敗しました: %v", err)
		return
	}
	logger.Infof("メトリクスを '%s' に書き出しました。", path)
}

// Close は BatchInitializer が保持するリソースを解放します。
func (bi *BatchInitializer) Close() error {
	var errs []error
	if bi.TracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bi.TracerProvider.Shutdown(ctx); err != nil {
			logger.Errorf("TracerProvider のシャットダウンに失敗しました: %v", err)
			errs = append(errs, err)
		}
	}
	if bi.Conn != nil {
		if err := bi.Conn.Close(); err != nil {
			logger.Errorf("データベース接続のクローズに失敗しました: %v", err)
			errs = append(errs, err)
		} else {
			logger.Debugf("データベース接続を閉じました。")
		}
	}
	return errors.Join(errs...)
}
