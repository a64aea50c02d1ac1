package app

import (
	"context"
	"errors"
	"path/filepath"

	godotenv "github.com/joho/godotenv"

	"itemstep/example/users/domain/entity"
	userprocessor "itemstep/example/users/step/processor"
	"itemstep/pkg/batch/config"
	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/database"
	"itemstep/pkg/batch/initializer"
	"itemstep/pkg/batch/job"
	"itemstep/pkg/batch/step"
	"itemstep/pkg/batch/step/processor"
	"itemstep/pkg/batch/step/reader"
	"itemstep/pkg/batch/step/writer"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

var _ job.Runner = (*step.Step[entity.User])(nil)

// Options はコマンドラインから渡される実行オプションです。
type Options struct {
	EnvFilePath    string
	ConfigPath     string // 空の場合は EmbeddedConfig を使用
	EmbeddedConfig []byte
}

// RunApplication は設定に従ってステップを実行し、終了コードを返します。
// いずれかのステップが KO で終了した場合は 1 を返します。
func RunApplication(ctx context.Context, opts Options) int {
	cfg, err := LoadConfig(opts)
	if err != nil {
		logger.Errorf("設定のロードに失敗しました: %v", err)
		return 1
	}

	bi := initializer.NewBatchInitializer(cfg)
	defer func() {
		if err := bi.Close(); err != nil {
			logger.Warnf("リソースの解放中にエラーが発生しました: %v", err)
		}
	}()
	if err := bi.Initialize(ctx); err != nil {
		logger.Errorf("バッチの初期化に失敗しました: %v", err)
		return 1
	}

	steps, err := BuildSteps(cfg, bi.Conn, bi.Listeners...)
	if err != nil {
		logger.Errorf("ステップの構築に失敗しました: %v", err)
		return 1
	}

	runners := make([]job.Runner, len(steps))
	for i, s := range steps {
		runners[i] = s
	}
	runErr := job.RunParallel(ctx, cfg.Batch.Parallelism, runners...)
	bi.Finish()

	return exitCode(steps, runErr)
}

// BuildSteps は設定の steps ごとに Step を組み立てます。
// conn は writer.type が database の場合にのみ使用されます。
func BuildSteps(cfg *config.Config, conn database.DBConnection, listeners ...core.StepExecutionListener) ([]*step.Step[entity.User], error) {
	steps := make([]*step.Step[entity.User], 0, len(cfg.Steps))
	for _, sc := range cfg.Steps {
		r, err := reader.NewSchemaItemReader[entity.User]()
		if err != nil {
			return nil, err
		}
		p, err := newProcessor(sc)
		if err != nil {
			return nil, err
		}
		s := step.NewStep[entity.User](sc.ID, sc.Name, sc.Path, sc.Delimiter).
			SetReader(r).
			SetProcessor(p).
			SetProcessingEnabled(sc.ProcessingEnabled())

		w, err := newWriter(cfg, sc, conn)
		if err != nil {
			return nil, err
		}
		if w != nil {
			s.SetWriter(w)
		}
		for _, l := range listeners {
			s.RegisterListener(l)
		}
		steps = append(steps, s)
	}
	logger.Debugf("%d 個のステップを構築しました。", len(steps))
	return steps, nil
}

// newProcessor は filter が指定されていればフィルタ式を大文字化の前に適用します。
func newProcessor(sc config.StepConfig) (core.BatchProcessor[entity.User], error) {
	if sc.Filter == "" {
		return userprocessor.NewUserProcessor(), nil
	}
	filter, err := processor.FilterExpr[entity.User](sc.Filter)
	if err != nil {
		return nil, err
	}
	return processor.Chain(filter, userprocessor.NewUserProcessor()), nil
}

func newWriter(cfg *config.Config, sc config.StepConfig, conn database.DBConnection) (core.ItemWriter[entity.User], error) {
	switch cfg.Writer.Type {
	case config.WriterFile:
		w, err := writer.NewDelimitedFileWriter[entity.User](filepath.Join(cfg.Writer.OutputDir, sc.Name+".txt"), sc.Delimiter)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.WriterDatabase:
		if conn == nil {
			return nil, exception.NewBatchErrorf("app", "writer.type が database ですが接続がありません")
		}
		w, err := writer.NewSQLItemWriter[entity.User](conn, cfg.Writer.Table)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, nil
	}
}

func loadEnvFile(envFilePath string) {
	if envFilePath == "" {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
		return
	}
	if err := godotenv.Load(envFilePath); err != nil {
		logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", envFilePath, err)
		return
	}
	logger.Infof(".env ファイル '%s' をロードしました。", envFilePath)
}

// LoadConfig は .env を読み込んだうえで設定をロードします。
func LoadConfig(opts Options) (*config.Config, error) {
	loadEnvFile(opts.EnvFilePath)

	var loader config.ConfigLoader
	if opts.ConfigPath != "" {
		loader = config.NewFileConfigLoader(opts.ConfigPath)
	} else {
		loader = config.NewBytesConfigLoader(opts.EmbeddedConfig)
	}
	return loader.Load()
}

// exitCode はすべてのステップの最終状態から終了コードを決めます。
func exitCode(steps []*step.Step[entity.User], runErr error) int {
	code := 0
	for _, s := range steps {
		if s.Status() == core.StatusKO {
			logger.Errorf("ステップ '%s' (ID: %d) は KO で終了しました。", s.Name(), s.ID())
			code = 1
		}
	}
	if runErr != nil {
		var be *exception.BatchError
		if errors.As(runErr, &be) {
			logger.Debugf("エラーの発生元モジュール: %s", be.Module)
		}
		code = 1
	}
	return code
}
