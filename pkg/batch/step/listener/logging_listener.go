package listener

import (
	"context"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/util/logger"
)

// LoggingListener はステップの開始と終了をログ出力する StepExecutionListener の実装です。
type LoggingListener struct{}

// NewLoggingListener は新しい LoggingListener のインスタンスを作成します。
func NewLoggingListener() *LoggingListener {
	return &LoggingListener{}
}

// BeforeStep はステップの実行前に呼び出されます。
func (l *LoggingListener) BeforeStep(ctx context.Context, se *core.StepExecution) {
	logger.WithField("execution_id", se.ID).Infof("ステップ '%s' (ID: %d) を開始します。", se.StepName, se.StepID)
}

// AfterStep はステップの実行後に呼び出されます。
func (l *LoggingListener) AfterStep(ctx context.Context, se *core.StepExecution) {
	entry := logger.WithField("execution_id", se.ID).
		WithField("status", string(se.Status)).
		WithField("last_stage", string(se.LastStage)).
		WithField("duration", se.Duration().String())

	if len(se.SkippedLines) > 0 {
		entry.Warnf("ステップ '%s': デコードできなかった行: %v", se.StepName, se.SkippedLines)
	}
	if se.Status == core.StatusKO {
		for _, f := range se.Failures {
			entry.Errorf("ステップ '%s' のエラー: %v", se.StepName, f)
		}
		return
	}
	entry.Infof("ステップ '%s' が終了しました。読み込み: %d, 空行: %d, スキップ: %d, 除外: %d, 書き込み: %d",
		se.StepName, se.ReadCount, se.BlankCount, se.SkipReadCount, se.FilterCount, se.WriteCount)
}

var _ core.StepExecutionListener = (*LoggingListener)(nil)
