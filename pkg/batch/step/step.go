package step

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

var (
	ErrProcessorNotBound  = errors.New("処理が有効ですが BatchProcessor が設定されていません")
	ErrStepAlreadyRunning = errors.New("ステップは既に実行中です")
	ErrBatchGrown         = errors.New("処理後のバッチが入力より長くなっています")
	ErrBatchReplaced      = errors.New("処理後のバッチが入力と別の配列を指しています")
	ErrNilReadResult      = errors.New("ItemReader がエラーなしで nil の結果を返しました")
)

// Step は区切り文字付きファイルを T のバッチとして読み込み、
// 必要に応じてバッチ全体を処理・書き出しする単一段階のステップです。
//
// 状態は STARTING -> READING -> PROCESSING -> WRITING -> OK/KO の順にのみ進みます。
// Run のたびに新しい StepExecution が作られ、前回のバッチは破棄されます。
type Step[T any] struct {
	id        uint8
	name      string
	path      string
	delimiter string

	mu                sync.RWMutex
	reader            core.ItemReader[T]
	processor         core.BatchProcessor[T]
	processingEnabled bool
	writer            core.ItemWriter[T]
	listeners         []core.StepExecutionListener
	execution         *core.StepExecution
	items             []T

	running atomic.Bool
}

// NewStep は STARTING 状態の新しいステップを作成します。
func NewStep[T any](id uint8, name, path, delimiter string) *Step[T] {
	return &Step[T]{
		id:        id,
		name:      name,
		path:      path,
		delimiter: delimiter,
		execution: core.NewStepExecution(id, name),
	}
}

// SetReader はバッチを読み込む ItemReader を設定します。
func (s *Step[T]) SetReader(r core.ItemReader[T]) *Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = r
	return s
}

// SetProcessor は BatchProcessor を設定し、処理段階を有効にします。
func (s *Step[T]) SetProcessor(p core.BatchProcessor[T]) *Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processor = p
	s.processingEnabled = p != nil
	return s
}

// SetProcessingEnabled は処理段階を実行するかどうかを切り替えます。
func (s *Step[T]) SetProcessingEnabled(enabled bool) *Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processingEnabled = enabled
	return s
}

// SetWriter は処理済みのバッチを書き出す ItemWriter を設定します。
// 設定されていない場合、WRITING 段階には入りません。
func (s *Step[T]) SetWriter(w core.ItemWriter[T]) *Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
	return s
}

// RegisterListener は StepExecutionListener を登録します。
func (s *Step[T]) RegisterListener(l core.StepExecutionListener) *Step[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	return s
}

func (s *Step[T]) ID() uint8 {
	return s.id
}

func (s *Step[T]) Name() string {
	return s.name
}

// Status は現在の状態を返します。
func (s *Step[T]) Status() core.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execution.Status
}

// LastStage は終端状態を除いて最後に入った段階を返します。
func (s *Step[T]) LastStage() core.StepStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execution.LastStage
}

// Items は現在のバッチを返します。返されたスライスはステップと共有されます。
func (s *Step[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Execution は現在の StepExecution のコピーを返します。
func (s *Step[T]) Execution() *core.StepExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se := *s.execution
	se.History = append([]core.StepStatus(nil), s.execution.History...)
	se.SkippedLines = append([]int(nil), s.execution.SkippedLines...)
	se.Failures = append([]error(nil), s.execution.Failures...)
	return &se
}

// Run はステップを一度実行します。
// ItemReader が設定されていない場合は STARTING のまま何もせずに nil を返します。
// いずれかの段階で失敗した場合は KO で終了し、そのエラーを返します。
func (s *Step[T]) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return exception.NewBatchError("step", fmt.Sprintf("ステップ '%s' (ID: %d) は実行中です", s.name, s.id), ErrStepAlreadyRunning, false, false)
	}
	defer s.running.Store(false)

	exec := core.NewStepExecution(s.id, s.name)
	s.mu.Lock()
	s.execution = exec
	s.items = nil
	reader, processor, enabled, writer := s.reader, s.processor, s.processingEnabled, s.writer
	listeners := append([]core.StepExecutionListener(nil), s.listeners...)
	s.mu.Unlock()

	if reader == nil {
		logger.Infof("ステップ '%s' には ItemReader が設定されていないため、実行をスキップします。", s.name)
		return nil
	}
	if enabled && processor == nil {
		return s.fail(exec, exception.NewBatchError("step", fmt.Sprintf("ステップ '%s' を実行できません", s.name), ErrProcessorNotBound, false, false))
	}

	logger.Infof("ステップ '%s' (ID: %d) の実行を開始します。入力: %s", s.name, s.id, s.path)
	for _, l := range listeners {
		l.BeforeStep(ctx, exec)
	}
	defer func() {
		for _, l := range listeners {
			l.AfterStep(ctx, exec)
		}
		logger.Infof("ステップ '%s' の実行が完了しました。ステータス: %s, 最終段階: %s, 読み込み: %d, スキップ: %d, 除外: %d, 書き込み: %d",
			s.name, exec.Status, exec.LastStage, exec.ReadCount, exec.SkipReadCount, exec.FilterCount, exec.WriteCount)
	}()

	// Read
	if err := s.transition(exec, core.StatusReading); err != nil {
		return s.fail(exec, err)
	}
	result, err := reader.Read(ctx, s.path, s.delimiter)
	if err != nil {
		return s.fail(exec, err)
	}
	if result == nil {
		return s.fail(exec, exception.NewBatchError("step", fmt.Sprintf("ステップ '%s' の読み込み結果が不正です", s.name), ErrNilReadResult, false, false))
	}
	s.mu.Lock()
	s.items = result.Items
	exec.ReadCount = len(result.Items)
	exec.BlankCount = result.BlankCount
	exec.SkipReadCount = result.SkipCount()
	exec.SkippedLines = result.SkippedLines
	s.mu.Unlock()
	if result.SkipCount() > 0 {
		logger.Warnf("ステップ '%s': デコードできなかった %d 行をスキップしました。行番号: %v", s.name, result.SkipCount(), result.SkippedLines)
	}

	items := result.Items

	// Process
	if enabled {
		if err := s.transition(exec, core.StatusProcessing); err != nil {
			return s.fail(exec, err)
		}
		processed, err := processor.Process(ctx, items)
		if err != nil {
			return s.fail(exec, err)
		}
		if err := checkProcessed(items, processed); err != nil {
			return s.fail(exec, exception.NewBatchError("step", fmt.Sprintf("ステップ '%s' の処理結果が不正です", s.name), err, false, false))
		}
		items = processed
		s.mu.Lock()
		s.items = items
		exec.FilterCount = exec.ReadCount - len(items)
		s.mu.Unlock()
	}

	// Write
	if writer != nil {
		if err := s.transition(exec, core.StatusWriting); err != nil {
			return s.fail(exec, err)
		}
		if err := writer.Write(ctx, items); err != nil {
			return s.fail(exec, err)
		}
		s.mu.Lock()
		exec.WriteCount = len(items)
		s.mu.Unlock()
	}

	s.mu.Lock()
	err = exec.MarkAsOK()
	s.mu.Unlock()
	return err
}

func (s *Step[T]) transition(exec *core.StepExecution, next core.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := exec.TransitionTo(next); err != nil {
		return exception.NewBatchError("step", "状態遷移に失敗しました", err, false, false)
	}
	logger.Debugf("ステップ '%s' の状態: %s", s.name, next)
	return nil
}

// fail は実行を KO で終了し、原因のエラーを返します。
func (s *Step[T]) fail(exec *core.StepExecution, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := exec.MarkAsKO(cause); err != nil {
		logger.Errorf("ステップ '%s' を KO にできませんでした: %v", s.name, err)
	}
	logger.Errorf("ステップ '%s' が %s 段階で失敗しました: %v", s.name, exec.LastStage, cause)
	return cause
}

// checkProcessed は処理後のバッチが入力と同じ配列の先頭部分であることを確認します。
func checkProcessed[T any](before, after []T) error {
	if len(after) > len(before) {
		return fmt.Errorf("%w: %d -> %d", ErrBatchGrown, len(before), len(after))
	}
	if len(after) > 0 && &after[0] != &before[0] {
		return ErrBatchReplaced
	}
	return nil
}
