package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReadResult は 1 回の読み込みで得られたバッチと行単位の集計です。
type ReadResult[T any] struct {
	Items        []T   // デコードに成功したレコード (ファイルの行順)
	LineCount    int   // ヘッダーを除いたデータ行の数 (空行を含む)
	BlankCount   int   // 空行または空白のみの行の数
	SkippedLines []int // デコードに失敗した行の番号 (1 始まり)
}

// SkipCount はデコードに失敗してスキップされた行数を返します。
func (r *ReadResult[T]) SkipCount() int {
	return len(r.SkippedLines)
}

// StepExecution はステップの単一の実行インスタンスを表す構造体です。
// Run のたびに新しく作られ、前回の実行結果は破棄されます。
type StepExecution struct {
	ID            string
	StepID        uint8
	StepName      string
	Status        StepStatus
	LastStage     StepStatus   // 最後に入った READING / PROCESSING / WRITING
	History       []StepStatus // 通過した状態の履歴
	StartTime     time.Time
	EndTime       time.Time
	ReadCount     int
	BlankCount    int
	SkipReadCount int
	SkippedLines  []int
	FilterCount   int
	WriteCount    int
	Failures      []error
	LastUpdated   time.Time
}

// NewStepExecution は STARTING 状態の新しい StepExecution を作成します。
func NewStepExecution(stepID uint8, stepName string) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:          uuid.New().String(),
		StepID:      stepID,
		StepName:    stepName,
		Status:      StatusStarting,
		LastStage:   StatusStarting,
		History:     []StepStatus{StatusStarting},
		StartTime:   now,
		LastUpdated: now,
		Failures:    make([]error, 0),
	}
}

// TransitionTo は状態を next に進めます。後戻りや終端状態からの遷移はエラーになります。
func (se *StepExecution) TransitionTo(next StepStatus) error {
	if !se.Status.CanTransitionTo(next) {
		return fmt.Errorf("不正な状態遷移です: %s -> %s", se.Status, next)
	}
	se.Status = next
	if next.IsStage() {
		se.LastStage = next
	}
	se.History = append(se.History, next)
	se.LastUpdated = time.Now()
	if next.IsFinished() {
		se.EndTime = se.LastUpdated
	}
	return nil
}

// MarkAsOK は StepExecution を正常終了にします。
func (se *StepExecution) MarkAsOK() error {
	return se.TransitionTo(StatusOK)
}

// MarkAsKO は StepExecution を異常終了にし、エラー情報を追加します。
func (se *StepExecution) MarkAsKO(err error) error {
	se.AddFailureException(err)
	return se.TransitionTo(StatusKO)
}

// AddFailureException は StepExecution にエラー情報を追加します。
func (se *StepExecution) AddFailureException(err error) {
	if err != nil {
		se.Failures = append(se.Failures, err)
		se.LastUpdated = time.Now()
	}
}

// Entered は指定された状態をこの実行で通過したかを返します。
func (se *StepExecution) Entered(status StepStatus) bool {
	for _, s := range se.History {
		if s == status {
			return true
		}
	}
	return false
}

// Duration は実行時間を返します。終了していない場合は現在までの経過時間です。
func (se *StepExecution) Duration() time.Duration {
	if se.EndTime.IsZero() {
		return time.Since(se.StartTime)
	}
	return se.EndTime.Sub(se.StartTime)
}
