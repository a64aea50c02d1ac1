package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "reader", "processor", "writer", "step")
	Message     string // エラーの簡潔な説明
	OriginalErr error  // ラップされた元のエラー
	isRetryable bool
	isSkippable bool
	StackTrace  string // スタックトレース (デバッグ用)
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列からメッセージを組み立てて BatchError を作成します。
// ラップする元のエラーは持たず、リトライ不可・スキップ不可として扱います。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	return &BatchError{
		Module:     module,
		Message:    fmt.Sprintf(format, a...),
		StackTrace: captureStack(),
	}
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// AsBatchError はエラーチェーンから BatchError を取り出します。
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
