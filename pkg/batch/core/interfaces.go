package core

import "context"

// RowDecoder はヘッダー行と値の行からレコードを生成する能力です。
// 行が利用できない場合は false を返します。実装は純粋でなければならず、
// I/O や入力スライスの変更を行ってはいけません。
type RowDecoder[T any] interface {
	Decode(headers, values []string) (T, bool)
}

// RowDecoderFunc は関数を RowDecoder として扱うためのアダプターです。
type RowDecoderFunc[T any] func(headers, values []string) (T, bool)

// Decode は RowDecoder インターフェースの実装です。
func (f RowDecoderFunc[T]) Decode(headers, values []string) (T, bool) {
	return f(headers, values)
}

// RowDecodable はレコード型自身がデコード能力を持つことを表す制約です。
// ポインタレシーバの DecodeRow でゼロ値のレコードを埋めます。
type RowDecodable[T any] interface {
	*T
	DecodeRow(headers, values []string) bool
}

// DecoderOf はレコード型の DecodeRow メソッドを RowDecoder として束縛します。
// 型が能力を満たさない場合はコンパイル時に検出されます。
func DecoderOf[T any, PT RowDecodable[T]]() RowDecoder[T] {
	return RowDecoderFunc[T](func(headers, values []string) (T, bool) {
		var item T
		if !PT(&item).DecodeRow(headers, values) {
			var zero T
			return zero, false
		}
		return item, true
	})
}

// BatchProcessor はメモリ上のバッチ全体をその場で変換する能力です。
//
// 要素はスライス経由でその場で更新します。戻り値は処理後のバッチで、
// 同じ要素を前詰めしたもの (フィルタリング) でなければならず、
// 入力より長くなってはいけません。
type BatchProcessor[T any] interface {
	Process(ctx context.Context, items []T) ([]T, error)
}

// BatchProcessorFunc は関数を BatchProcessor として扱うためのアダプターです。
type BatchProcessorFunc[T any] func(ctx context.Context, items []T) ([]T, error)

// Process は BatchProcessor インターフェースの実装です。
func (f BatchProcessorFunc[T]) Process(ctx context.Context, items []T) ([]T, error) {
	return f(ctx, items)
}

// ItemReader はファイルからレコードのバッチを読み込むインターフェースです。
// エラーが nil の場合、結果は nil であってはいけません。
type ItemReader[T any] interface {
	Read(ctx context.Context, path, delimiter string) (*ReadResult[T], error)
}

// ItemWriter は処理済みのバッチを書き出すインターフェースです。
type ItemWriter[T any] interface {
	Write(ctx context.Context, items []T) error
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}
