package processor

import (
	"context"
	"fmt"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/util/exception"
)

// Each は各要素をその場で変換する BatchProcessor を作成します。
// fn がエラーを返した時点で処理を中断します。それまでの要素は変更済みのままです。
func Each[T any](fn func(item *T) error) core.BatchProcessor[T] {
	return core.BatchProcessorFunc[T](func(ctx context.Context, items []T) ([]T, error) {
		for i := range items {
			if err := ctx.Err(); err != nil {
				return items, exception.NewBatchError("processor", "処理が中断されました", err, false, false)
			}
			if err := fn(&items[i]); err != nil {
				return items, exception.NewBatchError("processor", fmt.Sprintf("%d 番目のアイテムの処理に失敗しました", i), err, false, true)
			}
		}
		return items, nil
	})
}

// Filter は keep が false を返した要素を取り除く BatchProcessor を作成します。
// 残った要素は元の順序のまま同じ配列の先頭に詰められます。
func Filter[T any](keep func(item *T) bool) core.BatchProcessor[T] {
	return compact(func(item *T) (bool, error) { return keep(item), nil })
}

func compact[T any](keep func(item *T) (bool, error)) core.BatchProcessor[T] {
	return core.BatchProcessorFunc[T](func(ctx context.Context, items []T) ([]T, error) {
		n := 0
		for i := range items {
			if err := ctx.Err(); err != nil {
				return items, exception.NewBatchError("processor", "処理が中断されました", err, false, false)
			}
			ok, err := keep(&items[i])
			if err != nil {
				return items, exception.NewBatchError("processor", fmt.Sprintf("%d 番目のアイテムの判定に失敗しました", i), err, false, true)
			}
			if ok {
				items[n] = items[i]
				n++
			}
		}
		var zero T
		for i := n; i < len(items); i++ {
			items[i] = zero
		}
		return items[:n], nil
	})
}

// Chain は複数の BatchProcessor を順に適用する一つの BatchProcessor にまとめます。
func Chain[T any](ps ...core.BatchProcessor[T]) core.BatchProcessor[T] {
	return core.BatchProcessorFunc[T](func(ctx context.Context, items []T) ([]T, error) {
		var err error
		for _, p := range ps {
			if items, err = p.Process(ctx, items); err != nil {
				return items, err
			}
		}
		return items, nil
	})
}
