package job

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// Runner は独立して実行できる単位です。*step.Step[T] が実装します。
type Runner interface {
	Run(ctx context.Context) error
	Name() string
}

// RunParallel は runners を最大 limit 個まで同時に実行し、すべての完了を待ちます。
// limit が 0 以下の場合は同時実行数を制限しません。
//
// 一つの Runner の失敗は他の Runner を中断しません。失敗したすべてのエラーを結合して返します。
func RunParallel(ctx context.Context, limit int, runners ...Runner) error {
	if len(runners) == 0 {
		return nil
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	start := time.Now()
	errs := make([]error, len(runners))
	for i, r := range runners {
		i, r := i, r
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = exception.NewBatchError("job", r.Name()+" は開始前に中断されました", err, false, false)
				return nil
			}
			errs[i] = r.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	logger.Infof("%d 個のステップを実行しました。失敗: %d, 所要時間: %s", len(runners), failed, time.Since(start))
	return err
}
