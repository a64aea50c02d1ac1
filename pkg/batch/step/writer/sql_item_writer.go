package writer

import (
	"context"
	"fmt"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/database"
	"itemstep/pkg/batch/schema"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// SQLItemWriter はバッチを一つのトランザクションでテーブルに挿入します。
// 列名はレコード型のスキーマ (row タグ) から決まります。
type SQLItemWriter[T any] struct {
	conn   database.DBConnection
	table  string
	schema *schema.Schema[T]
}

var _ core.ItemWriter[struct{}] = (*SQLItemWriter[struct{}])(nil)

// NewSQLItemWriter は新しい SQLItemWriter のインスタンスを作成します。
// 接続はフレームワーク側で管理され、SQLItemWriter は閉じません。
func NewSQLItemWriter[T any](conn database.DBConnection, table string) (*SQLItemWriter[T], error) {
	if table == "" {
		return nil, exception.NewBatchErrorf("writer", "出力テーブル名を指定してください")
	}
	s, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	return &SQLItemWriter[T]{conn: conn, table: table, schema: s}, nil
}

// Write はすべてのアイテムを挿入します。途中で失敗した場合はロールバックします。
func (w *SQLItemWriter[T]) Write(ctx context.Context, items []T) (err error) {
	if len(items) == 0 {
		logger.Debugf("書き込むアイテムがありません。")
		return nil
	}

	tx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewBatchError("writer", "トランザクションを開始できません", err, true, false)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("ロールバックに失敗しました: %v", rbErr)
			}
		}
	}()

	query := database.InsertStatement(w.conn.Dialect(), w.table, w.schema.Columns())
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("テーブル %s への INSERT 文を準備できません", w.table), err, false, false)
	}
	defer stmt.Close()

	for i, item := range items {
		if err = ctx.Err(); err != nil {
			return exception.NewBatchError("writer", "書き込みが中断されました", err, false, false)
		}
		if _, err = stmt.ExecContext(ctx, w.schema.Values(item)...); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("%d 番目のアイテムを %s に挿入できません", i, w.table), err, true, false)
		}
	}

	if err = tx.Commit(); err != nil {
		return exception.NewBatchError("writer", "コミットに失敗しました", err, true, false)
	}
	logger.Debugf("テーブル %s にアイテム %d 件を保存しました。", w.table, len(items))
	return nil
}
