package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/schema"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

// ErrUnencodableValue は値に区切り文字や改行が含まれ、読み戻せない場合のエラーです。
var ErrUnencodableValue = errors.New("値に区切り文字または改行が含まれています")

// DelimitedFileWriter はバッチを区切り文字付きのテキストファイルに書き出します。
// 1 行目は列名のヘッダーで、FileItemReader でそのまま読み戻せる形式です。
type DelimitedFileWriter[T any] struct {
	path      string
	delimiter string
	schema    *schema.Schema[T]
}

var _ core.ItemWriter[struct{}] = (*DelimitedFileWriter[struct{}])(nil)

// NewDelimitedFileWriter は新しい DelimitedFileWriter のインスタンスを作成します。
func NewDelimitedFileWriter[T any](path, delimiter string) (*DelimitedFileWriter[T], error) {
	if delimiter == "" {
		return nil, exception.NewBatchErrorf("writer", "区切り文字を指定してください")
	}
	s, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	return &DelimitedFileWriter[T]{path: path, delimiter: delimiter, schema: s}, nil
}

// Path は出力先のパスを返します。
func (w *DelimitedFileWriter[T]) Path() string {
	return w.path
}

// Write はバッチ全体を一時ファイルに書き出し、完了後に出力先へ置き換えます。
// 失敗した場合、出力先の既存ファイルは変更されません。
func (w *DelimitedFileWriter[T]) Write(ctx context.Context, items []T) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return exception.NewBatchError("writer", "出力ディレクトリを作成できません", err, false, false)
	}
	tmp, err := os.CreateTemp(filepath.Dir(w.path), "."+filepath.Base(w.path)+".*")
	if err != nil {
		return exception.NewBatchError("writer", "一時ファイルを作成できません", err, false, false)
	}
	defer os.Remove(tmp.Name())

	if err := w.writeAll(ctx, tmp, items); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return exception.NewBatchError("writer", "一時ファイルを閉じられません", err, false, false)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return exception.NewBatchError("writer", fmt.Sprintf("'%s' への書き出しに失敗しました", w.path), err, false, false)
	}

	logger.Debugf("%s にアイテム %d 件を書き出しました。", w.path, len(items))
	return nil
}

func (w *DelimitedFileWriter[T]) writeAll(ctx context.Context, f *os.File, items []T) error {
	bw := bufio.NewWriter(f)
	if err := w.writeLine(bw, w.schema.Columns()); err != nil {
		return err
	}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return exception.NewBatchError("writer", "書き出しが中断されました", err, false, false)
		}
		if err := w.writeLine(bw, w.schema.Encode(item)); err != nil {
			return exception.NewBatchError("writer", fmt.Sprintf("%d 番目のアイテムを書き出せません", i), err, false, true)
		}
	}
	if err := bw.Flush(); err != nil {
		return exception.NewBatchError("writer", "書き出しに失敗しました", err, false, false)
	}
	return nil
}

func (w *DelimitedFileWriter[T]) writeLine(bw *bufio.Writer, fields []string) error {
	for _, f := range fields {
		if strings.Contains(f, w.delimiter) || strings.ContainsAny(f, "\r\n") {
			return fmt.Errorf("%w: %q", ErrUnencodableValue, f)
		}
	}
	if _, err := bw.WriteString(strings.Join(fields, w.delimiter)); err != nil {
		return err
	}
	return bw.WriteByte('\n')
}
