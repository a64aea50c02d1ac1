package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/schema"
	"itemstep/pkg/batch/util/exception"
	"itemstep/pkg/batch/util/logger"
)

var (
	ErrFileAccess       = errors.New("ファイルを読み込めません")
	ErrMissingHeader    = errors.New("ヘッダー行がありません")
	ErrInvalidDelimiter = errors.New("区切り文字が空です")
)

// FileItemReader は区切り文字付きのテキストファイルを読み込み、
// 1 行目をヘッダーとしてデータ行を T にデコードします。
//
// クォートやエスケープ、複数行にまたがる値には対応していません。
type FileItemReader[T any] struct {
	decoder core.RowDecoder[T]
}

var _ core.ItemReader[struct{}] = (*FileItemReader[struct{}])(nil)

// NewFileItemReader は指定されたデコーダーで読み込む FileItemReader を作成します。
func NewFileItemReader[T any](decoder core.RowDecoder[T]) *FileItemReader[T] {
	return &FileItemReader[T]{decoder: decoder}
}

// NewSchemaItemReader は構造体タグから組み立てたスキーマでデコードする FileItemReader を作成します。
func NewSchemaItemReader[T any]() (*FileItemReader[T], error) {
	d, err := schema.Decoder[T]()
	if err != nil {
		return nil, err
	}
	return NewFileItemReader[T](d), nil
}

// NewDecodableItemReader はレコード型自身の DecodeRow でデコードする FileItemReader を作成します。
func NewDecodableItemReader[T any, PT core.RowDecodable[T]]() *FileItemReader[T] {
	return NewFileItemReader[T](core.DecoderOf[T, PT]())
}

// Read は path のファイル全体を読み込み、デコードできた行をファイル順に返します。
// 空行や空白のみの行は数えたうえで読み飛ばし、デコードに失敗した行は行番号を記録して読み飛ばします。
func (r *FileItemReader[T]) Read(ctx context.Context, path, delimiter string) (*core.ReadResult[T], error) {
	if delimiter == "" {
		return nil, exception.NewBatchError("reader", "区切り文字を指定してください", ErrInvalidDelimiter, false, false)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewBatchError("reader", fmt.Sprintf("ファイル '%s' の読み込みに失敗しました", path), fmt.Errorf("%w: %w", ErrFileAccess, err), false, false)
	}

	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, exception.NewBatchError("reader", fmt.Sprintf("ファイル '%s' は空です", path), ErrMissingHeader, false, false)
	}

	headers := strings.Split(lines[0], delimiter)
	result := &core.ReadResult[T]{Items: make([]T, 0, len(lines)-1)}

	for i, line := range lines[1:] {
		if err := ctx.Err(); err != nil {
			return nil, exception.NewBatchError("reader", "読み込みが中断されました", err, false, false)
		}
		lineNo := i + 2
		result.LineCount++

		if strings.TrimSpace(line) == "" {
			result.BlankCount++
			continue
		}

		item, ok := r.decoder.Decode(headers, strings.Split(line, delimiter))
		if !ok {
			logger.Debugf("%s の %d 行目をデコードできなかったためスキップします。", path, lineNo)
			result.SkippedLines = append(result.SkippedLines, lineNo)
			continue
		}
		result.Items = append(result.Items, item)
	}

	logger.Debugf("%s を読み込みました。アイテム数: %d, 空行: %d, スキップ: %d", path, len(result.Items), result.BlankCount, result.SkipCount())
	return result, nil
}

// splitLines は改行で分割し、行末の \r を取り除きます。末尾の改行は空行として数えません。
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
