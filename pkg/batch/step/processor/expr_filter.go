package processor

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/util/exception"
)

// FilterExpr は真偽値を返す式で要素を選別する BatchProcessor を作成します。
// 式の中では T のフィールドを Go の名前で参照できます (例: `Age >= 20 && Email endsWith ".jp"`)。
// 式は作成時にコンパイルされ、型が合わない場合はエラーを返します。
func FilterExpr[T any](expression string) (core.BatchProcessor[T], error) {
	var env T
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, exception.NewBatchError("processor", fmt.Sprintf("フィルタ式 '%s' をコンパイルできません", expression), err, false, false)
	}
	return compact(func(item *T) (bool, error) {
		return evalBool(program, *item)
	}), nil
}

func evalBool(program *vm.Program, env any) (bool, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, _ := out.(bool)
	return ok, nil
}
