package database

import (
	"strconv"
	"strings"
)

// Placeholder は n 番目 (1 始まり) のバインドパラメータの表記を返します。
func Placeholder(dialect string, n int) string {
	switch strings.ToLower(dialect) {
	case "postgres", "redshift":
		return "$" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// QuoteIdent はテーブル名や列名を識別子として引用します。
func QuoteIdent(dialect, name string) string {
	switch strings.ToLower(dialect) {
	case "mysql":
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case "snowflake":
		// 引用すると大文字小文字が区別されるため、そのまま使う
		return name
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// InsertStatement は table へ columns を挿入する INSERT 文を組み立てます。
func InsertStatement(dialect, table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdent(dialect, table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(dialect, c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Placeholder(dialect, i+1))
	}
	b.WriteString(")")
	return b.String()
}
