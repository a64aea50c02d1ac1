// Package schema は構造体のフィールド定義から行デコーダーを組み立てます。
//
// フィールド名はタグ `row:"name"` で指定し、タグがなければ Go のフィールド名を
// そのまま使います。`row:"-"` は対象外、`row:"name,optional"` はデコードできなくても
// 行を失敗にしないフィールドです。ポインタ型のフィールドは常に optional です。
//
// マッピング表は型ごとに一度だけ構築され、以降の読み込みで再利用されます。
package schema

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"itemstep/pkg/batch/core"
	"itemstep/pkg/batch/util/exception"
)

// TagName はフィールド名を指定する構造体タグのキーです。
const TagName = "row"

var (
	ErrNotStruct        = errors.New("レコード型は構造体でなければなりません")
	ErrUnsupportedField = errors.New("サポートされていないフィールド型です")
	ErrDuplicateField   = errors.New("フィールド名が重複しています")
)

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	durationType        = reflect.TypeOf(time.Duration(0))
	timeType            = reflect.TypeOf(time.Time{})
)

type parseFunc func(raw string, dst reflect.Value) error
type formatFunc func(src reflect.Value) string

type field struct {
	name     string
	index    []int
	optional bool
	parse    parseFunc
	format   formatFunc
}

// mapping は型ごとに一度だけ構築されるフィールド名→抽出・パース関数の表です。
type mapping struct {
	fields []field
	byName map[string]int
}

var cache sync.Map // reflect.Type -> *mapping

// Schema はレコード型 T のデコード/エンコード規則です。
type Schema[T any] struct {
	m *mapping
}

// Of は T の Schema を返します。初回呼び出し時に構築され、以降はキャッシュされます。
func Of[T any]() (*Schema[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := cache.Load(t); ok {
		return &Schema[T]{m: cached.(*mapping)}, nil
	}
	m, err := build(t)
	if err != nil {
		return nil, exception.NewBatchError("schema", fmt.Sprintf("型 %s のスキーマ構築に失敗しました", t), err, false, false)
	}
	actual, _ := cache.LoadOrStore(t, m)
	return &Schema[T]{m: actual.(*mapping)}, nil
}

// MustOf は Of と同じですが、失敗時に panic します。パッケージ変数の初期化用です。
func MustOf[T any]() *Schema[T] {
	s, err := Of[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Decoder は T の Schema を core.RowDecoder として返します。
func Decoder[T any]() (core.RowDecoder[T], error) {
	s, err := Of[T]()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func build(t reflect.Type) (*mapping, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
	}
	m := &mapping{byName: make(map[string]int)}
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		name, optional, skip := parseTag(sf)
		if skip {
			continue
		}
		if _, dup := m.byName[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, name)
		}
		if throughPointer(t, sf.Index) {
			return nil, fmt.Errorf("%w: フィールド %s はポインタの埋め込み構造体を経由しています", ErrUnsupportedField, sf.Name)
		}
		parse, format, err := codecFor(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("フィールド %s: %w", sf.Name, err)
		}
		if sf.Type.Kind() == reflect.Pointer {
			optional = true
		}
		m.byName[name] = len(m.fields)
		m.fields = append(m.fields, field{
			name:     name,
			index:    sf.Index,
			optional: optional,
			parse:    parse,
			format:   format,
		})
	}
	return m, nil
}

// throughPointer は index の途中にポインタの埋め込みフィールドがあるかを返します。
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		sf := t.Field(i)
		if sf.Type.Kind() == reflect.Pointer {
			return true
		}
		t = sf.Type
	}
	return false
}

func parseTag(sf reflect.StructField) (name string, optional, skip bool) {
	tag, ok := sf.Tag.Lookup(TagName)
	if !ok {
		return sf.Name, false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = sf.Name
	}
	for _, opt := range parts[1:] {
		if opt == "optional" {
			optional = true
		}
	}
	return name, optional, false
}

// Decode はヘッダー行と値の行から T を生成します。
// ヘッダーと同じ位置の値を対応するフィールドへパースし、
// 必須フィールドが一つでも埋まらなければ行全体を失敗とします。
func (s *Schema[T]) Decode(headers, values []string) (T, bool) {
	var item T
	v := reflect.ValueOf(&item).Elem()
	decoded := make([]bool, len(s.m.fields))

	for i, h := range headers {
		if i >= len(values) {
			break
		}
		idx, ok := s.m.byName[h]
		if !ok {
			continue
		}
		f := &s.m.fields[idx]
		dst := v.FieldByIndex(f.index)
		if err := f.parse(values[i], dst); err != nil {
			dst.Set(reflect.Zero(dst.Type()))
			decoded[idx] = false
			continue
		}
		decoded[idx] = true
	}

	for i := range s.m.fields {
		if !s.m.fields[i].optional && !decoded[i] {
			var zero T
			return zero, false
		}
	}
	return item, true
}

// Columns はフィールド名を宣言順に返します。
func (s *Schema[T]) Columns() []string {
	cols := make([]string, len(s.m.fields))
	for i, f := range s.m.fields {
		cols[i] = f.name
	}
	return cols
}

// Encode はレコードを Columns と同じ順序の文字列に変換します。
func (s *Schema[T]) Encode(item T) []string {
	v := reflect.ValueOf(&item).Elem()
	out := make([]string, len(s.m.fields))
	for i, f := range s.m.fields {
		out[i] = f.format(v.FieldByIndex(f.index))
	}
	return out
}

// Values はレコードを Columns と同じ順序の値に変換します。SQL のパラメータ用です。
func (s *Schema[T]) Values(item T) []any {
	v := reflect.ValueOf(&item).Elem()
	out := make([]any, len(s.m.fields))
	for i, f := range s.m.fields {
		raw := v.FieldByIndex(f.index)
		fv := raw
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				out[i] = nil
				continue
			}
			fv = fv.Elem()
		}
		ft := fv.Type()
		switch {
		case ft == timeType:
			out[i] = fv.Interface()
		case ft == durationType, ft.Implements(textMarshalerType), reflect.PointerTo(ft).Implements(textMarshalerType):
			out[i] = f.format(raw)
		default:
			out[i] = fv.Interface()
		}
	}
	return out
}

// codecFor はフィールド型ごとのパース関数とフォーマット関数を返します。
func codecFor(t reflect.Type) (parseFunc, formatFunc, error) {
	if t.Kind() == reflect.Pointer {
		elemParse, elemFormat, err := codecFor(t.Elem())
		if err != nil {
			return nil, nil, err
		}
		parse := func(raw string, dst reflect.Value) error {
			nv := reflect.New(t.Elem())
			if err := elemParse(raw, nv.Elem()); err != nil {
				return err
			}
			dst.Set(nv)
			return nil
		}
		format := func(src reflect.Value) string {
			if src.IsNil() {
				return ""
			}
			return elemFormat(src.Elem())
		}
		return parse, format, nil
	}

	if t == durationType {
		parse := func(raw string, dst reflect.Value) error {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			dst.SetInt(int64(d))
			return nil
		}
		format := func(src reflect.Value) string {
			return time.Duration(src.Int()).String()
		}
		return parse, format, nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		parse := func(raw string, dst reflect.Value) error {
			return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw))
		}
		return parse, textFormat(t), nil
	}

	var parse parseFunc
	var format formatFunc
	switch t.Kind() {
	case reflect.String:
		parse = func(raw string, dst reflect.Value) error {
			dst.SetString(raw)
			return nil
		}
		format = func(src reflect.Value) string { return src.String() }
	case reflect.Bool:
		parse = func(raw string, dst reflect.Value) error {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return err
			}
			dst.SetBool(b)
			return nil
		}
		format = func(src reflect.Value) string { return strconv.FormatBool(src.Bool()) }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := t.Bits()
		parse = func(raw string, dst reflect.Value) error {
			n, err := strconv.ParseInt(raw, 10, bits)
			if err != nil {
				return err
			}
			dst.SetInt(n)
			return nil
		}
		format = func(src reflect.Value) string { return strconv.FormatInt(src.Int(), 10) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		bits := t.Bits()
		parse = func(raw string, dst reflect.Value) error {
			n, err := strconv.ParseUint(raw, 10, bits)
			if err != nil {
				return err
			}
			dst.SetUint(n)
			return nil
		}
		format = func(src reflect.Value) string { return strconv.FormatUint(src.Uint(), 10) }
	case reflect.Float32, reflect.Float64:
		bits := t.Bits()
		parse = func(raw string, dst reflect.Value) error {
			f, err := strconv.ParseFloat(raw, bits)
			if err != nil {
				return err
			}
			dst.SetFloat(f)
			return nil
		}
		format = func(src reflect.Value) string { return strconv.FormatFloat(src.Float(), 'f', -1, bits) }
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedField, t)
	}
	return parse, format, nil
}

func textFormat(t reflect.Type) formatFunc {
	return func(src reflect.Value) string {
		var m encoding.TextMarshaler
		switch {
		case t.Implements(textMarshalerType):
			m = src.Interface().(encoding.TextMarshaler)
		case reflect.PointerTo(t).Implements(textMarshalerType) && src.CanAddr():
			m = src.Addr().Interface().(encoding.TextMarshaler)
		default:
			return fmt.Sprint(src.Interface())
		}
		b, err := m.MarshalText()
		if err != nil {
			return ""
		}
		return string(b)
	}
}
