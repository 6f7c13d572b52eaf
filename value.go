package script_runner

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Kind 结果值的类别
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
	KindList
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindList:
		return "list"
	case KindOther:
		return "other"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

const (
	nullText     = "null"
	noResultText = "No result"
	trueText     = "True"
	falseText    = "False"
	itemSep      = ", "
	cycleText    = "[...]"
)

// Value 脚本执行结果。各引擎把自身的值表示转换为 Value，
// 再由 String 统一归一化为文本。
type Value struct {
	kind  Kind
	str   string
	b     bool
	i     int64
	f     float64
	items []Value
	// hasText Other 值的文本来自值本身（可以为空串）
	hasText bool
}

func NullValue() Value { return Value{kind: KindNull} }

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// ListValue 有限集合，nil 视为空集合
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// OtherValue 无法归入其他类别的值，text 为其默认文本表示，空串表示没有文本表示
func OtherValue(text string) Value { return Value{kind: KindOther, str: text} }

// otherText 由值自身给出的文本表示，空串原样保留
func otherText(text string) Value { return Value{kind: KindOther, str: text, hasText: true} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Items 返回集合元素的拷贝，非集合返回 nil
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return slices.Clone(v.items)
}

// Interface 转换为原生 Go 值
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindOther:
		return v.str
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// String 归一化文本：
// 字符串原样返回；整数、布尔取规范文本；null 为 "null"；
// 集合以 ", " 连接各元素文本；其余取默认文本，为空时为 "No result"。
func (v Value) String() string {
	switch v.kind {
	case KindList:
		return v.join()
	case KindOther:
		if v.str == "" && !v.hasText {
			return noResultText
		}
		return v.str
	default:
		return v.itemText()
	}
}

// itemText 作为集合元素时的文本
func (v Value) itemText() string {
	switch v.kind {
	case KindNull:
		return nullText
	case KindString, KindOther:
		return v.str
	case KindBool:
		if v.b {
			return trueText
		}
		return falseText
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindList:
		return "[" + v.join() + "]"
	default:
		return ""
	}
}

func (v Value) join() string {
	parts := make([]string, len(v.items))
	for i, item := range v.items {
		parts[i] = item.itemText()
	}
	return strings.Join(parts, itemSep)
}

func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FromGo 把宿主 Go 值转换为 Value。
// map 被视为键值对集合，每个键值对为 [key, value]，按键文本排序以保证结果确定。
// 自引用的 slice / map 在再次出现时记为 "[...]"。
func FromGo(v any) Value {
	return fromGo(v, nil)
}

// visit 当前转换路径上的容器
type visit struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

func fromGo(v any, path map[visit]struct{}) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case Value:
		return x
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		return fromUint(x)
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return NullValue()
		}
	}

	switch x := v.(type) {
	case error:
		return otherText(x.Error())
	case fmt.Stringer:
		return otherText(x.String())
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return fromGo(rv.Elem().Interface(), path)
	case reflect.String:
		return StringValue(rv.String())
	case reflect.Bool:
		return BoolValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntValue(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return FloatValue(rv.Float())
	case reflect.Slice:
		if rv.Len() == 0 {
			return ListValue()
		}
		key := visit{ptr: rv.Pointer(), typ: rv.Type(), n: rv.Len()}
		if _, ok := path[key]; ok {
			return otherText(cycleText)
		}
		path = enter(path, key)
		defer delete(path, key)
		return fromSeq(rv, path)
	case reflect.Array:
		return fromSeq(rv, path)
	case reflect.Map:
		key := visit{ptr: rv.Pointer(), typ: rv.Type()}
		if _, ok := path[key]; ok {
			return otherText(cycleText)
		}
		path = enter(path, key)
		defer delete(path, key)
		return fromMap(rv, path)
	case reflect.Func, reflect.Chan:
		return otherText(rv.Type().String())
	default:
		return otherText(fmt.Sprint(v))
	}
}

func enter(path map[visit]struct{}, key visit) map[visit]struct{} {
	if path == nil {
		path = make(map[visit]struct{})
	}
	path[key] = struct{}{}
	return path
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return otherText(strconv.FormatUint(u, 10))
	}
	return IntValue(int64(u))
}

func fromSeq(rv reflect.Value, path map[visit]struct{}) Value {
	items := make([]Value, rv.Len())
	for i := range items {
		items[i] = fromGo(rv.Index(i).Interface(), path)
	}
	return ListValue(items...)
}

func fromMap(rv reflect.Value, path map[visit]struct{}) Value {
	type pair struct {
		key   string
		value Value
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := fromGo(iter.Key().Interface(), path)
		pairs = append(pairs, pair{
			key:   k.itemText(),
			value: ListValue(k, fromGo(iter.Value().Interface(), path)),
		})
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		return strings.Compare(a.key, b.key)
	})

	items := make([]Value, len(pairs))
	for i, p := range pairs {
		items[i] = p.value
	}
	return ListValue(items...)
}
