package expression

import (
	"fmt"
	"math"
	"strings"
)

// moduleFunc 模块函数，参数在调用时转换，以便接受表达式中的任意数值类型
type moduleFunc = func(args ...any) (any, error)

// module 模块成员：函数或常量
type module map[string]any

var modules = map[string]module{
	"strings": {
		"ToUpper":    unaryString("ToUpper", strings.ToUpper),
		"ToLower":    unaryString("ToLower", strings.ToLower),
		"TrimSpace":  unaryString("TrimSpace", strings.TrimSpace),
		"Contains":   binaryStringBool("Contains", strings.Contains),
		"HasPrefix":  binaryStringBool("HasPrefix", strings.HasPrefix),
		"HasSuffix":  binaryStringBool("HasSuffix", strings.HasSuffix),
		"Split":      stringsSplit,
		"Join":       stringsJoin,
		"Repeat":     stringsRepeat,
		"ReplaceAll": stringsReplaceAll,
	},
	"math": {
		"Pi":    math.Pi,
		"E":     math.E,
		"Abs":   unaryFloat("Abs", math.Abs),
		"Ceil":  unaryFloat("Ceil", math.Ceil),
		"Floor": unaryFloat("Floor", math.Floor),
		"Round": unaryFloat("Round", math.Round),
		"Sqrt":  unaryFloat("Sqrt", math.Sqrt),
		"Pow":   mathPow,
		"Max":   foldFloat("Max", math.Max),
		"Min":   foldFloat("Min", math.Min),
	},
}

// ModuleNames 返回 expr 引擎支持的模块
func ModuleNames() []string {
	return []string{"math", "strings"}
}

func checkArgs(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrExprBadArgument, name, n, len(args))
	}
	return nil
}

func argString(name string, args []any, i int) (string, error) {
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s argument %d must be a string, got %T", ErrExprBadArgument, name, i+1, args[i])
	}
	return s, nil
}

func argFloat(name string, args []any, i int) (float64, error) {
	switch v := args[i].(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s argument %d must be a number, got %T", ErrExprBadArgument, name, i+1, args[i])
	}
}

func argInt(name string, args []any, i int) (int, error) {
	f, err := argFloat(name, args, i)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s argument %d must be an integer", ErrExprBadArgument, name, i+1)
	}
	return int(f), nil
}

func unaryString(name string, fn func(string) string) moduleFunc {
	return func(args ...any) (any, error) {
		if err := checkArgs(name, args, 1); err != nil {
			return nil, err
		}
		s, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return fn(s), nil
	}
}

func binaryStringBool(name string, fn func(string, string) bool) moduleFunc {
	return func(args ...any) (any, error) {
		if err := checkArgs(name, args, 2); err != nil {
			return nil, err
		}
		a, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argString(name, args, 1)
		if err != nil {
			return nil, err
		}
		return fn(a, b), nil
	}
}

func stringsSplit(args ...any) (any, error) {
	if err := checkArgs("Split", args, 2); err != nil {
		return nil, err
	}
	s, err := argString("Split", args, 0)
	if err != nil {
		return nil, err
	}
	sep, err := argString("Split", args, 1)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func stringsJoin(args ...any) (any, error) {
	if err := checkArgs("Join", args, 2); err != nil {
		return nil, err
	}
	sep, err := argString("Join", args, 1)
	if err != nil {
		return nil, err
	}
	switch items := args[0].(type) {
	case []string:
		return strings.Join(items, sep), nil
	case []any:
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, sep), nil
	default:
		return nil, fmt.Errorf("%w: Join argument 1 must be an array, got %T", ErrExprBadArgument, args[0])
	}
}

func stringsRepeat(args ...any) (any, error) {
	if err := checkArgs("Repeat", args, 2); err != nil {
		return nil, err
	}
	s, err := argString("Repeat", args, 0)
	if err != nil {
		return nil, err
	}
	n, err := argInt("Repeat", args, 1)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: Repeat count must be >= 0", ErrExprBadArgument)
	}
	return strings.Repeat(s, n), nil
}

func stringsReplaceAll(args ...any) (any, error) {
	if err := checkArgs("ReplaceAll", args, 3); err != nil {
		return nil, err
	}
	vals := make([]string, 3)
	for i := range vals {
		s, err := argString("ReplaceAll", args, i)
		if err != nil {
			return nil, err
		}
		vals[i] = s
	}
	return strings.ReplaceAll(vals[0], vals[1], vals[2]), nil
}

func unaryFloat(name string, fn func(float64) float64) moduleFunc {
	return func(args ...any) (any, error) {
		if err := checkArgs(name, args, 1); err != nil {
			return nil, err
		}
		f, err := argFloat(name, args, 0)
		if err != nil {
			return nil, err
		}
		return fn(f), nil
	}
}

func mathPow(args ...any) (any, error) {
	if err := checkArgs("Pow", args, 2); err != nil {
		return nil, err
	}
	x, err := argFloat("Pow", args, 0)
	if err != nil {
		return nil, err
	}
	y, err := argFloat("Pow", args, 1)
	if err != nil {
		return nil, err
	}
	return math.Pow(x, y), nil
}

func foldFloat(name string, fn func(a, b float64) float64) moduleFunc {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: %s expects at least 1 argument", ErrExprBadArgument, name)
		}
		acc, err := argFloat(name, args, 0)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(args); i++ {
			f, err := argFloat(name, args, i)
			if err != nil {
				return nil, err
			}
			acc = fn(acc, f)
		}
		return acc, nil
	}
}
