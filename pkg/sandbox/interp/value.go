package interp

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value is the dynamic runtime representation for every DSL value: nil,
// bool, float64, string, *List, *Dict, or a callable (builtinFunc /
// *funcValue, added by interp.go).
type Value interface{}

// List is a mutable ordered sequence, the DSL's "list".
type List struct {
	Elems []Value
}

// Dict is an insertion-ordered string-keyed map, the DSL's "dict". Keys
// are coerced to their repr string since the DSL only ever builds dicts
// from string/number/bool literal keys in practice.
type Dict struct {
	keys   []string
	values map[string]Value
}

func NewDict() *Dict {
	return &Dict{values: map[string]Value{}}
}

func (d *Dict) Get(k string) (Value, bool) {
	v, ok := d.values[k]
	return v, ok
}

func (d *Dict) Set(k string, v Value) {
	if _, exists := d.values[k]; !exists {
		d.keys = append(d.keys, k)
	}
	d.values[k] = v
}

func (d *Dict) Keys() []string { return d.keys }

func (d *Dict) Len() int { return len(d.keys) }

func valueKey(v Value) string { return Repr(v) }

func truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case *List:
		return len(x.Elems) > 0
	case *Dict:
		return x.Len() > 0
	default:
		return true
	}
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asString(v Value) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Str renders a value using display semantics (strings unquoted).
func Str(v Value) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(x)
	case string:
		return x
	case *List:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = Repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Dict:
		parts := make([]string, 0, x.Len())
		for _, k := range x.keys {
			parts = append(parts, fmt.Sprintf("%q: %s", k, Repr(x.values[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *funcValue:
		return fmt.Sprintf("<function %s>", x.Name)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Repr renders a value using Python-style repr semantics (strings quoted).
func Repr(v Value) string {
	if s, ok := v.(string); ok {
		return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
	}
	return Str(v)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func equalValues(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := asFloat(b)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !equalValues(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case *Dict:
		y, ok := b.(*Dict)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.keys {
			yv, ok := y.Get(k)
			if !ok || !equalValues(x.values[k], yv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func compareValues(a, b Value) (int, error) {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	return 0, fmt.Errorf("interp: cannot compare %T and %T", a, b)
}

func sortValues(vals []Value, less func(a, b Value) bool) {
	sort.SliceStable(vals, func(i, j int) bool { return less(vals[i], vals[j]) })
}
