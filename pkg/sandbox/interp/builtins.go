package interp

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// limitedWriter accumulates written text up to a cap, matching the
// sandbox's bounded-stdout contract without allocating unbounded buffers
// for runaway print loops.
type limitedWriter struct {
	cap   int
	buf   strings.Builder
	total int
}

func newLimitedWriter(cap int) *limitedWriter { return &limitedWriter{cap: cap} }

func (w *limitedWriter) WriteString(s string) {
	w.total += len(s)
	if w.buf.Len() >= w.cap {
		return
	}
	remaining := w.cap - w.buf.Len()
	if len(s) > remaining {
		s = s[:remaining]
	}
	w.buf.WriteString(s)
}

func (w *limitedWriter) String() string { return w.buf.String() }

func (w *limitedWriter) reset() {
	w.buf.Reset()
	w.total = 0
}

// bindBuiltins installs the global function table into the interpreter's
// environment. Called once per Interp so repeated Run calls reuse it.
func (it *Interp) bindBuiltins() {
	it.Env.Set("print", builtinFunc(func(args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Str(a)
		}
		it.Stdout.WriteString(strings.Join(parts, " ") + "\n")
		return nil, nil
	}))

	it.Env.Set("len", builtinFunc(func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("interp: len() takes exactly one argument")
		}
		switch v := args[0].(type) {
		case *List:
			return float64(len(v.Elems)), nil
		case string:
			return float64(len([]rune(v))), nil
		case *Dict:
			return float64(v.Len()), nil
		default:
			return nil, fmt.Errorf("interp: object of type %T has no len()", v)
		}
	}))

	it.Env.Set("range", builtinFunc(biRange))
	it.Env.Set("str", builtinFunc(func(args []Value) (Value, error) { return Str(args[0]), nil }))
	it.Env.Set("repr", builtinFunc(func(args []Value) (Value, error) { return Repr(args[0]), nil }))
	it.Env.Set("int", builtinFunc(biInt))
	it.Env.Set("float", builtinFunc(biFloat))
	it.Env.Set("bool", builtinFunc(func(args []Value) (Value, error) { return truthy(args[0]), nil }))
	it.Env.Set("list", builtinFunc(biList))
	it.Env.Set("dict", builtinFunc(func(args []Value) (Value, error) { return NewDict(), nil }))
	it.Env.Set("sorted", builtinFunc(biSorted))
	it.Env.Set("enumerate", builtinFunc(biEnumerate))
	it.Env.Set("min", builtinFunc(func(args []Value) (Value, error) { return biMinMax(args, -1) }))
	it.Env.Set("max", builtinFunc(func(args []Value) (Value, error) { return biMinMax(args, 1) }))
	it.Env.Set("sum", builtinFunc(biSum))
	it.Env.Set("abs", builtinFunc(func(args []Value) (Value, error) {
		f, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("interp: abs() requires a number")
		}
		return math.Abs(f), nil
	}))
	it.Env.Set("round", builtinFunc(biRound))
	it.Env.Set("zip", builtinFunc(biZip))
	it.Env.Set("isinstance", builtinFunc(biIsInstance))
	it.Env.Set("type", builtinFunc(func(args []Value) (Value, error) { return typeName(args[0]), nil }))

	it.Env.Set("FINAL_VAR", builtinFunc(func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("interp: FINAL_VAR() takes exactly one argument")
		}
		return args[0], nil
	}))
	it.Env.Set("test_rubric", builtinFunc(func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("interp: test_rubric() takes exactly one argument")
		}
		return args[0], nil
	}))

	it.Env.Set("llm_query", builtinFunc(func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("interp: llm_query() takes exactly one argument")
		}
		prompt, ok := asString(args[0])
		if !ok {
			return nil, fmt.Errorf("interp: llm_query() requires a string argument")
		}
		if it.LLMQuery == nil {
			return "", fmt.Errorf("interp: llm_query is not available in this context")
		}
		if it.llmCalls >= it.maxLLM {
			return llmBudgetExhaustedSentinel, nil
		}
		it.llmCalls++
		const maxPromptChars = 100_000
		if len(prompt) > maxPromptChars {
			prompt = prompt[:maxPromptChars]
		}
		out, err := it.LLMQuery(it.ctx, prompt)
		if err != nil {
			return nil, err
		}
		return out, nil
	}))
}

// llmBudgetExhaustedSentinel is returned in place of an actual sub-LLM
// response once a sandbox call has spent its budget, so generated code
// that doesn't check for an error still gets a stable, recognizable value
// instead of silently blocking or panicking.
const llmBudgetExhaustedSentinel = "[llm_query budget exhausted for this execution]"

func biRange(args []Value) (Value, error) {
	var start, stop, step float64 = 0, 0, 1
	switch len(args) {
	case 1:
		s, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("interp: range() requires numeric arguments")
		}
		stop = s
	case 2:
		a, ok1 := asFloat(args[0])
		b, ok2 := asFloat(args[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("interp: range() requires numeric arguments")
		}
		start, stop = a, b
	case 3:
		a, ok1 := asFloat(args[0])
		b, ok2 := asFloat(args[1])
		c, ok3 := asFloat(args[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("interp: range() requires numeric arguments")
		}
		start, stop, step = a, b, c
	default:
		return nil, fmt.Errorf("interp: range() takes 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("interp: range() step cannot be zero")
	}
	var out []Value
	if step > 0 {
		for v := start; v < stop; v += step {
			out = append(out, v)
		}
	} else {
		for v := start; v > stop; v += step {
			out = append(out, v)
		}
	}
	return &List{Elems: out}, nil
}

func biInt(args []Value) (Value, error) {
	switch v := args[0].(type) {
	case float64:
		return math.Trunc(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("interp: invalid literal for int(): %q", v)
		}
		return math.Trunc(f), nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return nil, fmt.Errorf("interp: int() unsupported for %T", v)
	}
}

func biFloat(args []Value) (Value, error) {
	switch v := args[0].(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("interp: invalid literal for float(): %q", v)
		}
		return f, nil
	case bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return nil, fmt.Errorf("interp: float() unsupported for %T", v)
	}
}

func biList(args []Value) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	return &List{Elems: append([]Value(nil), items...)}, nil
}

func biSorted(args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("interp: sorted() takes at least one argument")
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	out := append([]Value(nil), items...)
	var cmpErr error
	sort.SliceStable(out, func(i, j int) bool {
		c, err := compareValues(out[i], out[j])
		if err != nil {
			cmpErr = err
		}
		return c < 0
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	return &List{Elems: out}, nil
}

func biEnumerate(args []Value) (Value, error) {
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	start := 0
	if len(args) > 1 {
		f, _ := asFloat(args[1])
		start = int(f)
	}
	out := make([]Value, len(items))
	for i, v := range items {
		out[i] = &List{Elems: []Value{float64(start + i), v}}
	}
	return &List{Elems: out}, nil
}

func biMinMax(args []Value, sign int) (Value, error) {
	items := args
	if len(args) == 1 {
		it, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		items = it
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("interp: min()/max() arg is an empty sequence")
	}
	best := items[0]
	for _, v := range items[1:] {
		c, err := compareValues(v, best)
		if err != nil {
			return nil, err
		}
		if c*sign > 0 {
			best = v
		}
	}
	return best, nil
}

func biSum(args []Value) (Value, error) {
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	total := 0.0
	if len(args) > 1 {
		f, ok := asFloat(args[1])
		if ok {
			total = f
		}
	}
	for _, v := range items {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("interp: sum() requires numeric elements")
		}
		total += f
	}
	return total, nil
}

func biRound(args []Value) (Value, error) {
	f, ok := asFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("interp: round() requires a number")
	}
	if len(args) == 1 {
		return math.Round(f), nil
	}
	nd, _ := asFloat(args[1])
	mult := math.Pow(10, nd)
	return math.Round(f*mult) / mult, nil
}

func biZip(args []Value) (Value, error) {
	if len(args) == 0 {
		return &List{}, nil
	}
	lists := make([][]Value, len(args))
	minLen := -1
	for i, a := range args {
		items, err := iterate(a)
		if err != nil {
			return nil, err
		}
		lists[i] = items
		if minLen == -1 || len(items) < minLen {
			minLen = len(items)
		}
	}
	out := make([]Value, minLen)
	for i := 0; i < minLen; i++ {
		tup := make([]Value, len(lists))
		for j := range lists {
			tup[j] = lists[j][i]
		}
		out[i] = &List{Elems: tup}
	}
	return &List{Elems: out}, nil
}

func typeName(v Value) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	default:
		return "object"
	}
}

func biIsInstance(args []Value) (Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("interp: isinstance() takes exactly two arguments")
	}
	want, ok := asString(args[1])
	if !ok {
		return nil, fmt.Errorf("interp: isinstance() second argument must be a type name string")
	}
	return typeName(args[0]) == want, nil
}

// modules holds the allowlisted import namespaces backed entirely by the
// standard library.
var modules = map[string]*Dict{
	"math":        mathModule(),
	"re":          reModule(),
	"json":        jsonModule(),
	"string":      stringModule(),
	"collections": collectionsModule(),
	"functools":   functoolsModule(),
	"itertools":   itertoolsModule(),
}

func mathModule() *Dict {
	d := NewDict()
	d.Set("pi", math.Pi)
	d.Set("e", math.E)
	d.Set("inf", math.Inf(1))
	fn1 := func(f func(float64) float64) builtinFunc {
		return func(args []Value) (Value, error) {
			x, ok := asFloat(args[0])
			if !ok {
				return nil, fmt.Errorf("interp: math function requires a number")
			}
			return f(x), nil
		}
	}
	d.Set("sqrt", fn1(math.Sqrt))
	d.Set("floor", fn1(math.Floor))
	d.Set("ceil", fn1(math.Ceil))
	d.Set("log", fn1(math.Log))
	d.Set("log2", fn1(math.Log2))
	d.Set("exp", fn1(math.Exp))
	d.Set("pow", builtinFunc(func(args []Value) (Value, error) {
		a, _ := asFloat(args[0])
		b, _ := asFloat(args[1])
		return math.Pow(a, b), nil
	}))
	return d
}

func reModule() *Dict {
	d := NewDict()
	d.Set("findall", builtinFunc(func(args []Value) (Value, error) {
		pat, _ := asString(args[0])
		s, _ := asString(args[1])
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("interp: invalid regex %q: %w", pat, err)
		}
		matches := re.FindAllString(s, -1)
		out := make([]Value, len(matches))
		for i, m := range matches {
			out[i] = m
		}
		return &List{Elems: out}, nil
	}))
	d.Set("search", builtinFunc(func(args []Value) (Value, error) {
		pat, _ := asString(args[0])
		s, _ := asString(args[1])
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("interp: invalid regex %q: %w", pat, err)
		}
		m := re.FindString(s)
		if m == "" && !re.MatchString(s) {
			return nil, nil
		}
		return m, nil
	}))
	d.Set("sub", builtinFunc(func(args []Value) (Value, error) {
		pat, _ := asString(args[0])
		repl, _ := asString(args[1])
		s, _ := asString(args[2])
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("interp: invalid regex %q: %w", pat, err)
		}
		return re.ReplaceAllString(s, repl), nil
	}))
	return d
}

func jsonModule() *Dict {
	d := NewDict()
	d.Set("dumps", builtinFunc(func(args []Value) (Value, error) {
		b, err := json.Marshal(toGo(args[0]))
		if err != nil {
			return nil, fmt.Errorf("interp: json.dumps: %w", err)
		}
		return string(b), nil
	}))
	d.Set("loads", builtinFunc(func(args []Value) (Value, error) {
		s, ok := asString(args[0])
		if !ok {
			return nil, fmt.Errorf("interp: json.loads() requires a string")
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("interp: json.loads: %w", err)
		}
		return fromGo(out), nil
	}))
	return d
}

func toGo(v Value) any {
	switch x := v.(type) {
	case *List:
		out := make([]any, len(x.Elems))
		for i, e := range x.Elems {
			out[i] = toGo(e)
		}
		return out
	case *Dict:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			ev, _ := x.Get(k)
			out[k] = toGo(ev)
		}
		return out
	default:
		return x
	}
}

func fromGo(v any) Value {
	switch x := v.(type) {
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = fromGo(e)
		}
		return &List{Elems: out}
	case map[string]any:
		d := NewDict()
		for k, e := range x {
			d.Set(k, fromGo(e))
		}
		return d
	case float64, string, bool, nil:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

func stringModule() *Dict {
	d := NewDict()
	d.Set("ascii_lowercase", "abcdefghijklmnopqrstuvwxyz")
	d.Set("ascii_uppercase", "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	d.Set("digits", "0123456789")
	d.Set("punctuation", "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~")
	return d
}

// collectionsModule exposes Counter: called with no argument it returns an
// empty Dict; called with an iterable it returns a Dict mapping each
// item's string form to its count.
func collectionsModule() *Dict {
	d := NewDict()
	d.Set("Counter", builtinFunc(func(args []Value) (Value, error) {
		counts := NewDict()
		if len(args) == 0 {
			return counts, nil
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			key, ok := asString(item)
			if !ok {
				key = Str(item)
			}
			cur, _ := counts.Get(key)
			n, _ := asFloat(cur)
			counts.Set(key, n+1)
		}
		return counts, nil
	}))
	return d
}

func functoolsModule() *Dict {
	d := NewDict()
	d.Set("reduce", builtinFunc(func(args []Value) (Value, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("interp: functools.reduce() requires a function and a sequence")
		}
		fn, ok := args[0].(builtinFunc)
		if !ok {
			return nil, fmt.Errorf("interp: functools.reduce() first argument must be callable")
		}
		items, err := iterate(args[1])
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			if len(args) == 3 {
				return args[2], nil
			}
			return nil, fmt.Errorf("interp: functools.reduce() of empty sequence with no initial value")
		}
		acc := items[0]
		rest := items[1:]
		if len(args) == 3 {
			acc = args[2]
			rest = items
		}
		for _, v := range rest {
			acc, err = fn([]Value{acc, v})
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}))
	return d
}

func itertoolsModule() *Dict {
	d := NewDict()
	d.Set("chain", builtinFunc(func(args []Value) (Value, error) {
		var out []Value
		for _, a := range args {
			items, err := iterate(a)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return &List{Elems: out}, nil
	}))
	return d
}

// attrOf implements the handful of object-method calls generated fragments
// rely on: str.*, list.*, dict.* methods.
func (it *Interp) attrOf(recv Value, name string) (Value, error) {
	switch r := recv.(type) {
	case string:
		return stringMethod(r, name)
	case *List:
		return listMethod(r, name)
	case *Dict:
		return dictMethod(r, name)
	default:
		return nil, fmt.Errorf("interp: %T has no attribute %q", recv, name)
	}
}

func stringMethod(s, name string) (Value, error) {
	switch name {
	case "upper":
		return builtinFunc(func(args []Value) (Value, error) { return strings.ToUpper(s), nil }), nil
	case "lower":
		return builtinFunc(func(args []Value) (Value, error) { return strings.ToLower(s), nil }), nil
	case "strip":
		return builtinFunc(func(args []Value) (Value, error) { return strings.TrimSpace(s), nil }), nil
	case "split":
		return builtinFunc(func(args []Value) (Value, error) {
			sep := " "
			hasSep := false
			if len(args) > 0 {
				sep, _ = asString(args[0])
				hasSep = true
			}
			var parts []string
			if hasSep {
				parts = strings.Split(s, sep)
			} else {
				parts = strings.Fields(s)
			}
			out := make([]Value, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return &List{Elems: out}, nil
		}), nil
	case "join":
		return builtinFunc(func(args []Value) (Value, error) {
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, v := range items {
				parts[i] = Str(v)
			}
			return strings.Join(parts, s), nil
		}), nil
	case "replace":
		return builtinFunc(func(args []Value) (Value, error) {
			old, _ := asString(args[0])
			new, _ := asString(args[1])
			return strings.ReplaceAll(s, old, new), nil
		}), nil
	case "startswith":
		return builtinFunc(func(args []Value) (Value, error) {
			p, _ := asString(args[0])
			return strings.HasPrefix(s, p), nil
		}), nil
	case "endswith":
		return builtinFunc(func(args []Value) (Value, error) {
			p, _ := asString(args[0])
			return strings.HasSuffix(s, p), nil
		}), nil
	case "format":
		return builtinFunc(func(args []Value) (Value, error) {
			out := s
			for _, a := range args {
				out = strings.Replace(out, "{}", Str(a), 1)
			}
			return out, nil
		}), nil
	case "find":
		return builtinFunc(func(args []Value) (Value, error) {
			sub, _ := asString(args[0])
			return float64(indexOfSubstring(s, sub)), nil
		}), nil
	case "title":
		return builtinFunc(func(args []Value) (Value, error) { return strings.Title(strings.ToLower(s)), nil }), nil
	default:
		return nil, fmt.Errorf("interp: str has no attribute %q", name)
	}
}

func listMethod(l *List, name string) (Value, error) {
	switch name {
	case "append":
		return builtinFunc(func(args []Value) (Value, error) {
			l.Elems = append(l.Elems, args[0])
			return nil, nil
		}), nil
	case "extend":
		return builtinFunc(func(args []Value) (Value, error) {
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, items...)
			return nil, nil
		}), nil
	case "pop":
		return builtinFunc(func(args []Value) (Value, error) {
			if len(l.Elems) == 0 {
				return nil, fmt.Errorf("interp: pop from empty list")
			}
			idx := len(l.Elems) - 1
			if len(args) > 0 {
				f, _ := asFloat(args[0])
				idx = normalizeIndex(int(f), len(l.Elems))
			}
			v := l.Elems[idx]
			l.Elems = append(l.Elems[:idx], l.Elems[idx+1:]...)
			return v, nil
		}), nil
	case "sort":
		return builtinFunc(func(args []Value) (Value, error) {
			var cmpErr error
			sort.SliceStable(l.Elems, func(i, j int) bool {
				c, err := compareValues(l.Elems[i], l.Elems[j])
				if err != nil {
					cmpErr = err
				}
				return c < 0
			})
			return nil, cmpErr
		}), nil
	case "index":
		return builtinFunc(func(args []Value) (Value, error) {
			for i, e := range l.Elems {
				if equalValues(e, args[0]) {
					return float64(i), nil
				}
			}
			return nil, fmt.Errorf("interp: value not in list")
		}), nil
	case "count":
		return builtinFunc(func(args []Value) (Value, error) {
			n := 0
			for _, e := range l.Elems {
				if equalValues(e, args[0]) {
					n++
				}
			}
			return float64(n), nil
		}), nil
	default:
		return nil, fmt.Errorf("interp: list has no attribute %q", name)
	}
}

func dictMethod(d *Dict, name string) (Value, error) {
	switch name {
	case "get":
		return builtinFunc(func(args []Value) (Value, error) {
			key, _ := asString(args[0])
			if v, ok := d.Get(key); ok {
				return v, nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return nil, nil
		}), nil
	case "keys":
		return builtinFunc(func(args []Value) (Value, error) {
			out := make([]Value, len(d.Keys()))
			for i, k := range d.Keys() {
				out[i] = k
			}
			return &List{Elems: out}, nil
		}), nil
	case "values":
		return builtinFunc(func(args []Value) (Value, error) {
			out := make([]Value, 0, d.Len())
			for _, k := range d.Keys() {
				v, _ := d.Get(k)
				out = append(out, v)
			}
			return &List{Elems: out}, nil
		}), nil
	case "items":
		return builtinFunc(func(args []Value) (Value, error) {
			out := make([]Value, 0, d.Len())
			for _, k := range d.Keys() {
				v, _ := d.Get(k)
				out = append(out, &List{Elems: []Value{k, v}})
			}
			return &List{Elems: out}, nil
		}), nil
	default:
		return nil, fmt.Errorf("interp: dict has no attribute %q", name)
	}
}
