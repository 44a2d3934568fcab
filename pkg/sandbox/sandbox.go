// Package sandbox runs generated analysis code against a persistent
// namespace, one instance per search session. Import statements are
// checked against an allowlist before any statement runs; execution is bounded by
// a wall-clock timeout enforced by abandoning the worker goroutine rather
// than attempting to kill it; and a budgeted llm_query builtin lets
// generated code make a small, fixed number of sub-calls back into the
// policy model.
package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/kadirpekel/oraculum/pkg/sandbox/interp"
)

// Variant labels which search mode a sandbox serves. The sandbox stores
// it but does not act on it: both variants expose the same builtins and
// both accept FINAL_VAR() and test_rubric() markers.
type Variant string

const (
	VariantTranscript Variant = "transcript"
	VariantRubric     Variant = "rubric"
)

// defaultAllowedImports is the module allowlist enforced uniformly across
// both variants.
var defaultAllowedImports = map[string]bool{
	"re": true, "json": true, "math": true, "string": true,
	"collections": true, "functools": true, "itertools": true,
}

const (
	maxStdoutChars = 2000
	maxStderrChars = 1000
	maxReprChars   = 200
	maxLLMCalls    = 3
)

// Result is what one Execute call reports back to the caller.
type Result struct {
	Stdout    string
	Stderr    string
	Variables map[string]string // name -> bounded repr
	FinalVar  string            // value of the first FINAL_VAR()/test_rubric() marker found, if any
	HasFinal  bool
	Elapsed   time.Duration
}

// Sandbox is a persistent, stateful execution environment: the same
// underlying interp.Env survives across successive Execute calls within
// one session, so variables assigned in one call are visible in the next.
type Sandbox struct {
	variant Variant
	env     *interp.Env
	llm     interp.LLMQueryFunc
	timeout time.Duration
}

// New constructs a sandbox for one session. llmQuery may be nil, in
// which case llm_query() calls inside generated code return an error.
func New(variant Variant, timeout time.Duration, llmQuery interp.LLMQueryFunc) *Sandbox {
	return &Sandbox{
		variant: variant,
		env:     interp.NewEnv(),
		llm:     llmQuery,
		timeout: timeout,
	}
}

// Seed binds a value directly into the sandbox's namespace before any
// code runs. It's how host-injected data (a stratified sample the
// policy can iterate over, say) becomes visible to generated code
// without ever passing through Execute's code argument.
func (s *Sandbox) Seed(name string, value interp.Value) {
	s.env.Set(name, value)
}

// CallFunc invokes a function previously bound in the sandbox's
// namespace (typically by an earlier Execute call that ran a `def`)
// directly, without parsing any new source. This is how a caller scores
// data against a generated function while keeping that data out of the
// source text the function definition itself could inspect, and it
// shares Execute's timeout-by-abandonment behavior.
func (s *Sandbox) CallFunc(ctx context.Context, name string, args []interp.Value) (interp.Value, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it := interp.New(s.env, s.wrappedLLM(), maxLLMCalls)

	type callOutcome struct {
		val interp.Value
		err error
	}
	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("interp: panic during call: %v", r)}
			}
		}()
		v, err := it.CallNamed(runCtx, name, args)
		done <- callOutcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, apperr.SandboxFailure("call failed", out.err)
		}
		return out.val, nil
	case <-runCtx.Done():
		return nil, apperr.SandboxFailure("call timed out", runCtx.Err())
	}
}

var importLine = regexp.MustCompile(`(?m)^\s*(?:from\s+(\S+)\s+import|import\s+(\S+))`)

// finalMarkerPattern matches FINAL_VAR(name) and test_rubric(name) calls
// anywhere in source text, used both to validate the code references a
// final-answer marker and to resolve which namespace variable to report.
// The argument may be a bare identifier or a quoted string literal.
var finalMarkerPattern = regexp.MustCompile(`(?:FINAL_VAR|test_rubric)\(\s*(?:"([^"]*)"|'([^']*)'|([A-Za-z_][A-Za-z0-9_]*))\s*\)`)

// checkImports validates every import statement in code against the
// allowlist before any statement executes, so a disallowed import never
// has a chance to run arbitrary code first.
func checkImports(code string) error {
	for _, m := range importLine.FindAllStringSubmatch(code, -1) {
		mod := m[1]
		if mod == "" {
			mod = m[2]
		}
		mod = strings.SplitN(mod, ".", 2)[0]
		if !defaultAllowedImports[mod] {
			return apperr.SandboxFailure(fmt.Sprintf("import of %q is not allowed", mod), nil)
		}
	}
	return nil
}

// Execute runs code against the sandbox's persistent namespace, enforcing
// the wall-clock timeout by abandoning the worker goroutine if it runs
// past the deadline rather than attempting to interrupt it mid-statement.
func (s *Sandbox) Execute(ctx context.Context, code string) (*Result, error) {
	if err := checkImports(code); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it := interp.New(s.env, s.wrappedLLM(), maxLLMCalls)

	type runOutcome struct {
		err error
	}
	done := make(chan runOutcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runOutcome{err: fmt.Errorf("interp: panic during execution: %v", r)}
			}
		}()
		done <- runOutcome{err: it.Run(runCtx, code)}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		res := s.buildResult(it, code, elapsed)
		if out.err != nil {
			res.Stderr = truncate(res.Stderr+"\n"+out.err.Error(), maxStderrChars)
			return res, apperr.SandboxFailure("execution failed", out.err)
		}
		return res, nil
	case <-runCtx.Done():
		// The worker goroutine is abandoned; it may still be running and
		// writing into it.Env, but nothing reads from it again after this
		// point, so the abandoned goroutine's writes are harmless.
		elapsed := time.Since(start)
		res := s.buildResult(it, code, elapsed)
		res.Stderr = truncate(res.Stderr+"\nexecution timed out", maxStderrChars)
		return res, apperr.SandboxFailure("execution timed out", runCtx.Err())
	}
}

func (s *Sandbox) buildResult(it *interp.Interp, code string, elapsed time.Duration) *Result {
	res := &Result{
		Stdout:    truncate(it.Stdout.String(), maxStdoutChars),
		Stderr:    truncate(it.Stderr.String(), maxStderrChars),
		Variables: map[string]string{},
		Elapsed:   elapsed,
	}
	for name, v := range it.Env.Snapshot() {
		res.Variables[name] = boundedRepr(v)
	}
	if name, ok := s.resolveFinalVar(it, code); ok {
		res.FinalVar = name
		res.HasFinal = true
	}
	return res
}

// resolveFinalVar scans both the executed code and the interpreter's
// stdout for a FINAL_VAR/test_rubric marker and looks the named variable
// up in the namespace after execution completes. The marker is typically
// a bare statement evaluated for its side effect of naming the answer
// variable, not something that prints anything, so the code text itself
// has to be scanned too, not just stdout.
func (s *Sandbox) resolveFinalVar(it *interp.Interp, code string) (string, bool) {
	m := finalMarkerPattern.FindStringSubmatch(code + "\n" + it.Stdout.String())
	if m == nil {
		return "", false
	}
	name := m[1]
	if name == "" {
		name = m[2]
	}
	if name == "" {
		name = m[3]
	}
	v, ok := it.Env.Get(name)
	if !ok {
		return "", false
	}
	return boundedRepr(v), true
}

func boundedRepr(v interp.Value) string {
	r := interp.Repr(v)
	if len(r) > maxReprChars {
		return r[:maxReprChars] + "...[unrepresentable]"
	}
	return r
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// wrappedLLM returns the sandbox's LLM hook, or nil when the sandbox was
// built without one; interp's llm_query builtin reports an error for a
// nil hook.
func (s *Sandbox) wrappedLLM() interp.LLMQueryFunc {
	if s.llm == nil {
		return nil
	}
	return s.llm
}
