package conformance

import (
	"fmt"
	"strings"

	"droplet/check"
	"droplet/codegen"
	"droplet/lexer"
	"droplet/loader"
	"droplet/modloader"
	"droplet/natives"
	"droplet/parser"
	"droplet/vm"
)

// TestResult is the outcome of running a single scenario.
type TestResult struct {
	Test       LoadedTest
	Passed     bool
	Skipped    bool
	SkipReason string
	Error      error
}

// Runner compiles and executes one scenario at a time. It holds no
// state between runs — every test gets its own fresh VM — since Droplet
// programs are not meant to share a database the way the teacher's MOO
// verbs shared one.
type Runner struct {
	ModuleSearchRoots []string
}

// NewRunner creates a runner that resolves imports relative to the
// current directory.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes a single scenario and checks it against its expectation.
func (r *Runner) Run(test LoadedTest) TestResult {
	if skipped, reason := test.Test.IsSkipped(); skipped {
		return TestResult{Test: test, Skipped: true, SkipReason: reason}
	}

	tc := test.Test
	entry := tc.Entry
	if entry == "" {
		entry = "main"
	}

	p := parser.NewParser(tc.Source)
	prog, err := p.ParseProgram()
	if err != nil {
		return r.checkCompileError(test, err)
	}

	ldr := modloader.NewLoader(r.ModuleSearchRoots)
	result, err := check.NewChecker(ldr).Check(prog)
	if err != nil {
		return r.checkCompileError(test, err)
	}

	g, err := codegen.Generate(ldr, prog, result, "conformance.drop")
	if err != nil {
		return r.checkCompileError(test, err)
	}

	data, werr := g.Builder().Write()
	if werr != nil {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("serializing bytecode: %w", werr)}
	}

	var stdout strings.Builder
	registerNatives := func(vv *vm.VM) { natives.Register(vv, &stdout, nil) }
	v, lerr := loader.LoadBytes(data, registerNatives, nil)
	if lerr != nil {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("loading bytecode: %w", lerr)}
	}

	if serr := loader.RunStaticInits(v, g.StaticInitOrder()); serr != nil {
		return r.checkRuntimeError(test, serr, stdout.String())
	}

	retVal, rerr := v.CallByName(entry, nil)
	if rerr != nil {
		return r.checkRuntimeError(test, rerr, stdout.String())
	}

	return r.checkExpectation(test, stdout.String(), retVal)
}

// RunAll executes every loaded scenario.
func (r *Runner) RunAll(tests []LoadedTest) []TestResult {
	results := make([]TestResult, len(tests))
	for i, test := range tests {
		results[i] = r.Run(test)
	}
	return results
}

// SummaryStats computes pass/fail/skip counts.
type SummaryStats struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// ComputeStats tallies a batch of results.
func ComputeStats(results []TestResult) SummaryStats {
	stats := SummaryStats{Total: len(results)}
	for _, res := range results {
		switch {
		case res.Skipped:
			stats.Skipped++
		case res.Passed:
			stats.Passed++
		default:
			stats.Failed++
		}
	}
	return stats
}

// FormatStats renders a human-readable summary line.
func FormatStats(stats SummaryStats) string {
	return fmt.Sprintf("%d passed, %d failed, %d skipped (%d total)",
		stats.Passed, stats.Failed, stats.Skipped, stats.Total)
}

func (r *Runner) checkCompileError(test LoadedTest, err error) TestResult {
	expect := test.Test.Expect.CompileError
	if expect == "" {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("unexpected compile error: %w", err)}
	}
	switch err.(type) {
	case *lexer.LexError, *parser.ParseError, *check.TypeError:
		if strings.Contains(err.Error(), expect) {
			return TestResult{Test: test, Passed: true}
		}
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("expected compile error containing %q, got %q", expect, err.Error())}
	default:
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("unexpected non-typed compile failure: %w", err)}
	}
}

func (r *Runner) checkRuntimeError(test LoadedTest, err error, stdoutSoFar string) TestResult {
	expect := test.Test.Expect.RuntimeError
	if expect == "" {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("unexpected runtime error (stdout so far %q): %w", stdoutSoFar, err)}
	}
	if strings.Contains(err.Error(), expect) {
		return TestResult{Test: test, Passed: true}
	}
	return TestResult{Test: test, Passed: false, Error: fmt.Errorf("expected runtime error containing %q, got %q", expect, err.Error())}
}

func (r *Runner) checkExpectation(test LoadedTest, stdout string, retVal vm.Value) TestResult {
	expect := test.Test.Expect

	if expect.Stdout != nil {
		got := strings.TrimRight(stdout, "\n")
		want := strings.TrimRight(*expect.Stdout, "\n")
		if got != want {
			return TestResult{Test: test, Passed: false, Error: fmt.Errorf("expected stdout %q, got %q", want, got)}
		}
	}

	if expect.StdoutContains != "" && !strings.Contains(stdout, expect.StdoutContains) {
		return TestResult{Test: test, Passed: false, Error: fmt.Errorf("expected stdout to contain %q, got %q", expect.StdoutContains, stdout)}
	}

	if expect.Result != nil {
		if err := checkValue(*expect.Result, retVal); err != nil {
			return TestResult{Test: test, Passed: false, Error: err}
		}
	}

	return TestResult{Test: test, Passed: true}
}

func checkValue(want Value, got vm.Value) error {
	switch {
	case want.IsNil:
		if got.Tag != vm.TagNil {
			return fmt.Errorf("expected nil, got %v", got)
		}
	case want.Int != nil:
		if got.Tag != vm.TagInt64 || got.I != *want.Int {
			return fmt.Errorf("expected int %d, got %v", *want.Int, got)
		}
	case want.Float != nil:
		if got.Tag != vm.TagDouble || got.F != *want.Float {
			return fmt.Errorf("expected float %v, got %v", *want.Float, got)
		}
	case want.Bool != nil:
		if got.Tag != vm.TagBool || got.B != *want.Bool {
			return fmt.Errorf("expected bool %v, got %v", *want.Bool, got)
		}
	case want.Str != nil:
		if got.String() != *want.Str {
			return fmt.Errorf("expected str %q, got %q", *want.Str, got.String())
		}
	}
	return nil
}
