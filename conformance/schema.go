package conformance

// TestSuite represents a complete YAML scenario file: one or more
// whole Droplet programs, each checked against its observable output.
type TestSuite struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Tests       []TestCase `yaml:"tests"`
}

// TestCase is one compile-and-run scenario.
type TestCase struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Skip        interface{} `yaml:"skip,omitempty"` // bool or string
	Source      string      `yaml:"source"`         // a complete .drop program
	Entry       string      `yaml:"entry,omitempty"` // defaults to "main"
	Expect      Expectation `yaml:"expect"`
}

// Expectation defines what a test case's run must produce. Exactly one
// of Stdout/StdoutContains/CompileError/RuntimeError is normally set;
// Result additionally checks the entry function's return value when
// present.
type Expectation struct {
	Stdout         *string `yaml:"stdout,omitempty"`          // exact match against everything written via println
	StdoutContains string  `yaml:"stdout_contains,omitempty"` // substring match
	CompileError   string  `yaml:"compile_error,omitempty"`   // substring expected in a lex/parse/type error
	RuntimeError   string  `yaml:"runtime_error,omitempty"`   // substring expected in a vm.RuntimeError
	Result         *Value  `yaml:"result,omitempty"`          // expected entry-function return value
}

// Value is a small literal used to describe an expected vm.Value
// without importing vm into the YAML-decoding layer.
type Value struct {
	Int    *int64  `yaml:"int,omitempty"`
	Float  *float64 `yaml:"float,omitempty"`
	Str    *string `yaml:"str,omitempty"`
	Bool   *bool   `yaml:"bool,omitempty"`
	IsNil  bool    `yaml:"nil,omitempty"`
}

// IsSkipped reports whether this test case should be skipped, and why.
func (tc *TestCase) IsSkipped() (bool, string) {
	if tc.Skip == nil {
		return false, ""
	}
	switch v := tc.Skip.(type) {
	case bool:
		if v {
			return true, "skipped"
		}
		return false, ""
	case string:
		return true, v
	default:
		return false, ""
	}
}
