package conformance

import "testing"

const testdataDir = "testdata"

func TestConformance(t *testing.T) {
	tests, err := LoadAllTests(testdataDir)
	if err != nil {
		t.Fatalf("failed to load scenarios: %v", err)
	}
	if len(tests) == 0 {
		t.Fatal("no scenarios loaded")
	}

	runner := NewRunner()
	results := runner.RunAll(tests)
	stats := ComputeStats(results)

	fileGroups := make(map[string][]TestResult)
	for _, result := range results {
		fileGroups[result.Test.File] = append(fileGroups[result.Test.File], result)
	}

	for file, fileResults := range fileGroups {
		t.Run(file, func(t *testing.T) {
			for _, result := range fileResults {
				t.Run(result.Test.Test.Name, func(t *testing.T) {
					if result.Skipped {
						t.Skipf("skipped: %s", result.SkipReason)
					} else if !result.Passed {
						t.Errorf("scenario failed: %v", result.Error)
					}
				})
			}
		})
	}

	t.Logf("\n=== Summary ===\n%s", FormatStats(stats))
}

func TestLoadAllTests(t *testing.T) {
	tests, err := LoadAllTests(testdataDir)
	if err != nil {
		t.Fatalf("failed to load scenarios: %v", err)
	}
	if len(tests) == 0 {
		t.Fatal("expected at least one scenario")
	}
	for _, test := range tests {
		if test.Test.Name == "" {
			t.Errorf("scenario in %s has no name", test.File)
		}
		if test.Test.Source == "" {
			t.Errorf("scenario %q in %s has no source", test.Test.Name, test.File)
		}
	}
}
