package harness

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Render produces a stable text snapshot of a result: the outcome, the
// error text and, per instance, the activity instance tree and every
// record. Empty, false and zero fields are left out.
func Render(name string, result *Result) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "outcome: %s\n", result.Outcome)
	if result.Error != "" {
		b.WriteString("error:\n")
		for _, line := range strings.Split(result.Error, "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	for _, pi := range result.Instances {
		state := result.States[pi]
		fmt.Fprintf(&b, "instance %s:\n", pi)
		if len(state.Executions(pi)) == 0 {
			b.WriteString("  (none)\n")
			continue
		}
		root, err := state.ActivityInstanceTree(pi)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", pi, err)
		}
		for _, line := range strings.Split(strings.TrimSuffix(root.Format(), "\n"), "\n") {
			fmt.Fprintf(&b, "  | %s\n", line)
		}
		for _, kind := range recordOrder {
			records, err := Records(state, pi, kind)
			if err != nil {
				return "", err
			}
			for _, r := range records {
				fmt.Fprintf(&b, "  %s %s\n", kind, renderRecord(r))
			}
		}
	}
	return b.String(), nil
}

func renderRecord(r Record) string {
	keys := make([]string, 0, len(r))
	for k, v := range r {
		if k == "id" || v == "" || v == "false" || v == "0" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := []string{r["id"]}
	for _, k := range keys {
		parts = append(parts, k+"="+r[k])
	}
	return strings.Join(parts, " ")
}

// RunWithGolden executes a scenario and compares the rendered result
// against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the rendering doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	out, err := Render(scenarioName, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(out))
	return nil
}
