package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/flowmig/internal/runtime"
)

// Record kinds as named in assertions, mapped to snapshot sections.
var kindSections = map[string]string{
	"execution":          "executions",
	"job":                "jobs",
	"event_subscription": "event_subscriptions",
	"task":               "tasks",
	"variable":           "variables",
	"incident":           "incidents",
}

var validKinds = func() map[string]bool {
	m := make(map[string]bool, len(kindSections))
	for k := range kindSections {
		m[k] = true
	}
	return m
}()

// recordOrder is the order kinds are rendered in.
var recordOrder = []string{"execution", "job", "event_subscription", "task", "variable", "incident"}

// Record is one runtime record flattened to string fields, keyed as in
// fixtures and snapshots.
type Record map[string]string

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Instance string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Instance)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	state, ok := result.States[a.Instance]
	if !ok {
		return fmt.Errorf("unknown process instance %s", a.Instance)
	}
	switch a.Type {
	case AssertActivityTree:
		return assertActivityTree(state, a)
	case AssertRecord:
		return assertRecord(state, a)
	case AssertRecordCount:
		return assertRecordCount(state, a)
	case AssertUnchanged:
		return assertUnchanged(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertActivityTree(state *runtime.State, a Assertion) error {
	root, err := state.ActivityInstanceTree(a.Instance)
	if err != nil {
		return &AssertionError{Type: a.Type, Instance: a.Instance, Expected: a.Tree, Actual: err.Error()}
	}
	got := root.Format()
	if strings.TrimSpace(got) != strings.TrimSpace(a.Tree) {
		return &AssertionError{Type: a.Type, Instance: a.Instance, Expected: a.Tree, Actual: got}
	}
	return nil
}

func assertRecord(state *runtime.State, a Assertion) error {
	records, err := Records(state, a.Instance, a.Kind)
	if err != nil {
		return err
	}
	matches := filter(records, a.Where)
	if len(matches) != 1 {
		return &AssertionError{
			Type:     a.Type,
			Instance: a.Instance,
			Expected: fmt.Sprintf("one %s where %s", a.Kind, formatFields(a.Where)),
			Actual:   fmt.Sprintf("%d matches", len(matches)),
		}
	}
	got := matches[0]
	for _, k := range sortedKeys(a.Expect) {
		if got[k] != a.Expect[k] {
			return &AssertionError{
				Type:     a.Type,
				Instance: a.Instance,
				Expected: fmt.Sprintf("%s.%s = %q", a.Kind, k, a.Expect[k]),
				Actual:   fmt.Sprintf("%q", got[k]),
			}
		}
	}
	return nil
}

func assertRecordCount(state *runtime.State, a Assertion) error {
	records, err := Records(state, a.Instance, a.Kind)
	if err != nil {
		return err
	}
	n := len(filter(records, a.Where))
	if n != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Instance: a.Instance,
			Expected: fmt.Sprintf("%d %s records where %s", a.Count, a.Kind, formatFields(a.Where)),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

func assertUnchanged(result *Result, a Assertion) error {
	if result.Before[a.Instance] != result.After[a.Instance] {
		return &AssertionError{
			Type:     a.Type,
			Instance: a.Instance,
			Expected: "fingerprint " + result.Before[a.Instance],
			Actual:   "fingerprint " + result.After[a.Instance],
		}
	}
	return nil
}

// Records returns the records of one kind of a process instance, ordered
// by id. Fields are the instance snapshot's, rendered as strings.
func Records(state *runtime.State, processInstanceID, kind string) ([]Record, error) {
	section, ok := kindSections[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	snap, err := state.Snapshot(processInstanceID)
	if err != nil {
		return nil, err
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(snap, &sections); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(sections[section]))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", section, err)
	}

	out := make([]Record, 0, len(rows))
	for _, raw := range rows {
		rec := make(Record, len(raw))
		for k, v := range raw {
			rec[k] = fmt.Sprint(v)
		}
		out = append(out, rec)
	}
	return out, nil
}

// filter returns the records whose fields contain where.
func filter(records []Record, where map[string]string) []Record {
	var out []Record
	for _, r := range records {
		if matchFields(r, where) {
			out = append(out, r)
		}
	}
	return out
}

func matchFields(r Record, want map[string]string) bool {
	for k, v := range want {
		if r[k] != v {
			return false
		}
	}
	return true
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, k+"="+fields[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
