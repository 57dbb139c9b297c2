package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// SnapshotDomain separates snapshot fingerprints from other hashes.
const SnapshotDomain = "flowmig/snapshot/v1"

// MarshalCanonical produces RFC 8785 canonical JSON.
//
// Accepted values: string, int, int64, bool, []string, []any and
// map[string]any of those. Keys are sorted by UTF-16 code units, strings are
// NFC normalized, HTML characters are not escaped. Floats and nil are
// rejected.
func MarshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(val)
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return marshalCanonicalArray(arr)
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString escapes only control characters, backslash and
// quote. U+2028 and U+2029 stay literal.
func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes produced by
// encoding/json back into literal characters, leaving an escaped backslash
// followed by "u2028" untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+1 < len(data) {
			if i+5 < len(data) && data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
				(data[i+5] == '8' || data[i+5] == '9') {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
			// Any other escape pair is copied whole so an escaped backslash
			// never starts a new sequence.
			out = append(out, data[i], data[i+1])
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := MarshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Snapshot renders every record of a process instance as canonical JSON.
// Records are ordered by id so the bytes depend only on content.
func (s *State) Snapshot(processInstanceID string) ([]byte, error) {
	var executions []any
	for _, e := range sortedByID(s.Executions(processInstanceID), func(e *Execution) string { return e.ID }) {
		executions = append(executions, map[string]any{
			"id":                e.ID,
			"parent":            e.ParentID,
			"definition":        e.ProcessDefinitionID,
			"activity":          e.ActivityID,
			"activity_instance": e.ActivityInstanceID,
			"scope":             e.IsScope,
			"concurrent":        e.IsConcurrent,
			"active":            e.IsActive,
			"event_scope":       e.IsEventScope,
		})
	}
	var jobs []any
	for _, j := range sortedByID(s.Jobs(processInstanceID), func(j *Job) string { return j.ID }) {
		jobs = append(jobs, map[string]any{
			"id":             j.ID,
			"type":           string(j.Type),
			"execution":      j.ExecutionID,
			"definition":     j.ProcessDefinitionID,
			"activity":       j.ActivityID,
			"job_definition": j.JobDefinitionID,
			"config":         j.Config,
			"due":            formatTime(j.DueDate),
			"retries":        j.Retries,
			"exception":      j.ExceptionMessage,
		})
	}
	var subscriptions []any
	for _, es := range sortedByID(s.EventSubscriptions(processInstanceID), func(es *EventSubscription) string { return es.ID }) {
		subscriptions = append(subscriptions, map[string]any{
			"id":            es.ID,
			"type":          string(es.Type),
			"name":          es.EventName,
			"execution":     es.ExecutionID,
			"activity":      es.ActivityID,
			"configuration": es.Configuration,
		})
	}
	var tasks []any
	for _, t := range sortedByID(s.Tasks(processInstanceID), func(t *Task) string { return t.ID }) {
		tasks = append(tasks, map[string]any{
			"id":         t.ID,
			"name":       t.Name,
			"execution":  t.ExecutionID,
			"definition": t.ProcessDefinitionID,
			"activity":   t.TaskDefinitionKey,
			"assignee":   t.Assignee,
		})
	}
	var variables []any
	for _, v := range sortedByID(s.Variables(processInstanceID), func(v *Variable) string { return v.ID }) {
		variables = append(variables, map[string]any{
			"id":        v.ID,
			"name":      v.Name,
			"value":     v.Value,
			"execution": v.ExecutionID,
		})
	}
	var incidents []any
	for _, in := range sortedByID(s.Incidents(processInstanceID), func(i *Incident) string { return i.ID }) {
		incidents = append(incidents, map[string]any{
			"id":         in.ID,
			"type":       in.Type,
			"execution":  in.ExecutionID,
			"definition": in.ProcessDefinitionID,
			"activity":   in.ActivityID,
			"job":        in.JobID,
			"message":    in.Message,
		})
	}

	return MarshalCanonical(map[string]any{
		"process_instance":    processInstanceID,
		"executions":          orEmpty(executions),
		"jobs":                orEmpty(jobs),
		"event_subscriptions": orEmpty(subscriptions),
		"tasks":               orEmpty(tasks),
		"variables":           orEmpty(variables),
		"incidents":           orEmpty(incidents),
	})
}

// Fingerprint hashes the snapshot of a process instance:
// SHA256(SnapshotDomain + 0x00 + snapshot), hex encoded.
func (s *State) Fingerprint(processInstanceID string) (string, error) {
	snap, err := s.Snapshot(processInstanceID)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(SnapshotDomain))
	h.Write([]byte{0x00})
	h.Write(snap)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedByID[T any](in []*T, id func(*T) string) []*T {
	out := slices.Clone(in)
	sort.SliceStable(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func orEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
