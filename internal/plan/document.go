package plan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed plan.schema.json
var schemaJSON []byte

// DocumentError lists the schema violations of a plan document.
type DocumentError struct {
	Problems []string
}

func (e *DocumentError) Error() string {
	return "invalid plan document: " + strings.Join(e.Problems, "; ")
}

// Decode parses a JSON plan document after checking it against the plan
// schema. Schema violations are returned as *DocumentError. Decode does not
// check the plan against any definition; see Validator for that.
func Decode(data []byte) (*Plan, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validate plan document: %w", err)
	}
	if !result.Valid() {
		docErr := &DocumentError{}
		for _, desc := range result.Errors() {
			docErr.Problems = append(docErr.Problems, desc.String())
		}
		return nil, docErr
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan document: %w", err)
	}
	return &p, nil
}

// Encode renders a plan as an indented JSON document accepted by Decode.
func Encode(p *Plan) ([]byte, error) {
	out := *p
	if out.Instructions == nil {
		out.Instructions = []Instruction{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return append(data, '\n'), nil
}
