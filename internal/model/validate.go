package model

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/analysis.schema.json
var analysisSchema []byte

// SchemaValidator checks generated analyses against analysis.schema.json.
// It satisfies ai.Validator.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(analysisSchema))
	if err != nil {
		return nil, fmt.Errorf("loading analysis schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate returns an error listing every schema violation in m.
func (v *SchemaValidator) Validate(m map[string]any) error {
	res, err := v.schema.Validate(gojsonschema.NewGoLoader(m))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
