// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError lists every schema violation found in a document
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("parameter validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// ValidateParams validates parameters against a JSON schema
func ValidateParams(schema map[string]interface{}, params interface{}) error {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("schema validation error: failed to serialize schema: %w", err)
	}
	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)

	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("schema validation error: failed to serialize params: %w", err)
	}
	documentLoader := gojsonschema.NewBytesLoader(paramsBytes)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		verr := &ValidationError{}
		for _, re := range result.Errors() {
			verr.Issues = append(verr.Issues, re.String())
		}
		return verr
	}

	return nil
}

// Enum builds a string property restricted to values
func Enum(values ...string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{"type": "string", "enum": enum}
}

// Pattern builds a string property matching re
func Pattern(re string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "pattern": re}
}

// NonEmpty builds a string property with at least one character
func NonEmpty() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1}
}
