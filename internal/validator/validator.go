// Package validator validates JSON messages against their registered schemas.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jittakal/tabular2mcap/internal/errors"
)

// JSONValidator validates messages against compiled JSON schemas.
type JSONValidator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles data and stores it under name, replacing any schema
// registered before.
func (v *JSONValidator) Register(name string, data []byte) error {
	url := "mem://schemas/" + strings.ReplaceAll(name, "/", "_") + ".json"

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return &errors.SchemaError{Name: name, Encoding: "jsonschema", Err: err}
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return &errors.SchemaError{Name: name, Encoding: "jsonschema", Err: err}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[name] = compiled
	return nil
}

// Validate checks msg against the schema registered as name. msg is
// round-tripped through JSON so Go values validate like the written payload.
func (v *JSONValidator) Validate(name string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &errors.ValidationError{Field: name, Reason: fmt.Sprintf("message is not JSON encodable: %v", err)}
	}
	return v.ValidateJSON(name, data)
}

// ValidateJSON checks an encoded JSON message against the schema registered
// as name.
func (v *JSONValidator) ValidateJSON(name string, data []byte) error {
	v.mu.RLock()
	compiled, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return &errors.SchemaError{Name: name, Encoding: "jsonschema", Err: errors.ErrUnknownSchema}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &errors.ValidationError{Field: name, Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if err := compiled.Validate(doc); err != nil {
		return &errors.ValidationError{Field: name, Reason: err.Error()}
	}
	return nil
}
