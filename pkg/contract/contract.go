// Package contract embeds the OpenAPI description of the report backend and
// validates payloads against it before they reach the working state.
package contract

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Schema names defined in the embedded document.
const (
	SchemaConfigResponse  = "ConfigResponse"
	SchemaGenerateRequest = "GenerateRequest"
	SchemaHealth          = "Health"
)

//go:embed openapi.yaml
var document []byte

// ErrSchemaNotFound is returned when a schema name is missing from the document.
var ErrSchemaNotFound = errors.New("contract: schema not found")

// Document returns the raw embedded OpenAPI document.
func Document() []byte {
	out := make([]byte, len(document))
	copy(out, document)
	return out
}

// Validator checks JSON payloads against component schemas.
type Validator struct {
	spec *openapi3.T
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Default returns a shared validator built from the embedded document.
func Default() (*Validator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = New(context.Background(), document)
	})
	return defaultValidator, defaultErr
}

// New loads and validates an OpenAPI document.
func New(ctx context.Context, raw []byte) (*Validator, error) {
	if len(raw) == 0 {
		return nil, errors.New("contract: document payload is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("contract: load document: %w", err)
	}
	if err := spec.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("contract: validate document: %w", err)
	}
	return &Validator{spec: spec}, nil
}

// ValidateJSON decodes raw and checks it against the named schema.
func (v *Validator) ValidateJSON(name string, raw []byte) error {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("contract: decode %s: %w", name, err)
	}
	return v.ValidateValue(name, value)
}

// ValidateValue checks an already decoded JSON value (maps, slices, float64)
// against the named schema.
func (v *Validator) ValidateValue(name string, value any) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}
	if err := schema.VisitJSON(value); err != nil {
		return fmt.Errorf("contract: %s: %w", name, err)
	}
	return nil
}

// Validate marshals payload to JSON and checks it against the named schema.
func (v *Validator) Validate(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("contract: encode %s: %w", name, err)
	}
	return v.ValidateJSON(name, raw)
}

func (v *Validator) schema(name string) (*openapi3.Schema, error) {
	if v == nil || v.spec == nil || v.spec.Components == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	ref, ok := v.spec.Components.Schemas[name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return ref.Value, nil
}
