// Package monitor checks JSON payloads against a contract schema. Adapters use
// it to reject gateway answers that parse as JSON but do not carry the fields
// they depend on; the HTTP façade uses it on inbound request bodies.
package monitor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ContractMonitor validates documents against one compiled schema.
type ContractMonitor struct {
	name   string
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the schema stored at schemaPath.
func NewContractMonitor(schemaPath string) (*ContractMonitor, error) {
	abs, err := filepath.Abs(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("monitor: resolve schema path %s: %w", schemaPath, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + filepath.ToSlash(abs)))
	if err != nil {
		return nil, fmt.Errorf("monitor: compile schema %s: %w", schemaPath, err)
	}
	return &ContractMonitor{name: filepath.Base(schemaPath), schema: schema}, nil
}

// NewContractMonitorFromString compiles an inline schema. name labels it in
// error messages.
func NewContractMonitorFromString(name, schemaJSON string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("monitor: compile schema %s: %w", name, err)
	}
	return &ContractMonitor{name: name, schema: schema}, nil
}

// MustContractMonitor is NewContractMonitorFromString for package-level schemas.
func MustContractMonitor(name, schemaJSON string) *ContractMonitor {
	m, err := NewContractMonitorFromString(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the schema label.
func (cm *ContractMonitor) Name() string { return cm.name }

// Validate reports whether body conforms to the schema. A body that is not
// JSON at all yields an error rather than a list of violations.
func (cm *ContractMonitor) Validate(body []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validate against %s: %w", cm.name, err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violations into one message.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(violations, "; ")
}
