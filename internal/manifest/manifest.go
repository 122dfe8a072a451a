// Package manifest parses and validates manage.package instruction manifests.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the release asset that carries the instruction manifest.
const FileName = "manage.package"

// SupportedVersion is the only manifest version the engine executes.
const SupportedVersion = 1

// Action discriminates the Operation variants.
type Action string

const (
	ActionCopy   Action = "copy"
	ActionRun    Action = "run"
	ActionDelete Action = "delete"
)

// List identifies which operation list an Operation belongs to.
type List string

const (
	ListInstall   List = "install"
	ListUninstall List = "uninstall"
)

// AllowedIn reports whether the action may appear in the given list.
func (a Action) AllowedIn(l List) bool {
	switch l {
	case ListInstall:
		return a == ActionCopy || a == ActionRun
	case ListUninstall:
		return a == ActionDelete || a == ActionRun
	}
	return false
}

// ProcessEntry names a process that must not be running.
type ProcessEntry struct {
	Name string `json:"name" validate:"required"`
}

// Operation is one install or uninstall step.
type Operation struct {
	Action      Action `json:"action" validate:"required"`
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination,omitempty" validate:"required_if=Action copy"`
}

// InstructionManifest is the parsed content of manage.package.
type InstructionManifest struct {
	Version   int            `json:"version"`
	Processes []ProcessEntry `json:"processes,omitempty" validate:"dive"`
	Install   []Operation    `json:"install" validate:"dive"`
	Uninstall []Operation    `json:"uninstall" validate:"dive"`
}

// Supported reports whether the engine knows how to execute this manifest.
func (m *InstructionManifest) Supported() bool {
	return m.Version == SupportedVersion
}

// ProcessNames returns the guarded process names in manifest order.
func (m *InstructionManifest) ProcessNames() []string {
	names := make([]string, 0, len(m.Processes))
	for _, p := range m.Processes {
		names = append(names, p.Name)
	}
	return names
}

// SchemaError is returned when a manifest fails structural validation.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid manifest"
	}
	return "invalid manifest: " + strings.Join(e.Problems, "; ")
}

//go:embed schema/manage.package.schema.json
var schemaJSON string

const schemaURL = "https://manage.schemas.local/manage.package.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("manifest schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
})

// Load reads and parses a manifest file.
func Load(path string) (*InstructionManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Parse(data)
}

// Parse validates raw manifest JSON against the schema, decodes it and
// checks the typed rules. Either the whole manifest is returned or nothing.
func Parse(data []byte) (*InstructionManifest, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, &SchemaError{Problems: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if err := schema.Validate(doc); err != nil {
		return nil, schemaErrorFrom(err)
	}

	var m InstructionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &SchemaError{Problems: []string{fmt.Sprintf("decoding manifest: %v", err)}}
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func schemaErrorFrom(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &SchemaError{Problems: []string{err.Error()}}
	}
	var problems []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			problems = append(problems, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return &SchemaError{Problems: problems}
}
