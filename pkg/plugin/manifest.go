package plugin

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dshills/cmdkit/pkg/command"
	"github.com/dshills/cmdkit/pkg/host"
	"github.com/dshills/cmdkit/pkg/validation"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// Manifest is a YAML or JSON file declaring script commands.
//
//	module: scene.tools
//	commands:
//	  - id: scene.rename
//	    creator: pipeline
//	    version: 1.0.0
//	    undoable: true
//	    parameters:
//	      - name: node
//	        default: root
//	      - name: name
//	        default: node1
//	    cancel_if: name == ""
//	    set:
//	      ${node}.name: name
//	    result: attr(node + ".name")
type Manifest struct {
	Module   string        `yaml:"module" json:"module,omitempty"`
	Commands []CommandSpec `yaml:"commands" json:"commands"`
}

// CommandSpec declares one script command.
type CommandSpec struct {
	ID              string            `yaml:"id" json:"id"`
	Creator         string            `yaml:"creator" json:"creator"`
	Version         string            `yaml:"version" json:"version,omitempty"`
	Undoable        bool              `yaml:"undoable" json:"undoable,omitempty"`
	Enabled         *bool             `yaml:"enabled" json:"enabled,omitempty"`
	UI              command.UIData    `yaml:"ui" json:"ui,omitempty"`
	Parameters      []ParameterSpec   `yaml:"parameters" json:"parameters,omitempty"`
	ArgumentsSchema map[string]any    `yaml:"arguments_schema" json:"arguments_schema,omitempty"`
	CancelIf        string            `yaml:"cancel_if" json:"cancel_if,omitempty"`
	CancelMessage   string            `yaml:"cancel_message" json:"cancel_message,omitempty"`
	Set             map[string]string `yaml:"set" json:"set,omitempty"`
	Result          string            `yaml:"result" json:"result,omitempty"`
}

// ParameterSpec declares one parameter of a script command.
type ParameterSpec struct {
	Name        string `yaml:"name" json:"name"`
	Default     any    `yaml:"default" json:"default,omitempty"`
	Required    bool   `yaml:"required" json:"required,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// ValidateManifest checks raw manifest bytes against the manifest JSON schema.
// JSON input is accepted since it is valid YAML.
func ValidateManifest(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrInvalidManifest)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: failed to parse: %v", ErrInvalidManifest, err)
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: failed to convert to JSON: %v", ErrInvalidManifest, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(manifestSchema),
		gojsonschema.NewBytesLoader(jsonBytes),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(msgs, "; "))
	}
	return nil
}

// ParseManifest validates and decodes a manifest. Beyond the schema it checks
// command ids, versions, duplicate ids and that every expression compiles.
func ParseManifest(data []byte, eval *Evaluator) (*Manifest, error) {
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	seen := make(map[string]bool, len(m.Commands))
	for i := range m.Commands {
		spec := &m.Commands[i]
		if err := validation.ValidateCommandID(spec.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("%w: command %q declared twice", ErrInvalidManifest, spec.ID)
		}
		seen[spec.ID] = true

		if spec.Version != "" {
			if _, err := semver.NewVersion(spec.Version); err != nil {
				return nil, fmt.Errorf("%w: command %q: version %q: %v", ErrInvalidManifest, spec.ID, spec.Version, err)
			}
		}
		for _, expression := range spec.expressions() {
			if err := eval.Check(expression); err != nil {
				return nil, fmt.Errorf("%w: command %q: %v", ErrInvalidManifest, spec.ID, err)
			}
		}
	}
	return &m, nil
}

// expressions lists every expression the command declares.
func (s *CommandSpec) expressions() []string {
	var out []string
	if s.CancelIf != "" {
		out = append(out, s.CancelIf)
	}
	for _, k := range sortedKeys(s.Set) {
		out = append(out, s.Set[k])
	}
	if s.Result != "" {
		out = append(out, s.Result)
	}
	return out
}

// ManifestLoader reads script command manifests for a registry. Every command
// it creates reads and writes scene.
type ManifestLoader struct {
	scene  host.Scene
	eval   *Evaluator
	logger *zap.Logger
}

// NewManifestLoader creates a loader whose commands act on scene.
func NewManifestLoader(scene host.Scene, logger *zap.Logger) *ManifestLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestLoader{
		scene:  scene,
		eval:   NewEvaluator(),
		logger: logger.Named("manifest"),
	}
}

// Extensions implements registry.Loader.
func (l *ManifestLoader) Extensions() []string {
	return []string{".yaml", ".yml", ".json"}
}

// Load implements registry.Loader.
func (l *ManifestLoader) Load(path string) ([]command.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data, l.eval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	module := m.Module
	if module == "" {
		module = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	defs := make([]command.Definition, 0, len(m.Commands))
	for i := range m.Commands {
		spec := m.Commands[i]
		argsSchema, err := compileArgumentsSchema(spec.ArgumentsSchema)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: command %q: arguments_schema: %v", path, ErrInvalidManifest, spec.ID, err)
		}

		def := command.Definition{
			ID:      spec.ID,
			Creator: spec.Creator,
			Module:  module,
			Source:  path,
			New: func() command.Command {
				return newScriptCommand(&spec, argsSchema, l.scene, l.eval)
			},
		}
		if spec.Version != "" {
			def.Version = semver.MustParse(spec.Version)
		}
		defs = append(defs, def)
	}

	l.logger.Debug("loaded manifest",
		zap.String("path", path),
		zap.String("module", module),
		zap.Int("commands", len(defs)),
	)
	return defs, nil
}

func compileArgumentsSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}
