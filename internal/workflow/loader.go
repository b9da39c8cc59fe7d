package workflow

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultWorkflowID names the built-in pipeline.
const DefaultWorkflowID = "paneling"

// DefaultWorkflowDir is where project-level definitions live, relative to
// .paneler/.
const DefaultWorkflowDir = "workflows"

//go:embed definitions/*.yaml
var builtin embed.FS

// ParseDefinitionYAML decodes a workflow definition from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (WorkflowDefinition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return WorkflowDefinition{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	return def.Normalized()
}

// LoadDefinitionReader reads workflow definition data from an io.Reader.
func LoadDefinitionReader(r io.Reader) (WorkflowDefinition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a workflow definition from an explicit file path.
func LoadDefinitionFile(path string) (WorkflowDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return def, nil
}

// Builtin returns one of the definitions compiled into the binary.
func Builtin(id string) (WorkflowDefinition, error) {
	data, err := builtin.ReadFile("definitions/" + id + ".yaml")
	if err != nil {
		return WorkflowDefinition{}, fmt.Errorf("workflow: no built-in definition %s", id)
	}
	return ParseDefinitionYAML(data)
}

// Load prefers baseDir/<id>.yaml so a project can reshape the pipeline, and
// falls back to the built-in definition of the same id.
func Load(baseDir, id string) (WorkflowDefinition, error) {
	if id == "" {
		id = DefaultWorkflowID
	}
	if baseDir != "" {
		path := filepath.Join(baseDir, id+".yaml")
		if _, err := os.Stat(path); err == nil {
			return LoadDefinitionFile(path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return WorkflowDefinition{}, fmt.Errorf("workflow: stat %s: %w", path, err)
		}
	}
	return Builtin(id)
}
