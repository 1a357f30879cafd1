package config

import (
	"fmt"
	"os"

	"github.com/BartekS5/taprun/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultPipelineFile is looked up in the working directory when no
// --pipeline flag is given.
const DefaultPipelineFile = "taprun.yaml"

// Backends accepted by state.backend.
const (
	BackendFile      = "file"
	BackendMongo     = "mongo"
	BackendSQLServer = "sqlserver"
)

// DefaultPipeline describes the GitHub tap the runner was first built for.
func DefaultPipeline() models.PipelineDefinition {
	return models.PipelineDefinition{
		Tap:     "tap-github",
		WorkDir: ".",
		Streams: []string{"issues", "pull_requests", "commits", "comments", "releases"},
		Config: models.ConfigMapping{
			Env: map[string]string{
				"access_token": "GITHUB_ACCESS_TOKEN",
				"repository":   "GITHUB_REPOSITORY",
				"start_date":   "GITHUB_START_DATE",
			},
			Defaults: map[string]string{
				"access_token": "",
				"repository":   "",
				"start_date":   "2023-01-01T00:00:00Z",
			},
			Required:    []string{"access_token", "repository"},
			SessionKeys: []string{"github_start_date", "start_date"},
			DateKeys:    []string{"start_date"},
		},
		State: models.StateBackend{Backend: BackendFile},
	}
}

// LoadPipeline reads a YAML pipeline definition. Fields the file leaves out
// keep their DefaultPipeline values, except that a file naming a different
// tap starts from an empty config mapping.
func LoadPipeline(path string) (models.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.PipelineDefinition{}, fmt.Errorf("failed to read pipeline file '%s': %w", path, err)
	}

	var head struct {
		Tap string `yaml:"tap"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return models.PipelineDefinition{}, fmt.Errorf("failed to parse pipeline file '%s': %w", path, err)
	}

	def := DefaultPipeline()
	if head.Tap != "" && head.Tap != def.Tap {
		def = models.PipelineDefinition{
			WorkDir: ".",
			State:   models.StateBackend{Backend: BackendFile},
		}
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return models.PipelineDefinition{}, fmt.Errorf("failed to parse pipeline file '%s': %w", path, err)
	}
	if def.Tap == "" {
		return models.PipelineDefinition{}, fmt.Errorf("pipeline file '%s' does not name a tap", path)
	}
	switch def.State.Backend {
	case "":
		def.State.Backend = BackendFile
	case BackendFile, BackendMongo, BackendSQLServer:
	default:
		return models.PipelineDefinition{}, fmt.Errorf("pipeline file '%s': unknown state backend %q", path, def.State.Backend)
	}
	return def, nil
}
