package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/models"
	"github.com/BartekS5/taprun/pkg/utils"
)

// Options are the command-line inputs to Build. Empty strings mean "not set".
type Options struct {
	PipelineFile string
	EnvFile      string
	WorkDir      string
	TapBin       string
	ConfigPath   string
	Properties   string
	StatePath    string
	StateBackend string
	MetricsFile  string
	Session      io.Reader

	// SkipRequired skips the required-key check, for commands that never
	// start the tap.
	SkipRequired bool

	// Lookup overrides os.LookupEnv, mainly for tests.
	Lookup func(string) (string, bool)
}

// Paths are the three resources handed to the tap.
type Paths struct {
	WorkDir    string
	Config     string
	Properties string
	State      string

	// ConfigOverride and PropertiesOverride are set when the path came from a
	// flag or environment variable rather than the default naming.
	ConfigOverride     bool
	PropertiesOverride bool
}

// Settings is everything one run needs, resolved up front.
type Settings struct {
	Pipeline  models.PipelineDefinition
	RunConfig RunConfig
	Paths     Paths
	TapBinary string
	EnvPrefix string
	Env       *Env
}

// Build resolves Options into Settings. Every failure is a ConfigError.
func Build(opts Options) (*Settings, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	def, err := resolvePipeline(opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, err, "Config", "LoadPipeline")
	}
	if opts.StateBackend != "" {
		def.State.Backend = opts.StateBackend
	}
	switch def.State.Backend {
	case BackendFile, BackendMongo, BackendSQLServer:
	default:
		return nil, apperrors.Wrap(apperrors.KindConfig, fmt.Errorf("unknown state backend %q", def.State.Backend), "Config", "Build")
	}
	if opts.MetricsFile != "" {
		def.MetricsFile = opts.MetricsFile
	}

	env, err := LoadEnv(opts.EnvFile, lookup)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, err, "Config", "LoadEnv")
	}

	mapping := def.Config
	if opts.SkipRequired {
		mapping.Required = nil
	}
	runCfg, err := buildRunConfig(mapping, env, ReadSession(opts.Session))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, err, "Config", "BuildRunConfig")
	}

	prefix := EnvPrefix(def.Tap)
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = def.WorkDir
	}
	if workDir == "" {
		workDir = "."
	}

	paths := Paths{WorkDir: workDir}
	paths.Config, paths.ConfigOverride = resolvePath(workDir, opts.ConfigPath, env, prefix+"_CONFIG", def.Tap+"-config.json")
	paths.Properties, paths.PropertiesOverride = resolvePath(workDir, opts.Properties, env, prefix+"_PROPERTIES", def.Tap+"-properties.json")
	paths.State, _ = resolvePath(workDir, opts.StatePath, env, prefix+"_STATE", def.Tap+"-state.json")

	binary := opts.TapBin
	if binary == "" {
		if v, ok := env.Lookup(prefix + "_BIN"); ok && v != "" {
			binary = v
		}
	}
	if binary == "" {
		binary = def.Binary
	}

	return &Settings{
		Pipeline:  def,
		RunConfig: runCfg,
		Paths:     paths,
		TapBinary: binary,
		EnvPrefix: prefix,
		Env:       env,
	}, nil
}

func resolvePipeline(opts Options) (models.PipelineDefinition, error) {
	if opts.PipelineFile != "" {
		return LoadPipeline(opts.PipelineFile)
	}
	candidate := DefaultPipelineFile
	if opts.WorkDir != "" {
		candidate = filepath.Join(opts.WorkDir, DefaultPipelineFile)
	}
	if utils.FileExists(candidate) {
		return LoadPipeline(candidate)
	}
	return DefaultPipeline(), nil
}

func buildRunConfig(mapping models.ConfigMapping, env *Env, session map[string]any) (RunConfig, error) {
	values := make(map[string]any, len(mapping.Defaults)+len(mapping.Env))
	for k, v := range mapping.Defaults {
		values[k] = v
	}
	for key, envVar := range mapping.Env {
		if v, ok := env.Lookup(envVar); ok {
			values[key] = v
		}
	}

	if v, ok := SessionStartDate(session, mapping.SessionKeys); ok {
		for _, key := range mapping.DateKeys {
			values[key] = v
		}
	}

	for _, key := range mapping.DateKeys {
		raw, ok := values[key]
		if !ok || raw == "" {
			continue
		}
		normalized, err := utils.NormalizeDate(raw)
		if err != nil {
			return RunConfig{}, fmt.Errorf("config key %q: %w", key, err)
		}
		values[key] = normalized
	}

	for _, key := range mapping.Required {
		v, ok := values[key]
		if !ok {
			return RunConfig{}, fmt.Errorf("required config key %q is not set (env %s)", key, mapping.Env[key])
		}
		s, err := utils.ConvertToString(v)
		if err != nil || s == "" {
			return RunConfig{}, fmt.Errorf("required config key %q is empty (env %s)", key, mapping.Env[key])
		}
	}
	return NewRunConfig(values), nil
}

// resolvePath applies flag > env > default naming. Relative paths are
// anchored at workDir and returned absolute.
func resolvePath(workDir, flagValue string, env *Env, envVar, defaultName string) (string, bool) {
	p, override := defaultName, false
	if v, ok := env.Lookup(envVar); ok && v != "" {
		p, override = v, true
	}
	if flagValue != "" {
		p, override = flagValue, true
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p, override
}
