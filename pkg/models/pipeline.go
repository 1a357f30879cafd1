package models

// PipelineDefinition describes which tap to run and how to build its
// config. It is read from taprun.yaml.
type PipelineDefinition struct {
	Tap         string        `yaml:"tap"`
	Binary      string        `yaml:"binary"`
	BaseArgs    []string      `yaml:"base_args"`
	WorkDir     string        `yaml:"work_dir"`
	Streams     []string      `yaml:"streams"`
	Config      ConfigMapping `yaml:"config"`
	State       StateBackend  `yaml:"state"`
	MetricsFile string        `yaml:"metrics_file"`
}

// ConfigMapping maps tap config keys to the environment variables that
// hold their values.
type ConfigMapping struct {
	Env         map[string]string `yaml:"env"`
	Defaults    map[string]string `yaml:"defaults"`
	Required    []string          `yaml:"required"`
	SessionKeys []string          `yaml:"session_keys"`
	DateKeys    []string          `yaml:"date_keys"`
}

// StateBackend selects where the committed checkpoint lives.
type StateBackend struct {
	Backend    string `yaml:"backend"` // file, mongo or sqlserver
	DSNEnv     string `yaml:"dsn_env"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Table      string `yaml:"table"`
}
