package cli

import (
	"github.com/spf13/cobra"
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	PipelineFile string
	EnvFile      string
	WorkDir      string
	LogLevel     string
	TapBin       string
	ConfigPath   string
	Properties   string
	StatePath    string
	StateBackend string
	MetricsFile  string
	SessionFile  string
	NoStdin      bool
}

func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "taprun",
		Short: "taprun - run Singer taps with resumable checkpoints",
		Long: `taprun runs a Singer tap as a child process, forwards its output on stdout
for downstream ingestion, and commits the tap's last STATE only after a clean exit,
so the next run resumes where the last successful one stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVarP(&opts.PipelineFile, "pipeline", "p", "", "Path to the pipeline definition (default: taprun.yaml in the work dir, if present)")
	f.StringVar(&opts.EnvFile, "env-file", ".env", "Path to the .env file with tap credentials")
	f.StringVarP(&opts.WorkDir, "work-dir", "w", "", "Directory for generated config, properties and state files")
	f.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn or error (env TAPRUN_LOG_LEVEL)")
	f.StringVar(&opts.TapBin, "tap-bin", "", "Tap executable (env <TAP>_BIN)")
	f.StringVar(&opts.ConfigPath, "config", "", "Tap config file (env <TAP>_CONFIG)")
	f.StringVar(&opts.Properties, "properties", "", "Tap properties file (env <TAP>_PROPERTIES)")
	f.StringVar(&opts.StatePath, "state", "", "Tap state file (env <TAP>_STATE)")
	f.StringVar(&opts.StateBackend, "state-backend", "", "Checkpoint store: file, mongo or sqlserver")
	f.StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")
	f.StringVar(&opts.SessionFile, "session", "", "Read session JSON from this file instead of stdin")
	f.BoolVar(&opts.NoStdin, "no-stdin", false, "Do not read session JSON from stdin")

	rootCmd.AddCommand(
		NewRunCmd(opts),
		NewDiscoverCmd(opts),
		NewStateCmd(opts),
		NewCleanCmd(opts),
	)

	return rootCmd
}
