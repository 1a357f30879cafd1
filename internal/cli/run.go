package cli

import (
	"github.com/BartekS5/taprun/internal/etl"
	"github.com/spf13/cobra"
)

func NewRunCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the tap and commit its checkpoint on success",
		Long: `Writes the tap config, makes sure a state file exists, discovers and selects
streams if no properties file is cached, then runs the tap. Every line the tap
prints on stdout is forwarded unchanged on stdout. The last STATE message is
committed only if the tap exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runTap(c, opts)
		},
	}
}

func runTap(cmd *cobra.Command, opts *GlobalOptions) error {
	s, err := buildSettings(cmd, opts, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, closeStore, err := openStore(ctx, s)
	if err != nil {
		return err
	}
	defer closeStore()

	p := etl.NewPipeline(s, newRunner(s), store, cmd.OutOrStdout())
	_, err = p.Run(ctx)
	return err
}
