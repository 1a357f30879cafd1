package cli

import (
	"github.com/BartekS5/taprun/internal/etl"
	"github.com/spf13/cobra"
)

func NewDiscoverCmd(opts *GlobalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover the tap catalog and write the selected properties file",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := buildSettings(c, opts, true)
			if err != nil {
				return err
			}
			p := etl.NewPipeline(s, newRunner(s), nil, c.OutOrStdout())
			configPath, err := p.EnsureConfig()
			if err != nil {
				return err
			}
			_, err = p.EnsureProperties(c.Context(), configPath, force)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-discover even if a properties file exists")
	return cmd
}
