package cli

import (
	"errors"
	"os"

	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/spf13/cobra"
)

func NewCleanCmd(opts *GlobalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated tap files so the next run rebuilds them",
		Long: `Removes the generated config and the cached properties file, forcing the next
run to rewrite the config and re-run discovery. Files given through flags or
environment overrides are left alone. With --all the local state file is removed
too, which restarts extraction from the beginning when the file backend is used.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := buildSettings(c, opts, false)
			if err != nil {
				return err
			}

			var files []string
			if !s.Paths.ConfigOverride {
				files = append(files, s.Paths.Config)
			}
			if !s.Paths.PropertiesOverride {
				files = append(files, s.Paths.Properties)
			}
			if all {
				files = append(files, s.Paths.State)
			}

			for _, f := range files {
				err := os.Remove(f)
				switch {
				case err == nil:
					logger.Infof("Removed %s", f)
				case errors.Is(err, os.ErrNotExist):
				default:
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also remove the local state file")
	return cmd
}
