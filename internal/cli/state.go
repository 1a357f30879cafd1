package cli

import (
	"fmt"

	"github.com/BartekS5/taprun/internal/etl"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/spf13/cobra"
)

func NewStateCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the committed checkpoint",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the committed checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := buildSettings(c, opts, false)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(c.Context(), s)
			if err != nil {
				return err
			}
			defer closeStore()

			cp, ok, err := store.Load(c.Context())
			if err != nil {
				return err
			}
			if !ok {
				logger.Infof("No checkpoint committed yet in %s", store.Describe())
				fmt.Fprintln(c.OutOrStdout(), "{}")
				return nil
			}
			fmt.Fprintln(c.OutOrStdout(), string(cp.Value))
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Replace the committed checkpoint with an empty one",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			s, err := buildSettings(c, opts, false)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(c.Context(), s)
			if err != nil {
				return err
			}
			defer closeStore()

			committer := &etl.Committer{Store: store, StatePath: s.Paths.State}
			if err := committer.Reset(c.Context()); err != nil {
				return err
			}
			logger.Infof("Checkpoint reset in %s", store.Describe())
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}
