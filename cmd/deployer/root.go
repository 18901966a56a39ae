package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// =============================================================================
// Root Command
// =============================================================================

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "deployer",
		Short:         "Upload and register a compiled contract suite",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(
		newDeployCmd(&configPath),
		newHistoryCmd(&configPath),
		newPoliciesCmd(&configPath),
		newVersionCmd(),
	)
	return cmd
}

// bindFlags binds each named flag of cmd to its config key.
func bindFlags(cmd *cobra.Command, keys map[string]string) func(v *viper.Viper) error {
	return func(v *viper.Viper) error {
		for name, key := range keys {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				return fmt.Errorf("unknown flag %q", name)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return err
			}
		}
		return nil
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deployer %s (built %s)\n", Version, BuildTime)
			return err
		},
	}
}
