package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPoliciesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Print the effective policy table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(*configPath, bindFlags(cmd, map[string]string{"policies": "deployer.policy_path"}))
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}
			table, err := loadPolicies(cfg.Deployer.PolicyPath)
			if err != nil {
				return withExitCode(ExitConfigError, err)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(table); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().String("policies", "", "YAML policy table (default: built-in table)")
	return cmd
}
