// File: cmd/rules.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tasker-cli/internal/observability"
	"github.com/xkilldash9x/tasker-cli/internal/ruleingest"
)

// newRulesCmd creates the 'rules' command group.
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manages the translation rule file.",
	}
	cmd.AddCommand(newRulesExportCmd())
	return cmd
}

// newRulesExportCmd mines the audit trail into translator rules and merges
// them into the rule file.
func newRulesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Mines recorded steps into translation rules and merges them into the rule file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfig()
			if err != nil {
				return err
			}

			st, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			candidates, err := st.ListRuleCandidates(ctx)
			if err != nil {
				return err
			}

			mined := ruleingest.BuildRules(candidates)
			added, err := ruleingest.New(cfg.Translator.RulesFile, logger).Merge(mined)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mined %d rule(s) from %d candidate group(s); %d new rule(s) written to %s\n",
				len(mined), len(candidates), added, cfg.Translator.RulesFile)
			return nil
		},
	}
}
