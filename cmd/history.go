// File: cmd/history.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tasker-cli/internal/observability"
)

// newHistoryCmd creates the 'history' command: session listing, or the full
// audit trail of one session when an id is given.
func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Lists past sessions, or prints one session's step audit trail.",
		Args:  cobra.MaximumNArgs(1),
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

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				sessions, err := st.ListSessions(ctx, limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions recorded.")
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(out, "%s  %-8s  %s  %s\n",
						s.ID, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.Goal)
				}
				return nil
			}

			sessionID := args[0]
			sess, err := st.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Session %s\n  Goal:   %s\n  Status: %s\n  Steps:  %d/%d\n",
				sess.ID, sess.Goal, sess.Status, sess.StepNumber, sess.MaxSteps)

			records, err := st.ListStepRecords(ctx, sessionID)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(out, "\n  Step %d [%s/%s]\n    Thought:     %s\n    Instruction: %s\n",
					rec.StepNumber, rec.DecisionStatus, rec.Outcome, rec.Thought, rec.Instruction)
				if rec.FailureDetail != "" {
					fmt.Fprintf(out, "    Failure:     %s\n", rec.FailureDetail)
				}
				if rec.VerifyAchieved != nil {
					fmt.Fprintf(out, "    Verified:    %t (%s)\n", *rec.VerifyAchieved, rec.VerifyReason)
				}
			}

			pm, err := st.GetPostMortem(ctx, sessionID)
			if err != nil {
				return err
			}
			if pm != nil {
				fmt.Fprintf(out, "\n%s\n", pm.OptimizedPrompt)
				if pm.Validation != nil {
					fmt.Fprintf(out, "\nGoal validation: %t (%s)\n", pm.Validation.Achieved, pm.Validation.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of sessions to list.")
	return cmd
}
