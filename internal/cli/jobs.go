package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage stored jobs",
	}
	cmd.AddCommand(a.jobsListCmd(), a.jobsDeleteCmd(), a.jobsCleanupCmd())
	return cmd
}

func (a *app) jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs that can be resumed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			summaries, err := store.ListResumable()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no resumable jobs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tMODE\tSTEP\tDONE\tFAILED\tTOTAL\tUPDATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					s.JobID, s.Mode, s.CurrentStep, s.Completed, s.Failed, s.Total,
					s.LastUpdated.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func (a *app) jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a stored job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted job %s\n", args[0])
			return nil
		},
	}
}

func (a *app) jobsCleanupCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete jobs older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			removed, err := store.CleanupOlderThan(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d job(s) older than %s\n", removed, maxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", a.cfg.Jobs.MaxAge, "delete jobs not updated within this window")
	return cmd
}
