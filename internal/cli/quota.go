package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) quotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the account's generation quota",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			quota, err := client.GetQuota(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "quota: %d used / %d total (%d available)\n",
				quota.Used, quota.Total, quota.Available)
			return nil
		},
	}
}
