package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/einstein/internal/config"
	"github.com/dwizi/einstein/internal/store"
)

func newHistoryCommand() *cobra.Command {
	var (
		userID string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent interactions from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			sqlStore, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			if err := sqlStore.AutoMigrate(cmd.Context()); err != nil {
				return err
			}

			items, err := sqlStore.ListInteractions(cmd.Context(), store.ListInteractionsInput{
				UserID: userID,
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No interactions recorded.")
				return nil
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "CREATED\tCONNECTOR\tCOMMAND\tUSER\tOUTCOME\tREPLIES\tERROR")
			for _, item := range items {
				fmt.Fprintf(
					writer,
					"%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					item.CreatedAt.UTC().Format(time.RFC3339),
					item.Connector,
					item.Command,
					item.UserID,
					item.Outcome,
					item.ReplyCount,
					item.ErrorMessage,
				)
			}
			return writer.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only show interactions for this user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of interactions to show")
	return cmd
}
