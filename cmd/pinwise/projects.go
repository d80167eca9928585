package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/persistence"
)

func newProjectsCmd(opts *globalOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List or delete projects in a SQLite store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "pinwise.db", "SQLite database")

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored projects, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.NewSQLStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			rows, err := db.List(limit, offset)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVALID\tINSTANCES\tUPDATED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", r.ID, r.Name, r.Valid, r.Instances, r.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	list.Flags().IntVar(&offset, "offset", 0, "Rows to skip")

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a stored project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.NewSQLStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
