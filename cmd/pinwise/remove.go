package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pinwise/pinwise-go/pkg/persistence"
)

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	var projectPath string
	cmd := &cobra.Command{
		Use:   "remove --project <file> <instance-id>",
		Short: "Remove an instance from a project and free its pins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.engine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			store := persistence.NewFileStore(projectPath)
			p, err := store.Load(e.Catalog())
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no project at %s", projectPath)
			}
			id, err := resolveInstanceID(p, args[0])
			if err != nil {
				return err
			}

			var freed []string
			if inst, ok := p.Find(id); ok {
				for _, c := range inst.Claims {
					freed = append(freed, c.Unit.ID)
				}
			}
			inst, err := e.Remove(p, id)
			if err != nil {
				return err
			}
			if err := store.Save(p); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "removed %s %s", inst.SpecID, shortID(inst.ID))
			if len(freed) > 0 {
				fmt.Fprintf(w, ", freed %s", strings.Join(freed, " "))
			}
			fmt.Fprintln(w)
			writeProject(w, p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "Project snapshot file")
	cmd.MarkFlagRequired("project")
	return cmd
}
