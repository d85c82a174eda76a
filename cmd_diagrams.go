package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiagramsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diagrams",
		Short: "Diagram rendering utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Locate the PlantUML jar and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, false, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			jar, version, err := a.diagramRenderer("").Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("diagram rendering unavailable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plantuml: %s\n%s\n", jar, version)
			return nil
		},
	})
	return cmd
}
