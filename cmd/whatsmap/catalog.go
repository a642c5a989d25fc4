package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rahul/whatsmap/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the project catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import [seed.yaml]",
	Short: "Import projects from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := store.NewCatalogStore(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer catalog.Close()

		n, err := catalog.ImportSeed(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d projects into %s\n", n, cfg.Memory.Path)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := store.NewCatalogStore(cfg.Memory.Path)
		if err != nil {
			return err
		}
		defer catalog.Close()

		projects, err := catalog.All(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDEVELOPER\tAREA\tFROM")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Developer, p.Area, p.PriceFrom)
		}
		return w.Flush()
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd, catalogListCmd)
}
