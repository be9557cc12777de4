package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var presetsJSON bool

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Generation preset operations",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved generation presets",
	Args:  cobra.NoArgs,
	RunE:  runPresetsList,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsListCmd)
	presetsListCmd.Flags().BoolVar(&presetsJSON, "json", false, "Print the canonical JSON list")
}

func runPresetsList(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	list, err := a.presets.LoadAll(cmd.Context())
	if err != nil {
		return err
	}
	if presetsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tLORA\tEMBEDDINGS")
	for _, p := range list {
		lora := "-"
		if p.Lora != nil && p.Lora.Model != "" {
			lora = fmt.Sprintf("%s:%g", p.Lora.Model, p.Lora.Weight)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Model, lora, len(p.Embeddings))
	}
	return tw.Flush()
}
