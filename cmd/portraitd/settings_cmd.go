package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"portraitd/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and change module settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one setting, or every user-editable setting",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Change a setting",
	Long: `Change a setting. The value is parsed as JSON, falling back to a plain string.

Examples:
  portraitd settings set apiKey sk-123
  portraitd settings set numberResults 2`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	if len(args) == 1 {
		if args[0] == settings.KeyAPIKey {
			key, err := a.settings.APIKey(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key != "")
			return nil
		}
		raw, err := a.settings.Raw(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	}
	views, err := a.settings.Views(ctx)
	if err != nil {
		return err
	}
	for _, v := range views {
		val := string(v.Value)
		if v.Key == settings.KeyAPIKey {
			val = "(redacted)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", v.Key, val)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	raw := json.RawMessage(args[1])
	if !json.Valid(raw) {
		b, _ := json.Marshal(args[1])
		raw = b
	}
	return a.settings.SetFromUser(cmd.Context(), args[0], raw)
}
