package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"portraitd/internal/entity"
	"portraitd/pkg/types"
)

var (
	entityName   string
	entityOwners []string
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Entity record operations",
}

var entitiesPutCmd = &cobra.Command{
	Use:   "put <entity-id>",
	Short: "Create or replace an entity record",
	Long: `Create or replace an entity record.

Examples:
  portraitd entities put Actor.x1Y2 --name "Aria Swiftwind" --owner alice
  portraitd entities put Actor.x1Y2 --name "Aria Swiftwind" --owner alice=3 --owner default=2`,
	Args: cobra.ExactArgs(1),
	RunE: runEntitiesPut,
}

func init() {
	rootCmd.AddCommand(entitiesCmd)
	entitiesCmd.AddCommand(entitiesPutCmd)
	entitiesPutCmd.Flags().StringVar(&entityName, "name", "", "Display name")
	entitiesPutCmd.Flags().StringArrayVar(&entityOwners, "owner", nil, "user[=level] ownership entry; level defaults to owner")
	_ = entitiesPutCmd.MarkFlagRequired("name")
}

func parseOwnership(entries []string) (map[string]int, error) {
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		user, lvl, found := strings.Cut(e, "=")
		user = strings.TrimSpace(user)
		if user == "" {
			return nil, fmt.Errorf("invalid ownership entry %q", e)
		}
		level := entity.LevelOwner
		if found {
			if _, err := fmt.Sscanf(lvl, "%d", &level); err != nil || level < entity.LevelNone || level > entity.LevelOwner {
				return nil, fmt.Errorf("invalid ownership level in %q", e)
			}
		}
		out[user] = level
	}
	return out, nil
}

func runEntitiesPut(cmd *cobra.Command, args []string) error {
	owners, err := parseOwnership(entityOwners)
	if err != nil {
		return err
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	return a.entities.Put(cmd.Context(), types.Entity{ID: args[0], Name: entityName, Ownership: owners})
}
