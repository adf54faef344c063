package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ely.by/changeskin/internal/db/sql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates or updates the storage schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		container := shouldGetContainer()
		var store *sql.Store
		err := container.Resolve(&store)
		if err != nil {
			return err
		}

		defer store.Close()

		err = store.Migrate(context.Background())
		if err != nil {
			return fmt.Errorf("unable to migrate the storage: %w", err)
		}

		fmt.Println("The storage schema is up to date")

		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
