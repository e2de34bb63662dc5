/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package main provides the CLI commands for managing the document table of
SQL-backed stores. File and redis stores need no migrations.
*/

package main

import (
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/database"
)

func migrateCommands(b *economyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run document store migrations",
	}

	cmd.AddCommand(migrateDirectionCommand(b, "up", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand(b, "down", migrate.Down))

	return cmd
}

func migrateDirectionCommand(b *economyInstance, use string, direction migrate.MigrationDirection) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := runMigrations(b.store, direction)
			if err != nil {
				return err
			}
			if direction == migrate.Up {
				fmt.Printf("Applied %d migrations!\n", n)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
			return nil
		},
	}

	return cmd
}

func runMigrations(store database.Store, direction migrate.MigrationDirection) (int, error) {
	sqlStore, ok := store.(*database.SQLStore)
	if !ok {
		return 0, fmt.Errorf("migrations need a postgres, mysql or sqlite data source, got %T", store)
	}
	n, err := sqlStore.Migrate(economy.SQLFiles, "sql", direction)
	if err != nil {
		return 0, fmt.Errorf("error migrating %s: %v", sqlStore.Dialect(), err)
	}
	return n, nil
}
