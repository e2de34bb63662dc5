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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/internal/backups"
)

// runBackup archives every document the server persists, including the clock.
func runBackup(ctx context.Context, b *economyInstance, sim *economy.Simulation) (string, error) {
	return backups.Run(ctx, b.cnf.Backup, b.store, sim.Documents(), nil)
}

func backupCommands(b *economyInstance) *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "archive the stored economy and upload it to s3 when configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := b.cnf.Backup
			if localOnly {
				cfg.S3Bucket = ""
			}
			sim := economy.NewSimulation(b.economy, 0)
			path, err := backups.Run(cmd.Context(), cfg, b.store, sim.Documents(), nil)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&localOnly, "local", false, "skip the s3 upload")

	return cmd
}
