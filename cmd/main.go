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
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	"github.com/blnkfinance/economy/internal/notification"
)

// CLI wraps the root command.
type CLI struct {
	cmd *cobra.Command
}

// economyInstance is what every subcommand shares once preRun has run.
type economyInstance struct {
	economy   *economy.Economy
	cnf       *config.Configuration
	store     database.Store
	hooks     *economy.WebhookQueue
	directory *economy.PlayerDirectory
}

func (b *economyInstance) close() {
	if b.hooks != nil {
		if err := b.hooks.Close(); err != nil {
			logrus.Warnf("failed to close webhook queue: %v", err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			logrus.Warnf("failed to close store: %v", err)
		}
	}
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and builds the economy. State is not loaded
// here so that migrate can run against an empty database.
func preRun(app *economyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return errors.Wrap(err, "error loading config")
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupEconomy(app, cnf); err != nil {
			notification.NotifyError(err)
			return err
		}
		return nil
	}
}

func setupEconomy(app *economyInstance, cfg *config.Configuration) error {
	store, err := database.NewDataSource(cfg)
	if err != nil {
		return fmt.Errorf("error getting datasource: %v", err)
	}

	hooks, err := economy.NewWebhookQueue(cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("error creating webhook queue: %v", err)
	}

	directory := economy.NewPlayerDirectory()
	e := economy.NewEconomy(cfg, store, directory, hooks)
	e.Overdraft.SetSentenceHandler(economy.SentenceFunc(func(playerID string, days int64, debt float64) {
		logrus.WithFields(logrus.Fields{
			"player": playerID,
			"days":   days,
			"debt":   debt,
		}).Warn("player sentenced for unpaid debt")
	}))

	app.economy = e
	app.cnf = cfg
	app.store = store
	app.hooks = hooks
	app.directory = directory
	return nil
}

func NewCLI() *CLI {
	var configFile string
	b := &economyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "economy",
		Short: "In-game economy server",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./economy.json", "Configuration file for the economy server")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) { b.close() }

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(backupCommands(b))
	rootCmd.AddCommand(configCommands(b))
	rootCmd.AddCommand(accountCommands(b))

	return &CLI{cmd: rootCmd}
}

func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
