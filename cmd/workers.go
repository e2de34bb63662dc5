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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/config"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	opt, err := economy.RedisConnOpt(conf)
	if err != nil {
		return nil, err
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			conf.Queue.WebhookQueue: 1,
		},
		Logger: logrus.StandardLogger(),
	}), nil
}

// workerCommands starts the process that delivers queued webhooks.
func workerCommands(b *economyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start webhook delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			shutdown, err := initializeTracing(ctx, b.cnf)
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					logrus.Errorf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(b.cnf)
			if err != nil {
				return err
			}

			mux := asynq.NewServeMux()
			mux.HandleFunc(b.cnf.Queue.WebhookQueue, economy.ProcessWebhook)

			logrus.Infof("delivering webhooks from queue %s", b.cnf.Queue.WebhookQueue)
			return srv.Run(mux)
		},
	}

	return cmd
}
