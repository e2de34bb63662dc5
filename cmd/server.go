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
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blnkfinance/economy"
	"github.com/blnkfinance/economy/api"
	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/database"
	redlock "github.com/blnkfinance/economy/internal/lock"
	redis_db "github.com/blnkfinance/economy/internal/redis-db"
	trace "github.com/blnkfinance/economy/internal/traces"
)

const tickLeaderKey = "economy:tick-leader"

// manageCertificates obtains certificates for the configured domain through
// ACME and returns the TLS config that serves them.
func manageCertificates(ctx context.Context, conf config.ServerConfig) (*tls.Config, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		logrus.Info("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return nil, err
	}
	return cfg.TLSConfig(), nil
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, router *gin.Engine, conf config.ServerConfig) error {
	server := &http.Server{
		Addr:              ":" + conf.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if conf.SSL {
		tlsConfig, err := manageCertificates(ctx, conf)
		if err != nil {
			return errors.Wrap(err, "manage certificates")
		}
		server.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if conf.SSL {
			logrus.Infof("Starting HTTPS server on %s", conf.Port)
			err = server.ListenAndServeTLS("", "")
		} else {
			logrus.Infof("Starting server on http://localhost:%s", conf.Port)
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

// initializeLeader returns a redis lease when redis is configured, so that
// only one of several servers sharing a store advances time.
func initializeLeader(b *economyInstance) (economy.Leader, func() error, error) {
	noop := func() error { return nil }
	if rs, ok := b.store.(*database.RedisStore); ok {
		return redlock.NewLocker(rs.Client(), tickLeaderKey, uuid.New().String()), noop, nil
	}
	if b.cnf.Redis.Dns == "" {
		return nil, noop, nil
	}
	client, err := redis_db.NewRedisClient(redis_db.SplitAddresses(b.cnf.Redis.Dns), b.cnf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect tick leader redis")
	}
	return redlock.NewLocker(client.Client(), tickLeaderKey, uuid.New().String()), client.Close, nil
}

// scheduleJobs registers periodic saves and, when configured, backups.
func scheduleJobs(ctx context.Context, b *economyInstance, sim *economy.Simulation) (*cron.Cron, error) {
	c := cron.New()
	every := fmt.Sprintf("@every %ds", b.cnf.Simulation.SaveIntervalSec)
	if _, err := c.AddFunc(every, func() {
		if err := sim.Checkpoint(ctx); err != nil {
			logrus.Errorf("periodic save failed: %v", err)
		}
	}); err != nil {
		return nil, errors.Wrap(err, "schedule saves")
	}

	if b.cnf.Simulation.BackupSchedule != "" {
		if _, err := c.AddFunc(b.cnf.Simulation.BackupSchedule, func() {
			if !sim.Leading() {
				return
			}
			if _, err := runBackup(ctx, b, sim); err != nil {
				logrus.Errorf("scheduled backup failed: %v", err)
			}
		}); err != nil {
			return nil, errors.Wrap(err, "schedule backups")
		}
	}
	return c, nil
}

func startServer(b *economyInstance) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initializeTracing(ctx, b.cnf)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logrus.Errorf("Error during shutdown: %v", err)
		}
	}()

	sim := economy.NewSimulation(b.economy, 0)
	leader, closeLeader, err := initializeLeader(b)
	if err != nil {
		return err
	}
	defer func() { _ = closeLeader() }()
	if leader != nil {
		sim.SetLeader(leader, economy.DefaultLeaderLease)
	}

	if err := sim.Restore(ctx); err != nil {
		return errors.Wrap(err, "restore clock")
	}
	if err := b.economy.Load(ctx); err != nil {
		return errors.Wrap(err, "load economy")
	}

	jobs, err := scheduleJobs(ctx, b, sim)
	if err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	router := api.NewAPI(b.economy).Router()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(ctx, router, b.cnf.Server) })
	g.Go(func() error { return sim.Run(ctx) })
	runErr := g.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.Shutdown(saveCtx); err != nil {
		logrus.Errorf("final save failed: %v", err)
	}
	return runErr
}

func serverCommands(b *economyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the economy server and tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(b)
		},
	}

	return cmd
}
