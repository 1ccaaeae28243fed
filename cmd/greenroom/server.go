/*
 * Copyright 2025 The Greenroom Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenroom-io/greenroom/server"
	"github.com/greenroom-io/greenroom/server/backend/database/mongo"
	"github.com/greenroom-io/greenroom/server/logging"
)

var (
	gracefulTimeout = 10 * time.Second
)

var (
	flagConfPath string
	flagLogLevel string

	saveLockTTL             time.Duration
	convergencePollInterval time.Duration

	housekeepingInterval    time.Duration
	seedCacheStaleThreshold time.Duration

	mongoConnectionURI     string
	mongoConnectionTimeout time.Duration
	mongoGreenroomDatabase string
	mongoPingTimeout       time.Duration

	realtimeRequestTimeout time.Duration
	githubRequestTimeout   time.Duration

	conf = server.NewConfig()
)

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [options]",
		Short: "Start Greenroom server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf.Backend.SaveLockTTL = saveLockTTL.String()
			conf.Backend.ConvergencePollInterval = convergencePollInterval.String()

			conf.Housekeeping.Interval = housekeepingInterval.String()
			conf.Housekeeping.SeedCacheStaleThreshold = seedCacheStaleThreshold.String()

			conf.Realtime.RequestTimeout = realtimeRequestTimeout.String()
			conf.GitHub.RequestTimeout = githubRequestTimeout.String()

			if mongoConnectionURI != "" {
				conf.Mongo = &mongo.Config{
					ConnectionURI:     mongoConnectionURI,
					ConnectionTimeout: mongoConnectionTimeout.String(),
					GreenroomDatabase: mongoGreenroomDatabase,
					PingTimeout:       mongoPingTimeout.String(),
				}
			}

			// If config file is given, command-line arguments will be overwritten.
			if flagConfPath != "" {
				parsed, err := server.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			if err := logging.SetLogLevel(flagLogLevel); err != nil {
				return err
			}

			g, err := server.New(conf)
			if err != nil {
				return err
			}

			if err := g.Start(); err != nil {
				return err
			}

			if code := handleSignal(g); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}

			return nil
		},
	}
}

func handleSignal(r *server.Greenroom) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var sig os.Signal
	select {
	case s := <-sigCh:
		sig = s
	case <-r.ShutdownCh():
		// greenroom is already shutdown
		return 0
	}

	graceful := false
	if sig == syscall.SIGINT || sig == syscall.SIGTERM {
		graceful = true
	}

	gracefulCh := make(chan struct{})
	go func() {
		if err := r.Shutdown(graceful); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		"info",
		"Log level: debug, info, warn, error, panic, fatal",
	)
	cmd.Flags().IntVar(
		&conf.REST.Port,
		"rest-port",
		server.DefaultRESTPort,
		"REST port",
	)
	cmd.Flags().IntVar(
		&conf.Profiling.Port,
		"profiling-port",
		server.DefaultProfilingPort,
		"Profiling port",
	)
	cmd.Flags().BoolVar(
		&conf.Profiling.EnablePprof,
		"enable-pprof",
		false,
		"Enable runtime profiling data via HTTP server.",
	)
	cmd.Flags().DurationVar(
		&housekeepingInterval,
		"housekeeping-interval",
		server.DefaultHousekeepingInterval,
		"housekeeping interval between housekeeping runs",
	)
	cmd.Flags().IntVar(
		&conf.Housekeeping.CandidatesLimit,
		"housekeeping-candidates-limit",
		server.DefaultHousekeepingCandidatesLimit,
		"candidates limit for a single housekeeping run",
	)
	cmd.Flags().DurationVar(
		&seedCacheStaleThreshold,
		"housekeeping-seed-cache-stale-threshold",
		server.DefaultHousekeepingSeedCacheStaleThreshold,
		"how long an unseeded seed lock entry may linger before it is discarded",
	)
	cmd.Flags().StringVar(
		&mongoConnectionURI,
		"mongo-connection-uri",
		"",
		"MongoDB's connection URI",
	)
	cmd.Flags().DurationVar(
		&mongoConnectionTimeout,
		"mongo-connection-timeout",
		server.DefaultMongoConnectionTimeout,
		"Mongo DB's connection timeout",
	)
	cmd.Flags().StringVar(
		&mongoGreenroomDatabase,
		"mongo-greenroom-database",
		server.DefaultMongoGreenroomDatabase,
		"Greenroom's database name in MongoDB",
	)
	cmd.Flags().DurationVar(
		&mongoPingTimeout,
		"mongo-ping-timeout",
		server.DefaultMongoPingTimeout,
		"Mongo DB's ping timeout",
	)
	cmd.Flags().StringVar(
		&conf.Backend.Hostname,
		"hostname",
		server.DefaultHostname,
		"Greenroom Server Hostname",
	)
	cmd.Flags().DurationVar(
		&saveLockTTL,
		"backend-save-lock-ttl",
		server.DefaultSaveLockTTL,
		"Lifetime of a save lock. Save locks are never renewed.",
	)
	cmd.Flags().DurationVar(
		&convergencePollInterval,
		"backend-convergence-poll-interval",
		server.DefaultConvergencePollInterval,
		"Time between convergence poll attempts after a restore commit lands.",
	)
	cmd.Flags().IntVar(
		&conf.Backend.ConvergencePollMaxAttempts,
		"backend-convergence-poll-max-attempts",
		server.DefaultConvergencePollMaxAttempts,
		"Number of convergence poll attempts before restore markers are cleared regardless.",
	)
	cmd.Flags().StringVar(
		&conf.Realtime.BaseURL,
		"realtime-base-url",
		server.DefaultRealtimeBaseURL,
		"Base URL of the realtime session service.",
	)
	cmd.Flags().StringVar(
		&conf.Realtime.InternalToken,
		"realtime-internal-token",
		"",
		"Bearer token for service-to-service calls to the realtime service.",
	)
	cmd.Flags().DurationVar(
		&realtimeRequestTimeout,
		"realtime-request-timeout",
		server.DefaultRealtimeRequestTimeout,
		"Timeout for requests to the realtime service.",
	)
	cmd.Flags().StringVar(
		&conf.GitHub.BaseURL,
		"github-base-url",
		server.DefaultGitHubBaseURL,
		"Base URL of the GitHub API.",
	)
	cmd.Flags().StringVar(
		&conf.GitHub.UserAgent,
		"github-user-agent",
		server.DefaultGitHubUserAgent,
		"User-Agent header sent with GitHub API requests.",
	)
	cmd.Flags().DurationVar(
		&githubRequestTimeout,
		"github-request-timeout",
		server.DefaultGitHubRequestTimeout,
		"Timeout for requests to the GitHub API.",
	)

	rootCmd.AddCommand(cmd)
}
