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

// Package backend provides the backend implementation of the Greenroom
// server. This package is responsible for managing the database and other
// resources required to coordinate screenplay editing.
package backend

import (
	"fmt"
	"os"

	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend/database"
	memdb "github.com/greenroom-io/greenroom/server/backend/database/memory"
	"github.com/greenroom-io/greenroom/server/backend/database/mongo"
	"github.com/greenroom-io/greenroom/server/backend/housekeeping"
	"github.com/greenroom-io/greenroom/server/backend/jobs"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
)

// Backend manages Greenroom's backend such as Database, the clients for the
// realtime session service and the source-control host, and background work.
type Backend struct {
	Config *Config

	// Jobs is used to manage keyed background jobs such as convergence polls.
	Jobs *jobs.Registry
	// Housekeeping is used to manage background batch tasks.
	Housekeeping *housekeeping.Housekeeping

	// Realtime is the client for the realtime session service.
	Realtime *realtime.Client
	// SCM is the client for the source-control host.
	SCM *github.Client

	// Metrics is used to expose metrics.
	Metrics *prometheus.Metrics
	// DB is the database instance.
	DB database.Database
}

// New creates a new instance of Backend.
func New(
	conf *Config,
	mongoConf *mongo.Config,
	housekeepingConf *housekeeping.Config,
	realtimeConf *realtime.Config,
	githubConf *github.Config,
	metrics *prometheus.Metrics,
) (*Backend, error) {
	// 01. Build the server info with the given hostname or the hostname of the
	// current machine.
	hostname := conf.Hostname
	if hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("os.Hostname: %w", err)
		}
		conf.Hostname = hostname
	}

	// 02. Create the database instance. If the MongoDB configuration is given,
	// create a MongoDB instance. Otherwise, create a memory database instance.
	var db database.Database
	var err error
	if mongoConf != nil {
		db, err = mongo.Dial(mongoConf)
		if err != nil {
			return nil, err
		}
	} else {
		db, err = memdb.New()
		if err != nil {
			return nil, err
		}
	}

	// 03. Create the job registry and the housekeeping instance.
	registry := jobs.New(metrics)
	housekeeper, err := housekeeping.New(housekeepingConf, db)
	if err != nil {
		return nil, err
	}

	// 04. Create the clients for the upstream services.
	rt := realtime.NewClient(realtimeConf)
	scm := github.NewClient(githubConf)

	dbInfo := "memory"
	if mongoConf != nil {
		dbInfo = mongoConf.ConnectionURI
	}
	logging.DefaultLogger().Infof(
		"backend created: db: %s, hostname: %s",
		dbInfo,
		conf.Hostname,
	)

	return &Backend{
		Config: conf,

		Jobs:         registry,
		Housekeeping: housekeeper,

		Realtime: rt,
		SCM:      scm,

		Metrics: metrics,
		DB:      db,
	}, nil
}

// Start starts the backend.
func (b *Backend) Start() error {
	if err := b.Housekeeping.Start(); err != nil {
		return err
	}

	logging.DefaultLogger().Infof("backend started")
	return nil
}

// Shutdown closes all resources of this backend.
func (b *Backend) Shutdown() error {
	if err := b.Housekeeping.Stop(); err != nil {
		return err
	}

	b.Jobs.Close()

	if err := b.DB.Close(); err != nil {
		return err
	}

	logging.DefaultLogger().Infof("backend stopped")
	return nil
}
