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

// Package server provides the Greenroom server which is the main entry point
// of the Greenroom system. The server coordinates screenplay persistence:
// save locks, seed locks, restores and collaborator rosters.
package server

import (
	gosync "sync"

	"github.com/greenroom-io/greenroom/server/backend"
	"github.com/greenroom-io/greenroom/server/profiling"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
	"github.com/greenroom-io/greenroom/server/rest"
)

// Greenroom is the coordination server for collaborative screenplay editing.
// It arbitrates save and seed locks, drives restore orchestration, and keeps
// collaborator rosters in sync with the source repository.
type Greenroom struct {
	lock gosync.Mutex

	conf            *Config
	backend         *backend.Backend
	restServer      *rest.Server
	profilingServer *profiling.Server

	shutdown   bool
	shutdownCh chan struct{}
}

// New creates a new instance of Greenroom.
func New(conf *Config) (*Greenroom, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	metrics, err := prometheus.NewMetrics()
	if err != nil {
		return nil, err
	}

	be, err := backend.New(
		conf.Backend,
		conf.Mongo,
		conf.Housekeeping,
		conf.Realtime,
		conf.GitHub,
		metrics,
	)
	if err != nil {
		return nil, err
	}

	restServer := rest.NewServer(conf.REST, be)

	var profilingServer *profiling.Server
	if conf.Profiling != nil {
		profilingServer = profiling.NewServer(conf.Profiling, metrics)
	}

	return &Greenroom{
		conf:            conf,
		backend:         be,
		restServer:      restServer,
		profilingServer: profilingServer,
		shutdownCh:      make(chan struct{}),
	}, nil
}

// Start starts the server by opening the REST port.
func (r *Greenroom) Start() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.backend.Start(); err != nil {
		return err
	}

	if r.profilingServer != nil {
		if err := r.profilingServer.Start(); err != nil {
			return err
		}
	}

	return r.restServer.Start()
}

// Shutdown shuts down this Greenroom server.
func (r *Greenroom) Shutdown(graceful bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.shutdown {
		return nil
	}

	r.restServer.Shutdown(graceful)
	if r.profilingServer != nil {
		r.profilingServer.Shutdown(graceful)
	}

	if err := r.backend.Shutdown(); err != nil {
		return err
	}

	close(r.shutdownCh)
	r.shutdown = true
	return nil
}

// ShutdownCh returns the shutdown channel.
func (r *Greenroom) ShutdownCh() <-chan struct{} {
	return r.shutdownCh
}

// RESTAddr returns the address of the REST API.
func (r *Greenroom) RESTAddr() string {
	return r.conf.RESTAddr()
}
