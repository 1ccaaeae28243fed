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

package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greenroom-io/greenroom/server/backend"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/restore"
	"github.com/greenroom-io/greenroom/server/savelock"
	"github.com/greenroom-io/greenroom/server/seedlock"
)

// Server serves the screenplay coordination API over HTTP.
type Server struct {
	conf       *Config
	httpServer *http.Server
}

// NewServer creates an instance of Server with its component graph built on
// the given backend.
func NewServer(conf *Config, be *backend.Backend) *Server {
	roster := collaborators.New(be.DB, be.SCM)
	h := &handlers{
		backend:   be,
		roster:    roster,
		saveLocks: savelock.New(be.DB, roster, be.Metrics, be.Config.ParseSaveLockTTL()),
		seedLocks: seedlock.New(be.DB, roster, be.Realtime, be.Metrics),
		orchestrator: restore.New(
			be.DB,
			roster,
			be.Realtime,
			be.SCM,
			be.Jobs,
			be.Metrics,
			be.Config.ParseConvergencePollInterval(),
			be.Config.ConvergencePollMaxAttempts,
		),
	}

	return &Server{
		conf: conf,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.Port),
			Handler: newRouter(h),
		},
	}
}

// newRouter builds the route table of the coordination API.
func newRouter(h *handlers) http.Handler {
	router := chi.NewRouter()
	router.Use(withLogger)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/screenplays/{id}", func(router chi.Router) {
		router.Use(withIdentity, withScreenplayID)

		router.Get("/status", h.status)

		router.Post("/save-lock", h.acquireSaveLock)
		router.Delete("/save-lock", h.releaseSaveLock)

		router.Post("/seed-lock", h.acquireSeedLock)
		router.Post("/seed-lock/complete", h.completeSeed)

		router.Post("/restore", h.startRestore)
		router.Get("/restore", h.restoreProgress)
		router.Delete("/restore", h.clearRestore)

		router.Put("/autosave", h.setAutosave)

		router.Post("/collaborators/sync", h.syncCollaborators)
		router.Get("/collaborators", h.listCollaborators)
	})

	return router
}

// Start starts the server.
func (s *Server) Start() error {
	go func() {
		logging.DefaultLogger().Infof("serving REST API on %d", s.conf.Port)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.DefaultLogger().Errorf("HTTP server ListenAndServe: %v", err)
		}
	}()
	return nil
}

// Shutdown shuts down the server.
func (s *Server) Shutdown(graceful bool) {
	if graceful {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			logging.DefaultLogger().Error("HTTP server Shutdown: %v", err)
		}
		return
	}

	if err := s.httpServer.Close(); err != nil {
		logging.DefaultLogger().Error("HTTP server close: %v", err)
	}
}
