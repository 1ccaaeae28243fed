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

package restore_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend/database/memory"
	"github.com/greenroom-io/greenroom/server/backend/jobs"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
	"github.com/greenroom-io/greenroom/server/restore"
)

const (
	pollInterval    = 10 * time.Millisecond
	pollMaxAttempts = 3
)

var params = restore.Params{
	TargetSHA: "target-rev",
	Repo:      "studio/legacy",
	Path:      "script.fountain",
	Branch:    "main",
	Token:     "gh-token",
}

// fakeSCM mimics the source-control host endpoints the restore flow uses.
type fakeSCM struct {
	mu sync.Mutex

	headSHA      string
	blobSHA      string
	rejectWrites bool
	writes       int
}

func (f *fakeSCM) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/contents/"):
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]string{
				"path":     "script.fountain",
				"sha":      f.blobSHA,
				"content":  base64.StdEncoding.EncodeToString([]byte("FADE IN:")),
				"encoding": "base64",
			}))
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/contents/"):
			if f.rejectWrites {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.writes++
			f.headSHA = "restored-rev"
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]string{"sha": "restored-rev"},
			}))
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/commits/"):
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]string{"sha": f.headSHA}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeSCM) setHead(sha string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headSHA = sha
}

// fakeSession mimics the realtime session service's destroy and unblock
// endpoints.
type fakeSession struct {
	mu sync.Mutex

	failRequests bool
	destroys     int
	unblocks     int
}

func (f *fakeSession) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failRequests {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/destroy"):
			f.destroys++
		case strings.HasSuffix(r.URL.Path, "/unblock"):
			f.unblocks++
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeSession) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroys, f.unblocks
}

type fixture struct {
	orchestrator *restore.Orchestrator
	db           *memory.DB
	registry     *jobs.Registry
	scm          *fakeSCM
	session      *fakeSession
}

func setUp(t *testing.T) *fixture {
	t.Helper()

	scm := &fakeSCM{headSHA: "old-head", blobSHA: "blob-1"}
	scmServer := httptest.NewServer(scm.handler(t))
	t.Cleanup(scmServer.Close)

	session := &fakeSession{}
	sessionServer := httptest.NewServer(session.handler())
	t.Cleanup(sessionServer.Close)

	db, err := memory.New()
	assert.NoError(t, err)
	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)
	registry := jobs.New(metrics)
	t.Cleanup(registry.Close)

	ctx := context.Background()
	_, err = db.EnsureStatusInfo(ctx, "scr_1")
	assert.NoError(t, err)
	_, err = db.UpdateCollaborators(ctx, "scr_1", []types.Collaborator{
		{ID: "u1", GithubUsername: "margot", JoinedAt: time.Now()},
	})
	assert.NoError(t, err)

	orchestrator := restore.New(
		db,
		collaborators.New(db, nil),
		realtime.NewClient(&realtime.Config{
			BaseURL:        sessionServer.URL,
			InternalToken:  "internal",
			RequestTimeout: "1s",
		}),
		github.NewClient(&github.Config{
			BaseURL:        scmServer.URL,
			UserAgent:      "greenroom-test",
			RequestTimeout: "1s",
		}),
		registry,
		metrics,
		pollInterval,
		pollMaxAttempts,
	)

	return &fixture{
		orchestrator: orchestrator,
		db:           db,
		registry:     registry,
		scm:          scm,
		session:      session,
	}
}

func TestOrchestrator(t *testing.T) {
	ctx := context.Background()

	t.Run("successful restore converges test", func(t *testing.T) {
		f := setUp(t)

		sha, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.NoError(t, err)
		assert.Equal(t, "restored-rev", sha)

		// block lifted, revision recorded, pending marker stays until
		// convergence
		info, err := f.db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Nil(t, info.RestoreBlock)
		assert.Equal(t, "restored-rev", info.LatestRestoredCommitSHA)

		destroys, _ := f.session.counts()
		assert.Equal(t, 1, destroys)

		// the fake's head already equals the restored revision
		assert.Eventually(t, func() bool {
			info, err := f.db.FindStatusInfo(ctx, "scr_1")
			assert.NoError(t, err)
			return info.PendingRestoreSHA == "" && info.LatestRestoredCommitSHA == ""
		}, time.Second, pollInterval)

		_, unblocks := f.session.counts()
		assert.Equal(t, 1, unblocks)
	})

	t.Run("second restore rejected while blocked test", func(t *testing.T) {
		f := setUp(t)

		assert.NoError(t, f.db.BeginRestore(ctx, "scr_1", &types.RestoreBlock{
			BlockedAt: time.Now(),
			BlockedBy: "u9",
		}, "other-rev"))

		_, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.True(t, errors.IsStatus(err, errors.StatusConflict))
		assert.Equal(t, restore.ReasonRestoreInProgress, errors.ReasonOf(err))
	})

	t.Run("failed write leaves block set test", func(t *testing.T) {
		f := setUp(t)
		f.scm.rejectWrites = true

		_, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.True(t, errors.IsStatus(err, errors.StatusInternal))

		info, err := f.db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.NotNil(t, info.RestoreBlock)
		assert.NotEmpty(t, info.RestoreError)
		assert.Empty(t, info.LatestRestoredCommitSHA)
	})

	t.Run("eviction failure does not abort restore test", func(t *testing.T) {
		f := setUp(t)
		f.session.failRequests = true

		sha, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.NoError(t, err)
		assert.Equal(t, "restored-rev", sha)
	})

	t.Run("poll exhaustion clears markers test", func(t *testing.T) {
		f := setUp(t)

		_, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.NoError(t, err)

		// head drifts away so the poll can never match
		f.scm.setHead("someone-else-pushed")

		assert.Eventually(t, func() bool {
			info, err := f.db.FindStatusInfo(ctx, "scr_1")
			assert.NoError(t, err)
			return info.PendingRestoreSHA == "" && info.LatestRestoredCommitSHA == ""
		}, time.Second, pollInterval)
	})

	t.Run("progress and manual clear test", func(t *testing.T) {
		f := setUp(t)
		f.scm.rejectWrites = true

		_, err := f.orchestrator.Restore(ctx, "scr_1", "u1", params)
		assert.Error(t, err)

		progress, err := f.orchestrator.Progress(ctx, "scr_1", "u1")
		assert.NoError(t, err)
		assert.True(t, progress.Blocked)
		assert.Equal(t, types.ID("u1"), progress.BlockedBy)
		assert.Equal(t, "target-rev", progress.PendingRestoreSHA)
		assert.NotEmpty(t, progress.RestoreError)

		assert.NoError(t, f.orchestrator.ClearPending(ctx, "scr_1", "u1"))
		progress, err = f.orchestrator.Progress(ctx, "scr_1", "u1")
		assert.NoError(t, err)
		assert.False(t, progress.Blocked)
		assert.Empty(t, progress.PendingRestoreSHA)
	})

	t.Run("forbidden for outsiders test", func(t *testing.T) {
		f := setUp(t)

		_, err := f.orchestrator.Restore(ctx, "scr_1", "outsider", params)
		assert.True(t, errors.IsStatus(err, errors.StatusForbidden))

		_, err = f.orchestrator.Progress(ctx, "scr_1", "outsider")
		assert.True(t, errors.IsStatus(err, errors.StatusForbidden))
	})
}
