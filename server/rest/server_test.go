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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend"
	"github.com/greenroom-io/greenroom/server/backend/housekeeping"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
	"github.com/greenroom-io/greenroom/server/restore"
	"github.com/greenroom-io/greenroom/server/savelock"
	"github.com/greenroom-io/greenroom/server/seedlock"
)

// fakeUpstreams serves both the realtime session service and the
// source-control host endpoints the API fans out to.
func fakeUpstreams(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/seed-status"):
			assert.NoError(t, json.NewEncoder(w).Encode(realtime.SeedStatus{}))
		case strings.HasSuffix(r.URL.Path, "/seed-probe"):
			assert.NoError(t, json.NewEncoder(w).Encode(realtime.SeedGrant{
				Epoch:         1,
				LockExpiresAt: time.Now().Add(30 * time.Second),
			}))
		case strings.Contains(r.URL.Path, "/sessions/") && strings.HasSuffix(r.URL.Path, "/status"):
			assert.NoError(t, json.NewEncoder(w).Encode(realtime.RoomStatus{
				Active:      true,
				Connections: 2,
			}))
		case strings.HasSuffix(r.URL.Path, "/destroy"), strings.HasSuffix(r.URL.Path, "/unblock"):
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/contents/"):
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]string{
				"path":     "script.fountain",
				"sha":      "blob-1",
				"content":  base64.StdEncoding.EncodeToString([]byte("FADE IN:")),
				"encoding": "base64",
			}))
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/contents/"):
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"commit": map[string]string{"sha": "restored-rev"},
			}))
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/commits/"):
			assert.NoError(t, json.NewEncoder(w).Encode(map[string]string{"sha": "restored-rev"}))
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/collaborators"):
			assert.NoError(t, json.NewEncoder(w).Encode([]github.RepoCollaborator{
				{ID: 1, Login: "u1"},
				{ID: 2, Login: "u2"},
			}))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func setUpAPI(t *testing.T) (*httptest.Server, *backend.Backend) {
	t.Helper()

	upstream := fakeUpstreams(t)

	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)
	be, err := backend.New(
		&backend.Config{
			SaveLockTTL:                "15s",
			ConvergencePollInterval:    "10ms",
			ConvergencePollMaxAttempts: 3,
		},
		nil,
		&housekeeping.Config{
			Interval:                "1m",
			CandidatesLimit:         100,
			SeedCacheStaleThreshold: "10m",
		},
		&realtime.Config{
			BaseURL:        upstream.URL,
			InternalToken:  "internal",
			RequestTimeout: "1s",
		},
		&github.Config{
			BaseURL:        upstream.URL,
			UserAgent:      "greenroom-test",
			RequestTimeout: "1s",
		},
		metrics,
	)
	assert.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, be.Shutdown()) })

	roster := collaborators.New(be.DB, be.SCM)
	h := &handlers{
		backend:   be,
		roster:    roster,
		saveLocks: savelock.New(be.DB, roster, be.Metrics, be.Config.ParseSaveLockTTL()),
		seedLocks: seedlock.New(be.DB, roster, be.Realtime, be.Metrics),
		orchestrator: restore.New(
			be.DB, roster, be.Realtime, be.SCM, be.Jobs, be.Metrics,
			be.Config.ParseConvergencePollInterval(),
			be.Config.ConvergencePollMaxAttempts,
		),
	}

	api := httptest.NewServer(newRouter(h))
	t.Cleanup(api.Close)

	// u1 and u2 collaborate on scr_1
	ctx := context.Background()
	_, err = be.DB.EnsureStatusInfo(ctx, "scr_1")
	assert.NoError(t, err)
	_, err = be.DB.UpdateCollaborators(ctx, "scr_1", []types.Collaborator{
		{ID: "u1", GithubUsername: "u1", JoinedAt: time.Now()},
		{ID: "u2", GithubUsername: "u2", JoinedAt: time.Now()},
	})
	assert.NoError(t, err)

	return api, be
}

func call(
	t *testing.T,
	api *httptest.Server,
	method string,
	path string,
	user string,
	body any,
) (int, map[string]any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, api.URL+path, reqBody)
	assert.NoError(t, err)
	if user != "" {
		req.Header.Set(headerUserID, user)
		req.Header.Set(headerUserName, strings.ToUpper(user))
		req.Header.Set(headerSCMToken, "gh-token")
	}

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer func() { assert.NoError(t, resp.Body.Close()) }()

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func TestAPI(t *testing.T) {
	t.Run("missing identity is unauthorized test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, _ := call(t, api, http.MethodGet, "/screenplays/scr_1/status", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("save lock end to end test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_1/save-lock", "u1",
			map[string]string{"lockType": "manual"})
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, true, body["granted"])
		lockExpiry, err := time.Parse(time.RFC3339Nano, body["lockExpiry"].(string))
		assert.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(15*time.Second), lockExpiry, time.Second)

		status, body = call(t, api, http.MethodPost, "/screenplays/scr_1/save-lock", "u2",
			map[string]string{"lockType": "manual"})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "lock_conflict", body["reason"])
		assert.Equal(t, "u1", body["lockedBy"])

		status, body = call(t, api, http.MethodDelete, "/screenplays/scr_1/save-lock", "u2", nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "not_lock_owner", body["reason"])

		status, _ = call(t, api, http.MethodDelete, "/screenplays/scr_1/save-lock", "u1", nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("outsider is forbidden test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_1/save-lock", "u9",
			map[string]string{"lockType": "manual"})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "not_collaborator", body["reason"])
	})

	t.Run("seed lock grant test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_1/seed-lock", "u1",
			map[string]string{})
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["granted"])
		assert.Equal(t, float64(1), body["epoch"])
	})

	t.Run("restore flow test", func(t *testing.T) {
		api, be := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_1/restore", "u1",
			map[string]string{
				"targetSha": "0123abc",
				"repo":      "studio/legacy",
				"path":      "script.fountain",
				"branch":    "main",
			})
		assert.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "restored-rev", body["restoredCommitSha"])

		status, body = call(t, api, http.MethodGet, "/screenplays/scr_1/restore", "u1", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["blocked"])

		// convergence clears the pending marker in the background
		assert.Eventually(t, func() bool {
			info, err := be.DB.FindStatusInfo(context.Background(), "scr_1")
			assert.NoError(t, err)
			return info.PendingRestoreSHA == ""
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("restore validation test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_1/restore", "u1",
			map[string]string{
				"targetSha": "not a sha",
				"repo":      "studio/legacy",
				"path":      "script.fountain",
				"branch":    "main",
			})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "hex hash")
	})

	t.Run("autosave interval test", func(t *testing.T) {
		api, be := setUpAPI(t)

		status, _ := call(t, api, http.MethodPut, "/screenplays/scr_1/autosave", "u1",
			map[string]string{"interval": "10"})
		assert.Equal(t, http.StatusOK, status)

		info, err := be.DB.FindStatusInfo(context.Background(), "scr_1")
		assert.NoError(t, err)
		assert.Equal(t, types.AutosaveInterval("10"), info.AutosaveInterval)

		status, _ = call(t, api, http.MethodPut, "/screenplays/scr_1/autosave", "u1",
			map[string]string{"interval": "-1"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("collaborators sync and list test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodPost, "/screenplays/scr_2/collaborators/sync", "u1",
			map[string]string{"repo": "studio/legacy"})
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, body["collaborators"], 2)

		status, body = call(t, api, http.MethodGet, "/screenplays/scr_2/collaborators", "1", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Len(t, body["collaborators"], 2)
	})

	t.Run("malformed screenplay id test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		for _, path := range []string{
			"/screenplays/SCR-1/status",
			"/screenplays/SCR-1/restore",
		} {
			status, body := call(t, api, http.MethodGet, path, "u1", nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body["error"], "lowercase")
		}
	})

	t.Run("status snapshot test", func(t *testing.T) {
		api, _ := setUpAPI(t)

		status, body := call(t, api, http.MethodGet, "/screenplays/scr_1/status", "u1", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "scr_1", body["screenplayId"])
		assert.Nil(t, body["saveLock"])

		// the snapshot carries the live session view from the realtime service
		session, ok := body["session"].(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, true, session["active"])
		assert.Equal(t, float64(2), session["connections"])
	})
}
