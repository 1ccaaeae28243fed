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

package seedlock_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend/database/memory"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
	"github.com/greenroom-io/greenroom/server/seedlock"
)

type fakeSession struct {
	status realtime.SeedStatus

	probeStatus int
	probeBody   any
}

func (f *fakeSession) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/seed-status"):
			assert.NoError(t, json.NewEncoder(w).Encode(f.status))
		case strings.HasSuffix(r.URL.Path, "/seed-probe"):
			w.WriteHeader(f.probeStatus)
			if f.probeBody != nil {
				assert.NoError(t, json.NewEncoder(w).Encode(f.probeBody))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func setUp(t *testing.T, session http.Handler) (*seedlock.Coordinator, *memory.DB) {
	t.Helper()

	server := httptest.NewServer(session)
	t.Cleanup(server.Close)

	db, err := memory.New()
	assert.NoError(t, err)
	metrics, err := prometheus.NewMetrics()
	assert.NoError(t, err)

	ctx := context.Background()
	_, err = db.EnsureStatusInfo(ctx, "scr_1")
	assert.NoError(t, err)
	_, err = db.UpdateCollaborators(ctx, "scr_1", []types.Collaborator{
		{ID: "u1", GithubUsername: "margot", JoinedAt: time.Now()},
	})
	assert.NoError(t, err)

	rt := realtime.NewClient(&realtime.Config{
		BaseURL:        server.URL,
		InternalToken:  "internal",
		RequestTimeout: "1s",
	})
	return seedlock.New(db, collaborators.New(db, nil), rt, metrics), db
}

func TestCoordinator(t *testing.T) {
	ctx := context.Background()

	t.Run("grant on fresh room test", func(t *testing.T) {
		expiry := time.Now().Add(30 * time.Second).UTC()
		session := &fakeSession{
			probeStatus: http.StatusOK,
			probeBody:   realtime.SeedGrant{Epoch: 7, LockExpiresAt: expiry},
		}
		coordinator, db := setUp(t, session.handler(t))

		res, err := coordinator.TryAcquire(ctx, "scr_1", "u1", "margot")
		assert.NoError(t, err)
		assert.True(t, res.Granted)
		assert.Equal(t, int64(7), res.Epoch)
		assert.Equal(t, expiry.Unix(), res.LockExpiresAt.Unix())

		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.NotNil(t, info.SeedCache)
		assert.True(t, info.SeedCache.Locked)
		assert.Equal(t, types.ID("u1"), info.SeedCache.LockedBy)
	})

	t.Run("already seeded denies everyone test", func(t *testing.T) {
		session := &fakeSession{status: realtime.SeedStatus{Seeded: true, Epoch: 3}}
		coordinator, _ := setUp(t, session.handler(t))

		res, err := coordinator.TryAcquire(ctx, "scr_1", "u1", "margot")
		assert.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Equal(t, seedlock.ReasonAlreadySeeded, res.Reason)
		assert.Equal(t, int64(3), res.DeniedEpoch)
	})

	t.Run("already locked test", func(t *testing.T) {
		session := &fakeSession{status: realtime.SeedStatus{Locked: true, Epoch: 4, LockedBy: "otis"}}
		coordinator, _ := setUp(t, session.handler(t))

		res, err := coordinator.TryAcquire(ctx, "scr_1", "u1", "margot")
		assert.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Equal(t, seedlock.ReasonAlreadyLocked, res.Reason)
	})

	t.Run("probe denial surfaced verbatim test", func(t *testing.T) {
		session := &fakeSession{
			probeStatus: http.StatusConflict,
			probeBody:   realtime.SeedDenial{Reason: "already_locked", Epoch: 9},
		}
		coordinator, _ := setUp(t, session.handler(t))

		res, err := coordinator.TryAcquire(ctx, "scr_1", "u1", "margot")
		assert.NoError(t, err)
		assert.False(t, res.Granted)
		assert.Equal(t, seedlock.ReasonAlreadyLocked, res.Reason)
		assert.Equal(t, int64(9), res.DeniedEpoch)
	})

	t.Run("unreachable service is not a denial test", func(t *testing.T) {
		// 404 from seed-status is benign; the probe's own 404 is not a
		// conflict and maps to service unavailability.
		coordinator, _ := setUp(t, http.NotFoundHandler())
		res, err := coordinator.TryAcquire(ctx, "scr_1", "u1", "margot")
		assert.Nil(t, res)
		assert.True(t, errors.IsStatus(err, errors.StatusUnavailable))
		assert.Equal(t, "hp_unavailable", errors.ReasonOf(err))
	})

	t.Run("forbidden before any session call test", func(t *testing.T) {
		session := &fakeSession{probeStatus: http.StatusOK, probeBody: realtime.SeedGrant{Epoch: 1}}
		coordinator, _ := setUp(t, session.handler(t))

		_, err := coordinator.TryAcquire(ctx, "scr_1", "outsider", "outsider")
		assert.True(t, errors.IsStatus(err, errors.StatusForbidden))
	})

	t.Run("mark seeded test", func(t *testing.T) {
		session := &fakeSession{probeStatus: http.StatusOK, probeBody: realtime.SeedGrant{Epoch: 1}}
		coordinator, db := setUp(t, session.handler(t))

		assert.NoError(t, coordinator.MarkSeeded(ctx, "scr_1", "u1"))
		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.False(t, info.SeedCache.SeededAt.IsZero())
	})
}
