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

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/backend/database/memory"
)

func TestDB(t *testing.T) {
	ctx := context.Background()

	t.Run("lazy creation test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.FindStatusInfo(ctx, "scr_1")
		assert.ErrorIs(t, err, database.ErrStatusNotFound)

		info, err := db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Equal(t, types.ID("scr_1"), info.ScreenplayID)
		assert.Equal(t, types.AutosaveInterval("none"), info.AutosaveInterval)

		again, err := db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Equal(t, info.CreatedAt.Unix(), again.CreatedAt.Unix())
	})

	t.Run("collaborator roster and derived ids test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)

		roster := []types.Collaborator{
			{ID: "u1", GithubUsername: "alice", JoinedAt: time.Now()},
			{ID: "u2", GithubUsername: "bob", JoinedAt: time.Now()},
		}
		info, err := db.UpdateCollaborators(ctx, "scr_1", roster)
		assert.NoError(t, err)
		assert.Equal(t, []types.ID{"u1", "u2"}, info.CollaboratorIDs)
		assert.True(t, info.HasCollaborator("u2"))
	})

	t.Run("save lock set and clear test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)

		now := time.Now()
		lock := &types.SaveLock{
			OwnerID:    "u1",
			OwnerName:  "Alice",
			LockType:   types.LockTypeManual,
			AcquiredAt: now,
			ExpiresAt:  now.Add(15 * time.Second),
		}
		assert.NoError(t, db.SetSaveLock(ctx, "scr_1", lock))

		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Equal(t, types.ID("u1"), info.SaveLock.OwnerID)

		assert.NoError(t, db.ClearSaveLock(ctx, "scr_1"))
		info, err = db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Nil(t, info.SaveLock)
	})

	t.Run("restore lifecycle test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)

		block := &types.RestoreBlock{BlockedAt: time.Now(), BlockedBy: "u1"}
		assert.NoError(t, db.BeginRestore(ctx, "scr_1", block, "target-sha"))

		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.NotNil(t, info.RestoreBlock)
		assert.Equal(t, "target-sha", info.PendingRestoreSHA)
		assert.Empty(t, info.RestoreError)

		assert.NoError(t, db.CompleteRestore(ctx, "scr_1", "new-sha"))
		info, err = db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Nil(t, info.RestoreBlock)
		assert.Equal(t, "new-sha", info.LatestRestoredCommitSHA)
		assert.False(t, info.LatestRestoredCommitSetAt.IsZero())
		assert.Equal(t, "target-sha", info.PendingRestoreSHA)

		assert.NoError(t, db.ClearRestoreMarkers(ctx, "scr_1"))
		info, err = db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Empty(t, info.LatestRestoredCommitSHA)
		assert.True(t, info.LatestRestoredCommitSetAt.IsZero())
		assert.Empty(t, info.PendingRestoreSHA)
	})

	t.Run("failed restore keeps block test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)

		block := &types.RestoreBlock{BlockedAt: time.Now(), BlockedBy: "u1"}
		assert.NoError(t, db.BeginRestore(ctx, "scr_1", block, "target-sha"))
		assert.NoError(t, db.FailRestore(ctx, "scr_1", "write rejected"))

		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.NotNil(t, info.RestoreBlock)
		assert.Equal(t, "write rejected", info.RestoreError)

		assert.NoError(t, db.ClearRestoreBlock(ctx, "scr_1"))
		info, err = db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Nil(t, info.RestoreBlock)
	})

	t.Run("expired save lock candidates test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		now := time.Now()
		for _, tc := range []struct {
			id      types.ID
			expires time.Time
		}{
			{"scr_expired", now.Add(-time.Minute)},
			{"scr_live", now.Add(time.Minute)},
		} {
			_, err = db.EnsureStatusInfo(ctx, tc.id)
			assert.NoError(t, err)
			assert.NoError(t, db.SetSaveLock(ctx, tc.id, &types.SaveLock{
				OwnerID:   "u1",
				ExpiresAt: tc.expires,
			}))
		}

		infos, err := db.FindExpiredSaveLocks(ctx, now, 10)
		assert.NoError(t, err)
		assert.Len(t, infos, 1)
		assert.Equal(t, types.ID("scr_expired"), infos[0].ScreenplayID)
	})

	t.Run("stale seed cache candidates test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		now := time.Now()
		_, err = db.EnsureStatusInfo(ctx, "scr_stale")
		assert.NoError(t, err)
		assert.NoError(t, db.SetSeedCache(ctx, "scr_stale", &types.SeedCache{
			Locked:   true,
			LockedBy: "u1",
			LockedAt: now.Add(-time.Hour),
		}))

		_, err = db.EnsureStatusInfo(ctx, "scr_seeded")
		assert.NoError(t, err)
		assert.NoError(t, db.SetSeedCache(ctx, "scr_seeded", &types.SeedCache{
			Locked:   true,
			LockedBy: "u2",
			LockedAt: now.Add(-time.Hour),
			SeededAt: now.Add(-30 * time.Minute),
		}))

		infos, err := db.FindStaleSeedCaches(ctx, now.Add(-10*time.Minute), 10)
		assert.NoError(t, err)
		assert.Len(t, infos, 1)
		assert.Equal(t, types.ID("scr_stale"), infos[0].ScreenplayID)

		assert.NoError(t, db.ClearSeedCache(ctx, "scr_stale"))
		infos, err = db.FindStaleSeedCaches(ctx, now.Add(-10*time.Minute), 10)
		assert.NoError(t, err)
		assert.Len(t, infos, 0)
	})

	t.Run("autosave interval test", func(t *testing.T) {
		db, err := memory.New()
		assert.NoError(t, err)

		_, err = db.EnsureStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)

		assert.NoError(t, db.SetAutosaveInterval(ctx, "scr_1", "5"))
		info, err := db.FindStatusInfo(ctx, "scr_1")
		assert.NoError(t, err)
		assert.Equal(t, types.AutosaveInterval("5"), info.AutosaveInterval)
	})
}
