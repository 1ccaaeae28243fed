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

// Package memory implements the database interface using an in-memory
// database. It backs tests and standalone runs without MongoDB.
package memory

import (
	"context"
	"fmt"
	gotime "time"

	"github.com/hashicorp/go-memdb"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/server/backend/database"
)

// DB is an in-memory database for testing or standalone deployments.
type DB struct {
	db *memdb.MemDB
}

// New returns a new in-memory database.
func New() (*DB, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	return &DB{
		db: memDB,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return nil
}

// statusRecord wraps StatusInfo with a string ID for memory database storage.
type statusRecord struct {
	ID string
	*database.StatusInfo
}

// EnsureStatusInfo returns the status of the given screenplay, creating it
// lazily on first touch.
func (d *DB) EnsureStatusInfo(
	_ context.Context,
	screenplayID types.ID,
) (*database.StatusInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblStatuses, "id", screenplayID.String())
	if err != nil {
		return nil, fmt.Errorf("find status of %s: %w", screenplayID, err)
	}
	if raw != nil {
		return raw.(*statusRecord).StatusInfo.DeepCopy(), nil
	}

	now := gotime.Now()
	info := &database.StatusInfo{
		ScreenplayID:     screenplayID,
		Collaborators:    []types.Collaborator{},
		CollaboratorIDs:  []types.ID{},
		AutosaveInterval: types.AutosaveIntervalNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := txn.Insert(tblStatuses, &statusRecord{
		ID:         screenplayID.String(),
		StatusInfo: info,
	}); err != nil {
		return nil, fmt.Errorf("create status of %s: %w", screenplayID, err)
	}

	txn.Commit()
	return info.DeepCopy(), nil
}

// FindStatusInfo returns the status of the given screenplay.
func (d *DB) FindStatusInfo(
	_ context.Context,
	screenplayID types.ID,
) (*database.StatusInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tblStatuses, "id", screenplayID.String())
	if err != nil {
		return nil, fmt.Errorf("find status of %s: %w", screenplayID, err)
	}
	if raw == nil {
		return nil, database.ErrStatusNotFound
	}

	return raw.(*statusRecord).StatusInfo.DeepCopy(), nil
}

// UpdateCollaborators replaces the collaborator roster and the derived id set
// in a single write.
func (d *DB) UpdateCollaborators(
	ctx context.Context,
	screenplayID types.ID,
	collaborators []types.Collaborator,
) (*database.StatusInfo, error) {
	info, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.Collaborators = collaborators
		info.CollaboratorIDs = database.DeriveCollaboratorIDs(collaborators)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// SetSaveLock installs the given save lock unconditionally.
func (d *DB) SetSaveLock(
	_ context.Context,
	screenplayID types.ID,
	lock *types.SaveLock,
) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.SaveLock = lock
		return nil
	})
	return err
}

// ClearSaveLock removes the save lock if present.
func (d *DB) ClearSaveLock(_ context.Context, screenplayID types.ID) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.SaveLock = nil
		return nil
	})
	return err
}

// ClearExpiredSaveLock removes the save lock only if it expired before the
// given instant. The expiry re-check happens inside the write transaction so
// a lock re-acquired after the expiry scan survives.
func (d *DB) ClearExpiredSaveLock(
	_ context.Context,
	screenplayID types.ID,
	before gotime.Time,
) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		if info.SaveLock == nil || !info.SaveLock.Expired(before) {
			return nil
		}
		info.SaveLock = nil
		return nil
	})
	return err
}

// BeginRestore sets the restore block and the pending revision and clears any
// previous restore error in a single write.
func (d *DB) BeginRestore(
	_ context.Context,
	screenplayID types.ID,
	block *types.RestoreBlock,
	pendingSHA string,
) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.RestoreBlock = block
		info.PendingRestoreSHA = pendingSHA
		info.RestoreError = ""
		return nil
	})
	return err
}

// CompleteRestore records the restored revision and clears the restore block
// in a single write.
func (d *DB) CompleteRestore(_ context.Context, screenplayID types.ID, sha string) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.LatestRestoredCommitSHA = sha
		info.LatestRestoredCommitSetAt = gotime.Now()
		info.RestoreBlock = nil
		return nil
	})
	return err
}

// FailRestore records the restore error and leaves the restore block set.
func (d *DB) FailRestore(_ context.Context, screenplayID types.ID, message string) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.RestoreError = message
		return nil
	})
	return err
}

// ClearRestoreBlock removes the restore block.
func (d *DB) ClearRestoreBlock(_ context.Context, screenplayID types.ID) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.RestoreBlock = nil
		return nil
	})
	return err
}

// ClearRestoreMarkers removes the transient restore markers.
func (d *DB) ClearRestoreMarkers(_ context.Context, screenplayID types.ID) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.LatestRestoredCommitSHA = ""
		info.LatestRestoredCommitSetAt = gotime.Time{}
		info.PendingRestoreSHA = ""
		return nil
	})
	return err
}

// SetAutosaveInterval stores the periodic save cadence.
func (d *DB) SetAutosaveInterval(
	_ context.Context,
	screenplayID types.ID,
	interval types.AutosaveInterval,
) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.AutosaveInterval = interval
		return nil
	})
	return err
}

// SetSeedCache writes the cached view of the seed lock.
func (d *DB) SetSeedCache(
	_ context.Context,
	screenplayID types.ID,
	cache *types.SeedCache,
) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.SeedCache = cache
		return nil
	})
	return err
}

// ClearSeedCache removes the cached view of the seed lock.
func (d *DB) ClearSeedCache(_ context.Context, screenplayID types.ID) error {
	_, err := d.update(screenplayID, func(info *database.StatusInfo) error {
		info.SeedCache = nil
		return nil
	})
	return err
}

// FindExpiredSaveLocks returns statuses whose save lock expired before the
// given instant.
func (d *DB) FindExpiredSaveLocks(
	_ context.Context,
	before gotime.Time,
	limit int,
) ([]*database.StatusInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblStatuses, "id")
	if err != nil {
		return nil, fmt.Errorf("find expired save locks: %w", err)
	}

	var infos []*database.StatusInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		info := raw.(*statusRecord).StatusInfo
		if info.SaveLock == nil || info.SaveLock.ExpiresAt.After(before) {
			continue
		}

		infos = append(infos, info.DeepCopy())
		if len(infos) == limit {
			break
		}
	}

	return infos, nil
}

// FindStaleSeedCaches returns statuses whose cached seed lock was taken before
// the cutoff and never confirmed seeded.
func (d *DB) FindStaleSeedCaches(
	_ context.Context,
	cutoff gotime.Time,
	limit int,
) ([]*database.StatusInfo, error) {
	txn := d.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(tblStatuses, "id")
	if err != nil {
		return nil, fmt.Errorf("find stale seed caches: %w", err)
	}

	var infos []*database.StatusInfo
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		info := raw.(*statusRecord).StatusInfo
		cache := info.SeedCache
		if cache == nil || !cache.Locked || !cache.SeededAt.IsZero() {
			continue
		}
		if cache.LockedAt.After(cutoff) {
			continue
		}

		infos = append(infos, info.DeepCopy())
		if len(infos) == limit {
			break
		}
	}

	return infos, nil
}

// update applies fn to a copy of the stored status and writes it back. The
// status must already exist; coordination paths ensure it first.
func (d *DB) update(
	screenplayID types.ID,
	fn func(info *database.StatusInfo) error,
) (*database.StatusInfo, error) {
	txn := d.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tblStatuses, "id", screenplayID.String())
	if err != nil {
		return nil, fmt.Errorf("find status of %s: %w", screenplayID, err)
	}
	if raw == nil {
		return nil, database.ErrStatusNotFound
	}

	info := raw.(*statusRecord).StatusInfo.DeepCopy()
	if err := fn(info); err != nil {
		return nil, err
	}
	info.UpdatedAt = gotime.Now()

	if err := txn.Insert(tblStatuses, &statusRecord{
		ID:         screenplayID.String(),
		StatusInfo: info,
	}); err != nil {
		return nil, fmt.Errorf("update status of %s: %w", screenplayID, err)
	}

	txn.Commit()
	return info.DeepCopy(), nil
}
