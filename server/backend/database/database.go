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

// Package database provides the database interface for the Greenroom backend.
package database

import (
	"context"
	"time"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
)

var (
	// ErrStatusNotFound is returned when the screenplay status could not be
	// found. Callers must be able to distinguish it from other errors.
	ErrStatusNotFound = errors.NotFound("screenplay status not found").WithReason("status_not_found")
)

// Database reads and saves per-screenplay coordination state. It is the
// single source of truth for the save lock and the restore block; the
// per-screenplay read-then-write sequences of the components serialize
// through it.
type Database interface {
	// Close closes all resources of this database.
	Close() error

	// EnsureStatusInfo returns the status of the given screenplay, creating
	// it lazily on first touch.
	EnsureStatusInfo(ctx context.Context, screenplayID types.ID) (*StatusInfo, error)

	// FindStatusInfo returns the status of the given screenplay or
	// ErrStatusNotFound.
	FindStatusInfo(ctx context.Context, screenplayID types.ID) (*StatusInfo, error)

	// UpdateCollaborators replaces the collaborator roster. The derived
	// collaborator id set is written in the same update so the two can
	// never drift.
	UpdateCollaborators(
		ctx context.Context,
		screenplayID types.ID,
		collaborators []types.Collaborator,
	) (*StatusInfo, error)

	// SetSaveLock installs the given save lock unconditionally. The
	// check-then-set decision belongs to the save lock manager.
	SetSaveLock(ctx context.Context, screenplayID types.ID, lock *types.SaveLock) error

	// ClearSaveLock removes the save lock if present.
	ClearSaveLock(ctx context.Context, screenplayID types.ID) error

	// ClearExpiredSaveLock removes the save lock only if it expired before
	// the given instant. A lock re-acquired after an expiry scan is left
	// intact. Used by housekeeping.
	ClearExpiredSaveLock(ctx context.Context, screenplayID types.ID, before time.Time) error

	// BeginRestore sets the restore block and the pending revision and clears
	// any previous restore error in a single write.
	BeginRestore(
		ctx context.Context,
		screenplayID types.ID,
		block *types.RestoreBlock,
		pendingSHA string,
	) error

	// CompleteRestore records the restored revision and clears the restore
	// block in a single write. The pending marker stays until convergence.
	CompleteRestore(ctx context.Context, screenplayID types.ID, sha string) error

	// FailRestore records the restore error. The restore block is
	// intentionally left in place.
	FailRestore(ctx context.Context, screenplayID types.ID, message string) error

	// ClearRestoreBlock removes the restore block. Used by the manual unlock
	// operation after a failed restore.
	ClearRestoreBlock(ctx context.Context, screenplayID types.ID) error

	// ClearRestoreMarkers removes the transient restore markers. Called by
	// the convergence poller on both the success and the give-up path.
	ClearRestoreMarkers(ctx context.Context, screenplayID types.ID) error

	// SetAutosaveInterval stores the periodic save cadence.
	SetAutosaveInterval(
		ctx context.Context,
		screenplayID types.ID,
		interval types.AutosaveInterval,
	) error

	// SetSeedCache writes the cached view of the seed lock.
	SetSeedCache(ctx context.Context, screenplayID types.ID, cache *types.SeedCache) error

	// ClearSeedCache removes the cached view of the seed lock.
	ClearSeedCache(ctx context.Context, screenplayID types.ID) error

	// FindExpiredSaveLocks returns statuses whose save lock expired before
	// the given instant, up to limit. Used by housekeeping.
	FindExpiredSaveLocks(ctx context.Context, before time.Time, limit int) ([]*StatusInfo, error)

	// FindStaleSeedCaches returns statuses whose cached seed lock was taken
	// before the cutoff and never confirmed seeded, up to limit. Used by
	// housekeeping.
	FindStaleSeedCaches(ctx context.Context, cutoff time.Time, limit int) ([]*StatusInfo, error)
}
