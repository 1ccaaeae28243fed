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

// Package savelock provides the save lock manager. A save lock is a
// short-lived mutual exclusion guarding a single concurrent save operation
// per screenplay. Locks carry a fixed TTL and are never renewed in place;
// a lock whose expiry has passed is acquirable regardless of whether it was
// released.
package savelock

import (
	"context"
	"time"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
)

const (
	// ReasonLockConflict is the reason code of an acquire rejected because
	// another unexpired lock is in place.
	ReasonLockConflict = "lock_conflict"

	// ReasonNotLockOwner is the reason code of a release attempted by a user
	// who does not own the lock.
	ReasonNotLockOwner = "not_lock_owner"

	// ReasonRestoreInProgress is the reason code of an acquire rejected
	// because the screenplay is blocked by a running restore.
	ReasonRestoreInProgress = "restore_in_progress"

	outcomeGranted  = "granted"
	outcomeConflict = "conflict"
	outcomeReleased = "released"
	outcomeNotOwner = "not_owner"
	outcomeNoop     = "noop"
)

// Result is the outcome of an acquire attempt. Exactly one of Lock or the
// conflict fields is populated.
type Result struct {
	Granted bool

	// Lock is the installed lock when granted.
	Lock *types.SaveLock

	// Reason, LockedBy and LockExpiresAt describe the conflicting state when
	// not granted.
	Reason        string
	LockedBy      types.ID
	LockedByName  string
	LockExpiresAt time.Time
}

// Manager decides save lock acquisition and release. The store read and the
// lock write are two separate operations, so two callers racing through
// Acquire at the same instant can both be granted; the persistent store is
// the tie-breaker of record and the window is covered by tests rather than
// papered over here.
type Manager struct {
	db      database.Database
	roster  *collaborators.Registry
	metrics *prometheus.Metrics

	ttl time.Duration
}

// New creates a new Manager.
func New(
	db database.Database,
	roster *collaborators.Registry,
	metrics *prometheus.Metrics,
	ttl time.Duration,
) *Manager {
	return &Manager{
		db:      db,
		roster:  roster,
		metrics: metrics,
		ttl:     ttl,
	}
}

// Acquire attempts to take the save lock of the given screenplay. The
// current holder may re-acquire before expiry to refresh the TTL; anyone
// else is rejected until the lock expires or is released.
func (m *Manager) Acquire(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
	userName string,
	lockType types.LockType,
) (*Result, error) {
	if !lockType.Valid() {
		return nil, errors.InvalidArgument("unknown lock type " + string(lockType))
	}

	info, err := m.roster.Authorize(ctx, screenplayID, userID)
	if err != nil {
		return nil, err
	}

	if info.RestoreBlock != nil {
		m.metrics.AddSaveLockAcquire(outcomeConflict)
		return &Result{
			Reason:   ReasonRestoreInProgress,
			LockedBy: info.RestoreBlock.BlockedBy,
		}, nil
	}

	now := time.Now()
	if active := info.ActiveSaveLock(now); active != nil && active.OwnerID != userID {
		m.metrics.AddSaveLockAcquire(outcomeConflict)
		logging.From(ctx).Infow(
			"save lock conflict",
			"screenplay", screenplayID,
			"requested_by", userID,
			"locked_by", active.OwnerID,
			"lock_expires_at", active.ExpiresAt,
		)
		return &Result{
			Reason:        ReasonLockConflict,
			LockedBy:      active.OwnerID,
			LockedByName:  active.OwnerName,
			LockExpiresAt: active.ExpiresAt,
		}, nil
	}

	lock := &types.SaveLock{
		OwnerID:    userID,
		OwnerName:  userName,
		LockType:   lockType,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.db.SetSaveLock(ctx, screenplayID, lock); err != nil {
		return nil, err
	}

	m.metrics.AddSaveLockAcquire(outcomeGranted)
	logging.From(ctx).Infow(
		"save lock acquired",
		"screenplay", screenplayID,
		"owner", userID,
		"lock_type", lockType,
		"expires_at", lock.ExpiresAt,
	)
	return &Result{Granted: true, Lock: lock}, nil
}

// Release clears the save lock of the given screenplay. Releasing an absent
// or expired lock succeeds as a no-op; releasing a lock owned by someone
// else is rejected without mutating it.
func (m *Manager) Release(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
) error {
	info, err := m.roster.Authorize(ctx, screenplayID, userID)
	if err != nil {
		return err
	}

	active := info.ActiveSaveLock(time.Now())
	if active == nil {
		m.metrics.AddSaveLockRelease(outcomeNoop)
		return nil
	}

	if active.OwnerID != userID {
		m.metrics.AddSaveLockRelease(outcomeNotOwner)
		logging.From(ctx).Infow(
			"save lock release rejected",
			"screenplay", screenplayID,
			"requested_by", userID,
			"locked_by", active.OwnerID,
		)
		return errors.Forbidden(
			"save lock is held by another user",
		).WithReason(ReasonNotLockOwner)
	}

	if err := m.db.ClearSaveLock(ctx, screenplayID); err != nil {
		return err
	}

	m.metrics.AddSaveLockRelease(outcomeReleased)
	logging.From(ctx).Infow(
		"save lock released",
		"screenplay", screenplayID,
		"owner", userID,
	)
	return nil
}
