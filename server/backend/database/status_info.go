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

package database

import (
	"time"

	"github.com/greenroom-io/greenroom/api/types"
)

// StatusInfo is the per-screenplay coordination record. It is created lazily
// on the first coordination request and never hard-deleted by this server.
type StatusInfo struct {
	ScreenplayID types.ID `bson:"screenplay_id"`

	// Collaborators is the denormalized roster of authorized users.
	Collaborators []types.Collaborator `bson:"collaborators"`

	// CollaboratorIDs is derived from Collaborators on every roster write.
	// Any drift between the two is a bug.
	CollaboratorIDs []types.ID `bson:"collaborator_ids"`

	SaveLock     *types.SaveLock     `bson:"save_lock,omitempty"`
	RestoreBlock *types.RestoreBlock `bson:"restore_block,omitempty"`

	// LatestRestoredCommitSHA records the revision most recently written by
	// a restore. Cleared once the realtime session service is confirmed to
	// have converged on it, or after the poll gives up.
	LatestRestoredCommitSHA   string    `bson:"latest_restored_commit_sha,omitempty"`
	LatestRestoredCommitSetAt time.Time `bson:"latest_restored_commit_set_at,omitempty"`

	PendingRestoreSHA string `bson:"pending_restore_sha,omitempty"`
	RestoreError      string `bson:"restore_error,omitempty"`

	AutosaveInterval types.AutosaveInterval `bson:"autosave_interval,omitempty"`

	SeedCache *types.SeedCache `bson:"seed_cache,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// DeepCopy returns a deep copy of this StatusInfo.
func (i *StatusInfo) DeepCopy() *StatusInfo {
	if i == nil {
		return nil
	}

	copied := *i

	copied.Collaborators = make([]types.Collaborator, len(i.Collaborators))
	copy(copied.Collaborators, i.Collaborators)
	copied.CollaboratorIDs = make([]types.ID, len(i.CollaboratorIDs))
	copy(copied.CollaboratorIDs, i.CollaboratorIDs)

	if i.SaveLock != nil {
		lock := *i.SaveLock
		copied.SaveLock = &lock
	}
	if i.RestoreBlock != nil {
		block := *i.RestoreBlock
		copied.RestoreBlock = &block
	}
	if i.SeedCache != nil {
		cache := *i.SeedCache
		copied.SeedCache = &cache
	}

	return &copied
}

// ActiveSaveLock returns the save lock if it has not expired at the given
// instant. An expired lock is logically absent even when still stored.
func (i *StatusInfo) ActiveSaveLock(now time.Time) *types.SaveLock {
	if i.SaveLock == nil || i.SaveLock.Expired(now) {
		return nil
	}

	return i.SaveLock
}

// HasCollaborator returns true if the given user is in the roster.
func (i *StatusInfo) HasCollaborator(userID types.ID) bool {
	for _, id := range i.CollaboratorIDs {
		if id == userID {
			return true
		}
	}

	return false
}

// DeriveCollaboratorIDs derives the authorization id set from a roster. Both
// database implementations use it so the invariant holds everywhere.
func DeriveCollaboratorIDs(collaborators []types.Collaborator) []types.ID {
	ids := make([]types.ID, 0, len(collaborators))
	for _, collaborator := range collaborators {
		ids = append(ids, collaborator.ID)
	}

	return ids
}
