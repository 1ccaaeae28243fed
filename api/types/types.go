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

// Package types provides the types shared between the server components and
// the API surface.
package types

import (
	"strconv"
	"time"
)

// ID is the unique identifier of a user or a screenplay.
type ID string

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// LockType is the kind of save operation a save lock guards.
type LockType string

const (
	// LockTypeManual is a save triggered by the user.
	LockTypeManual LockType = "manual"

	// LockTypeAutosave is a save triggered by the autosave timer.
	LockTypeAutosave LockType = "autosave"
)

// Valid returns true if the lock type is one of the known kinds.
func (t LockType) Valid() bool {
	return t == LockTypeManual || t == LockTypeAutosave
}

// Collaborator is a user authorized to touch a screenplay. The roster is a
// denormalized cache of the source-control host's membership list.
type Collaborator struct {
	ID             ID        `bson:"id" json:"id"`
	GithubUsername string    `bson:"github_username" json:"githubUsername"`
	AvatarURL      string    `bson:"avatar_url" json:"avatarUrl"`
	JoinedAt       time.Time `bson:"joined_at" json:"joinedAt"`
}

// SaveLock is a short-TTL mutual exclusion lock guarding a single concurrent
// save operation per screenplay. A lock whose ExpiresAt has passed is
// logically absent regardless of whether it has been physically cleared.
type SaveLock struct {
	OwnerID    ID        `bson:"owner_id" json:"ownerId"`
	OwnerName  string    `bson:"owner_name" json:"ownerName"`
	LockType   LockType  `bson:"lock_type" json:"lockType"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquiredAt"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expiresAt"`
}

// Expired returns true if the lock is logically absent at the given instant.
func (l *SaveLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// RestoreBlock suspends all content-mutating operations on a screenplay while
// historical content is being restored. Only the restore orchestrator may set
// or clear it.
type RestoreBlock struct {
	BlockedAt time.Time `bson:"blocked_at" json:"blockedAt"`
	BlockedBy ID        `bson:"blocked_by" json:"blockedBy"`
}

// SeedCache is the persisted view of the seed lock. The realtime session
// service is the lock authority; these fields are a write-through cache and
// never an independent decision-maker.
type SeedCache struct {
	Locked   bool      `bson:"locked" json:"locked"`
	LockedBy ID        `bson:"locked_by,omitempty" json:"lockedBy,omitempty"`
	LockedAt time.Time `bson:"locked_at,omitempty" json:"lockedAt,omitempty"`
	SeededAt time.Time `bson:"seeded_at,omitempty" json:"seededAt,omitempty"`
}

// AutosaveIntervalNone disables periodic saves.
const AutosaveIntervalNone = "none"

// AutosaveInterval is the user-configured periodic save cadence: "none" or a
// number of minutes. It is orthogonal to locking.
type AutosaveInterval string

// Valid returns true if the interval is "none" or a positive minute count.
func (i AutosaveInterval) Valid() bool {
	if i == AutosaveIntervalNone {
		return true
	}

	minutes, err := strconv.Atoi(string(i))
	return err == nil && minutes > 0
}

// Minutes returns the interval in minutes and true, or 0 and false when
// autosave is disabled.
func (i AutosaveInterval) Minutes() (int, bool) {
	if i == AutosaveIntervalNone {
		return 0, false
	}

	minutes, err := strconv.Atoi(string(i))
	if err != nil || minutes <= 0 {
		return 0, false
	}

	return minutes, true
}
