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

// Package seedlock provides the seed lock coordinator. The realtime session
// service owns the seed lock; this coordinator is an authorization gate and a
// pass-through. The seed fields it persists are a write-through cache of the
// service's answers and never an independent decision-maker.
package seedlock

import (
	"context"
	"time"

	"github.com/rs/xid"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
)

const (
	// ReasonAlreadySeeded is the denial reason of a room whose content has
	// already been loaded.
	ReasonAlreadySeeded = "already_seeded"

	// ReasonAlreadyLocked is the denial reason of a room whose seed lock is
	// held by another actor.
	ReasonAlreadyLocked = "already_locked"

	outcomeGranted     = "granted"
	outcomeDenied      = "denied"
	outcomeUnavailable = "unavailable"
)

// Result is the outcome of a seed acquisition attempt. Exactly one of Grant
// or Denial is populated.
type Result struct {
	Granted bool

	// Epoch and LockExpiresAt are reported by the session service on grant.
	Epoch         int64
	LockExpiresAt time.Time

	// Reason and DeniedEpoch describe the denial when not granted.
	Reason      string
	DeniedEpoch int64
}

// Coordinator gates seed acquisition behind the collaborator roster and
// delegates the lock decision to the realtime session service.
type Coordinator struct {
	db      database.Database
	roster  *collaborators.Registry
	rt      *realtime.Client
	metrics *prometheus.Metrics
}

// New creates a new Coordinator.
func New(
	db database.Database,
	roster *collaborators.Registry,
	rt *realtime.Client,
	metrics *prometheus.Metrics,
) *Coordinator {
	return &Coordinator{
		db:      db,
		roster:  roster,
		rt:      rt,
		metrics: metrics,
	}
}

// TryAcquire attempts to take the seed lock of the given screenplay's room.
// A denial means someone else seeded or is seeding; an error means the
// caller is not authorized or the session service is unreachable. The two
// must never be conflated.
func (c *Coordinator) TryAcquire(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
	actorName string,
) (*Result, error) {
	if _, err := c.roster.Authorize(ctx, screenplayID, userID); err != nil {
		return nil, err
	}

	status, err := c.rt.SeedStatus(ctx, screenplayID.String())
	if err != nil {
		c.metrics.AddSeedProbe(outcomeUnavailable)
		return nil, err
	}

	// Seeded rooms deny everyone, including the original seeder.
	if status.Seeded {
		c.metrics.AddSeedProbe(outcomeDenied)
		return &Result{Reason: ReasonAlreadySeeded, DeniedEpoch: status.Epoch}, nil
	}
	if status.Locked {
		c.metrics.AddSeedProbe(outcomeDenied)
		return &Result{Reason: ReasonAlreadyLocked, DeniedEpoch: status.Epoch}, nil
	}

	requestID := xid.New().String()
	grant, denial, err := c.rt.SeedProbe(ctx, screenplayID.String(), actorName, requestID)
	if err != nil {
		c.metrics.AddSeedProbe(outcomeUnavailable)
		return nil, err
	}
	if denial != nil {
		c.metrics.AddSeedProbe(outcomeDenied)
		logging.From(ctx).Infow(
			"seed probe denied",
			"screenplay", screenplayID,
			"actor", userID,
			"reason", denial.Reason,
			"epoch", denial.Epoch,
		)
		return &Result{Reason: denial.Reason, DeniedEpoch: denial.Epoch}, nil
	}

	// Cache write failures do not undo the grant; the session service
	// already holds the lock and housekeeping sweeps stale entries.
	if err := c.db.SetSeedCache(ctx, screenplayID, &types.SeedCache{
		Locked:   true,
		LockedBy: userID,
		LockedAt: time.Now(),
	}); err != nil {
		logging.From(ctx).Warnw(
			"seed cache write failed",
			"screenplay", screenplayID,
			"error", err,
		)
	}

	c.metrics.AddSeedProbe(outcomeGranted)
	logging.From(ctx).Infow(
		"seed lock granted",
		"screenplay", screenplayID,
		"actor", userID,
		"epoch", grant.Epoch,
		"lock_expires_at", grant.LockExpiresAt,
	)
	return &Result{
		Granted:       true,
		Epoch:         grant.Epoch,
		LockExpiresAt: grant.LockExpiresAt,
	}, nil
}

// MarkSeeded records in the cache that seeding finished. Called by the REST
// surface when the seeder reports completion; the session service remains
// the authority on the seeded bit.
func (c *Coordinator) MarkSeeded(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
) error {
	if _, err := c.roster.Authorize(ctx, screenplayID, userID); err != nil {
		return err
	}

	return c.db.SetSeedCache(ctx, screenplayID, &types.SeedCache{
		Locked:   true,
		LockedBy: userID,
		LockedAt: time.Now(),
		SeededAt: time.Now(),
	})
}
