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

// Package housekeeping provides the housekeeping service. The housekeeping
// service periodically sweeps expired save locks and stale seed lock cache
// entries out of storage.
package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/logging"
)

// Housekeeping is the housekeeping service. It periodically runs housekeeping
// tasks over the status collection.
type Housekeeping struct {
	database database.Database

	interval                time.Duration
	candidatesLimit         int
	seedCacheStaleThreshold time.Duration

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the housekeeping service.
func Start(conf *Config, database database.Database) (*Housekeeping, error) {
	h, err := New(conf, database)
	if err != nil {
		return nil, err
	}
	if err := h.Start(); err != nil {
		return nil, err
	}

	return h, nil
}

// New creates a new housekeeping instance.
func New(conf *Config, database database.Database) (*Housekeeping, error) {
	interval, err := conf.ParseInterval()
	if err != nil {
		return nil, err
	}

	threshold, err := conf.ParseSeedCacheStaleThreshold()
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Housekeeping{
		database: database,

		interval:                interval,
		candidatesLimit:         conf.CandidatesLimit,
		seedCacheStaleThreshold: threshold,

		ctx:        ctx,
		cancelFunc: cancelFunc,
	}, nil
}

// Start starts the housekeeping service.
func (h *Housekeeping) Start() error {
	go h.run()
	return nil
}

// Stop stops the housekeeping service.
func (h *Housekeeping) Stop() error {
	h.cancelFunc()

	return nil
}

// run is the housekeeping loop.
func (h *Housekeeping) run() {
	for {
		ctx := context.Background()
		if err := h.sweepExpiredSaveLocks(ctx); err != nil {
			logging.From(ctx).Error(err)
		}
		if err := h.sweepStaleSeedCaches(ctx); err != nil {
			logging.From(ctx).Error(err)
		}

		select {
		case <-time.After(h.interval):
		case <-h.ctx.Done():
			return
		}
	}
}

// sweepExpiredSaveLocks clears save locks whose expiry has passed. Expired
// locks are already ignored by readers; the sweep keeps residue from piling
// up in storage.
func (h *Housekeeping) sweepExpiredSaveLocks(ctx context.Context) error {
	scannedAt := time.Now()
	infos, err := h.database.FindExpiredSaveLocks(ctx, scannedAt, h.candidatesLimit)
	if err != nil {
		return fmt.Errorf("find expired save locks: %w", err)
	}

	// The clear is conditional on the scan instant: a lock re-acquired
	// between the scan and the clear must survive.
	for _, info := range infos {
		if err := h.database.ClearExpiredSaveLock(ctx, info.ScreenplayID, scannedAt); err != nil {
			return fmt.Errorf("clear expired save lock of %s: %w", info.ScreenplayID, err)
		}
		logging.From(ctx).Debugw("swept expired save lock", "screenplay", info.ScreenplayID)
	}

	return nil
}

// sweepStaleSeedCaches discards cached seed lock entries that were never
// confirmed seeded within the stale threshold. The realtime service remains
// authoritative; the cache is advisory and safe to drop.
func (h *Housekeeping) sweepStaleSeedCaches(ctx context.Context) error {
	cutoff := time.Now().Add(-h.seedCacheStaleThreshold)
	infos, err := h.database.FindStaleSeedCaches(ctx, cutoff, h.candidatesLimit)
	if err != nil {
		return fmt.Errorf("find stale seed caches: %w", err)
	}

	for _, info := range infos {
		if err := h.database.ClearSeedCache(ctx, info.ScreenplayID); err != nil {
			return fmt.Errorf("clear stale seed cache of %s: %w", info.ScreenplayID, err)
		}
		logging.From(ctx).Debugw("swept stale seed cache", "screenplay", info.ScreenplayID)
	}

	return nil
}
