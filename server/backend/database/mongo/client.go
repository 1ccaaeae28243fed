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

// Package mongo implements the database interface using MongoDB. It is the
// authoritative status store in production deployments.
package mongo

import (
	"context"
	"errors"
	"fmt"
	gotime "time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/logging"
)

const statusCacheSize = 1000

// Client is a client that connects to MongoDB and reads or saves Greenroom
// coordination state.
type Client struct {
	config *Config
	client *mongo.Client

	// statusCache is a read cache. Every write path evicts the key; the
	// store stays the single decision-maker.
	statusCache *lru.Cache[types.ID, *database.StatusInfo]
}

// Dial creates an instance of Client and dials the given MongoDB.
func Dial(conf *Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(conf.ConnectionURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(ctx, conf.ParsePingTimeout())
	defer cancelPing()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	if err := ensureIndexes(ctx, client.Database(conf.GreenroomDatabase)); err != nil {
		return nil, err
	}

	statusCache, err := lru.New[types.ID, *database.StatusInfo](statusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("initialize status cache: %w", err)
	}

	logging.DefaultLogger().Infof(
		"MongoDB connected, URI: %s, DB: %s",
		conf.ConnectionURI,
		conf.GreenroomDatabase,
	)

	return &Client{
		config:      conf,
		client:      client,
		statusCache: statusCache,
	}, nil
}

// Close all resources of this client.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	return nil
}

// EnsureStatusInfo returns the status of the given screenplay, creating it
// lazily on first touch.
func (c *Client) EnsureStatusInfo(
	ctx context.Context,
	screenplayID types.ID,
) (*database.StatusInfo, error) {
	now := gotime.Now()
	result := c.collection().FindOneAndUpdate(ctx, bson.M{
		"screenplay_id": screenplayID,
	}, bson.M{
		"$setOnInsert": bson.M{
			"collaborators":     []types.Collaborator{},
			"collaborator_ids":  []types.ID{},
			"autosave_interval": types.AutosaveIntervalNone,
			"created_at":        now,
			"updated_at":        now,
		},
	}, options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After),
	)

	info := &database.StatusInfo{}
	if err := result.Decode(info); err != nil {
		return nil, fmt.Errorf("ensure status of %s: %w", screenplayID, err)
	}

	c.statusCache.Add(screenplayID, info.DeepCopy())
	return info, nil
}

// FindStatusInfo returns the status of the given screenplay.
func (c *Client) FindStatusInfo(
	ctx context.Context,
	screenplayID types.ID,
) (*database.StatusInfo, error) {
	if cached, ok := c.statusCache.Get(screenplayID); ok {
		return cached.DeepCopy(), nil
	}

	result := c.collection().FindOne(ctx, bson.M{
		"screenplay_id": screenplayID,
	})

	info := &database.StatusInfo{}
	if err := result.Decode(info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrStatusNotFound
		}
		return nil, fmt.Errorf("find status of %s: %w", screenplayID, err)
	}

	c.statusCache.Add(screenplayID, info.DeepCopy())
	return info, nil
}

// UpdateCollaborators replaces the collaborator roster and the derived id set
// in a single update.
func (c *Client) UpdateCollaborators(
	ctx context.Context,
	screenplayID types.ID,
	collaborators []types.Collaborator,
) (*database.StatusInfo, error) {
	result := c.collection().FindOneAndUpdate(ctx, bson.M{
		"screenplay_id": screenplayID,
	}, bson.M{
		"$set": bson.M{
			"collaborators":    collaborators,
			"collaborator_ids": database.DeriveCollaboratorIDs(collaborators),
			"updated_at":       gotime.Now(),
		},
	}, options.FindOneAndUpdate().SetReturnDocument(options.After))

	info := &database.StatusInfo{}
	if err := result.Decode(info); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrStatusNotFound
		}
		return nil, fmt.Errorf("update collaborators of %s: %w", screenplayID, err)
	}

	c.statusCache.Add(screenplayID, info.DeepCopy())
	return info, nil
}

// SetSaveLock installs the given save lock unconditionally.
func (c *Client) SetSaveLock(
	ctx context.Context,
	screenplayID types.ID,
	lock *types.SaveLock,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{"save_lock": lock},
	})
}

// ClearSaveLock removes the save lock if present.
func (c *Client) ClearSaveLock(ctx context.Context, screenplayID types.ID) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$unset": bson.M{"save_lock": ""},
	})
}

// ClearExpiredSaveLock removes the save lock only if it expired before the
// given instant. The expiry condition is part of the update filter so a lock
// re-acquired after the expiry scan survives; matching nothing is not an
// error.
func (c *Client) ClearExpiredSaveLock(
	ctx context.Context,
	screenplayID types.ID,
	before gotime.Time,
) error {
	if _, err := c.collection().UpdateOne(ctx, bson.M{
		"screenplay_id":        screenplayID,
		"save_lock.expires_at": bson.M{"$lte": before},
	}, bson.M{
		"$unset": bson.M{"save_lock": ""},
		"$set":   bson.M{"updated_at": gotime.Now()},
	}); err != nil {
		return fmt.Errorf("clear expired save lock of %s: %w", screenplayID, err)
	}

	return nil
}

// BeginRestore sets the restore block and the pending revision and clears any
// previous restore error in a single update.
func (c *Client) BeginRestore(
	ctx context.Context,
	screenplayID types.ID,
	block *types.RestoreBlock,
	pendingSHA string,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{
			"restore_block":       block,
			"pending_restore_sha": pendingSHA,
		},
		"$unset": bson.M{"restore_error": ""},
	})
}

// CompleteRestore records the restored revision and clears the restore block
// in a single update.
func (c *Client) CompleteRestore(
	ctx context.Context,
	screenplayID types.ID,
	sha string,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{
			"latest_restored_commit_sha":    sha,
			"latest_restored_commit_set_at": gotime.Now(),
		},
		"$unset": bson.M{"restore_block": ""},
	})
}

// FailRestore records the restore error and leaves the restore block set.
func (c *Client) FailRestore(
	ctx context.Context,
	screenplayID types.ID,
	message string,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{"restore_error": message},
	})
}

// ClearRestoreBlock removes the restore block.
func (c *Client) ClearRestoreBlock(ctx context.Context, screenplayID types.ID) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$unset": bson.M{"restore_block": ""},
	})
}

// ClearRestoreMarkers removes the transient restore markers.
func (c *Client) ClearRestoreMarkers(ctx context.Context, screenplayID types.ID) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$unset": bson.M{
			"latest_restored_commit_sha":    "",
			"latest_restored_commit_set_at": "",
			"pending_restore_sha":           "",
		},
	})
}

// SetAutosaveInterval stores the periodic save cadence.
func (c *Client) SetAutosaveInterval(
	ctx context.Context,
	screenplayID types.ID,
	interval types.AutosaveInterval,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{"autosave_interval": interval},
	})
}

// SetSeedCache writes the cached view of the seed lock.
func (c *Client) SetSeedCache(
	ctx context.Context,
	screenplayID types.ID,
	cache *types.SeedCache,
) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$set": bson.M{"seed_cache": cache},
	})
}

// ClearSeedCache removes the cached view of the seed lock.
func (c *Client) ClearSeedCache(ctx context.Context, screenplayID types.ID) error {
	return c.updateStatus(ctx, screenplayID, bson.M{
		"$unset": bson.M{"seed_cache": ""},
	})
}

// FindExpiredSaveLocks returns statuses whose save lock expired before the
// given instant.
func (c *Client) FindExpiredSaveLocks(
	ctx context.Context,
	before gotime.Time,
	limit int,
) ([]*database.StatusInfo, error) {
	cursor, err := c.collection().Find(ctx, bson.M{
		"save_lock.expires_at": bson.M{"$lte": before},
	}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find expired save locks: %w", err)
	}

	var infos []*database.StatusInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("decode expired save locks: %w", err)
	}

	return infos, nil
}

// FindStaleSeedCaches returns statuses whose cached seed lock was taken before
// the cutoff and never confirmed seeded.
func (c *Client) FindStaleSeedCaches(
	ctx context.Context,
	cutoff gotime.Time,
	limit int,
) ([]*database.StatusInfo, error) {
	cursor, err := c.collection().Find(ctx, bson.M{
		"seed_cache.locked":    true,
		"seed_cache.locked_at": bson.M{"$lte": cutoff},
		"$or": bson.A{
			bson.M{"seed_cache.seeded_at": bson.M{"$exists": false}},
			bson.M{"seed_cache.seeded_at": gotime.Time{}},
		},
	}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find stale seed caches: %w", err)
	}

	var infos []*database.StatusInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("decode stale seed caches: %w", err)
	}

	return infos, nil
}

// updateStatus applies the given update and bumps updated_at. The key is
// evicted from the read cache so the next read sees the store's truth.
func (c *Client) updateStatus(
	ctx context.Context,
	screenplayID types.ID,
	update bson.M,
) error {
	set, ok := update["$set"].(bson.M)
	if !ok {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = gotime.Now()

	result, err := c.collection().UpdateOne(ctx, bson.M{
		"screenplay_id": screenplayID,
	}, update)
	if err != nil {
		return fmt.Errorf("update status of %s: %w", screenplayID, err)
	}
	if result.MatchedCount == 0 {
		return database.ErrStatusNotFound
	}

	c.statusCache.Remove(screenplayID)
	return nil
}

func (c *Client) collection() *mongo.Collection {
	return c.client.
		Database(c.config.GreenroomDatabase).
		Collection(ColStatuses)
}
