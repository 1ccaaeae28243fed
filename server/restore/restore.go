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

// Package restore provides the restore orchestrator. A restore blocks the
// screenplay, evicts live sessions, rewrites content to a prior revision as
// a new commit, and schedules a convergence poll. The block is written ahead
// of any destructive action and a failed restore leaves it in place: a
// crashed or failed restore must be visibly blocked, never silently stale.
package restore

import (
	"context"
	"fmt"
	"time"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/backend/jobs"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
)

const (
	// ReasonRestoreInProgress is the reason code of a restore rejected
	// because another restore still holds the block.
	ReasonRestoreInProgress = "restore_in_progress"

	outcomeCompleted = "completed"
	outcomeFailed    = "failed"

	taskTypeConvergence = "convergence"
)

// Params identify the revision to restore and where it lives.
type Params struct {
	// TargetSHA is the revision whose content the restore reproduces.
	TargetSHA string

	// Repo, Path and Branch locate the screenplay file on the
	// source-control host.
	Repo   string
	Path   string
	Branch string

	// Token is the caller's credential for the source-control host.
	Token string
}

// Progress is the client-facing view of a running or failed restore.
type Progress struct {
	Blocked          bool      `json:"blocked"`
	BlockedBy        types.ID  `json:"blockedBy,omitempty"`
	BlockedAt        time.Time `json:"blockedAt,omitempty"`
	PendingRestoreSHA string   `json:"pendingRestoreSha,omitempty"`
	RestoreError     string    `json:"restoreError,omitempty"`
}

// Orchestrator drives the restore workflow across the status store, the
// realtime session service and the source-control host. No shared
// transaction exists across the three; ordering and compensation rules keep
// them coherent.
type Orchestrator struct {
	db      database.Database
	roster  *collaborators.Registry
	rt      *realtime.Client
	scm     *github.Client
	jobs    *jobs.Registry
	metrics *prometheus.Metrics

	pollInterval    time.Duration
	pollMaxAttempts int
}

// New creates a new Orchestrator.
func New(
	db database.Database,
	roster *collaborators.Registry,
	rt *realtime.Client,
	scm *github.Client,
	registry *jobs.Registry,
	metrics *prometheus.Metrics,
	pollInterval time.Duration,
	pollMaxAttempts int,
) *Orchestrator {
	return &Orchestrator{
		db:      db,
		roster:  roster,
		rt:      rt,
		scm:     scm,
		jobs:    registry,
		metrics: metrics,

		pollInterval:    pollInterval,
		pollMaxAttempts: pollMaxAttempts,
	}
}

// Restore rewrites the screenplay's content to the target revision as a new
// commit on the current head. On success the block is lifted and a
// convergence poll is registered; on failure the block stays set and the
// error is recorded for the progress endpoint.
func (o *Orchestrator) Restore(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
	params Params,
) (string, error) {
	info, err := o.roster.Authorize(ctx, screenplayID, userID)
	if err != nil {
		return "", err
	}

	// 01. No queueing behind a running restore; the caller retries later.
	if info.RestoreBlock != nil {
		return "", errors.Conflict(
			"a restore is already in progress",
		).WithReason(ReasonRestoreInProgress)
	}

	// 02. Write-ahead block before any destructive action.
	if err := o.db.BeginRestore(ctx, screenplayID, &types.RestoreBlock{
		BlockedAt: time.Now(),
		BlockedBy: userID,
	}, params.TargetSHA); err != nil {
		return "", err
	}

	// 03. Evict live sessions. Best effort: content correctness matters
	// more than session hygiene.
	if err := o.rt.Destroy(ctx, screenplayID.String()); err != nil {
		logging.From(ctx).Warnw(
			"session eviction failed during restore",
			"screenplay", screenplayID,
			"error", err,
		)
	}

	// 04. Restore-as-new-commit: read current head blob, read the target
	// revision, write the target content on top of the current blob hash.
	commit, err := o.rewriteContent(ctx, params)
	if err != nil {
		o.metrics.AddRestore(outcomeFailed)
		if failErr := o.db.FailRestore(ctx, screenplayID, err.Error()); failErr != nil {
			logging.From(ctx).Errorw(
				"recording restore failure failed",
				"screenplay", screenplayID,
				"error", failErr,
			)
		}
		logging.From(ctx).Errorw(
			"restore failed, block left in place",
			"screenplay", screenplayID,
			"target", params.TargetSHA,
			"error", err,
		)
		return "", errors.Internal("restore failed: " + err.Error())
	}

	// 05. Record the restored revision and lift the block in one write.
	if err := o.db.CompleteRestore(ctx, screenplayID, commit.SHA); err != nil {
		return "", err
	}

	// 06. Confirm convergence in the background.
	o.registerConvergencePoll(screenplayID, params, commit.SHA)

	o.metrics.AddRestore(outcomeCompleted)
	logging.From(ctx).Infow(
		"restore completed",
		"screenplay", screenplayID,
		"actor", userID,
		"target", params.TargetSHA,
		"commit", commit.SHA,
	)
	return commit.SHA, nil
}

// rewriteContent performs the source-control reads and the optimistic write.
func (o *Orchestrator) rewriteContent(
	ctx context.Context,
	params Params,
) (*github.Commit, error) {
	current, err := o.scm.GetFile(ctx, params.Repo, params.Path, params.Branch, params.Token)
	if err != nil {
		return nil, fmt.Errorf("read current head: %w", err)
	}

	target, err := o.scm.GetFile(ctx, params.Repo, params.Path, params.TargetSHA, params.Token)
	if err != nil {
		return nil, fmt.Errorf("read target revision: %w", err)
	}

	commit, err := o.scm.PutFile(ctx, params.Repo, params.Path, github.PutFileParams{
		Message:  fmt.Sprintf("Restore content to %s", params.TargetSHA),
		Content:  target.Content,
		PriorSHA: current.SHA,
		Branch:   params.Branch,
	}, params.Token)
	if err != nil {
		return nil, fmt.Errorf("write restored revision: %w", err)
	}

	return commit, nil
}

// Progress returns the restore view of the given screenplay for clients
// polling the workflow.
func (o *Orchestrator) Progress(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
) (*Progress, error) {
	info, err := o.roster.Authorize(ctx, screenplayID, userID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		PendingRestoreSHA: info.PendingRestoreSHA,
		RestoreError:      info.RestoreError,
	}
	if info.RestoreBlock != nil {
		progress.Blocked = true
		progress.BlockedBy = info.RestoreBlock.BlockedBy
		progress.BlockedAt = info.RestoreBlock.BlockedAt
	}
	return progress, nil
}

// ClearPending is the manual unlock operation: it cancels any convergence
// poll, clears the block and the transient markers, and asks the session
// service to lift its own block. Used after a failed restore.
func (o *Orchestrator) ClearPending(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
) error {
	if _, err := o.roster.Authorize(ctx, screenplayID, userID); err != nil {
		return err
	}

	o.jobs.Cancel(screenplayID.String())

	if err := o.db.ClearRestoreBlock(ctx, screenplayID); err != nil {
		return err
	}
	if err := o.db.ClearRestoreMarkers(ctx, screenplayID); err != nil {
		return err
	}

	if err := o.rt.Unblock(ctx, screenplayID.String()); err != nil {
		logging.From(ctx).Warnw(
			"session unblock failed during manual clear",
			"screenplay", screenplayID,
			"error", err,
		)
	}

	logging.From(ctx).Infow(
		"restore markers cleared manually",
		"screenplay", screenplayID,
		"actor", userID,
	)
	return nil
}
