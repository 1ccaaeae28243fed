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

package restore

import (
	"context"
	"time"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/server/logging"
)

const (
	pollOutcomeConverged = "converged"
	pollOutcomeExhausted = "exhausted"
	pollOutcomeCancelled = "cancelled"
)

// registerConvergencePoll starts the background poll confirming the
// source-control host's head caught up to the restored revision. At most one
// poll runs per screenplay; a newer restore replaces the previous poll.
func (o *Orchestrator) registerConvergencePoll(
	screenplayID types.ID,
	params Params,
	wantSHA string,
) {
	o.jobs.RegisterOrReplace(screenplayID.String(), taskTypeConvergence, func(ctx context.Context) {
		o.pollConvergence(ctx, screenplayID, params, wantSHA)
	})
}

// pollConvergence polls the branch head at a fixed interval for a bounded
// number of attempts. The transient markers are cleared on convergence and
// on exhaustion alike; a transport error consumes an attempt. Poll failures
// never surface to any waiting client.
func (o *Orchestrator) pollConvergence(
	ctx context.Context,
	screenplayID types.ID,
	params Params,
	wantSHA string,
) {
	logger := logging.From(ctx)

	for attempt := 1; attempt <= o.pollMaxAttempts; attempt++ {
		select {
		case <-time.After(o.pollInterval):
		case <-ctx.Done():
			o.metrics.AddConvergencePollCompleted(pollOutcomeCancelled)
			return
		}

		o.metrics.AddConvergencePollAttempt()
		head, err := o.scm.GetBranchHead(ctx, params.Repo, params.Branch, params.Token)
		if err != nil {
			logger.Warnw(
				"convergence poll attempt failed",
				"screenplay", screenplayID,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		if head == wantSHA {
			o.finishConvergence(ctx, screenplayID, pollOutcomeConverged)
			return
		}
	}

	// Give up and assume eventual consistency.
	o.finishConvergence(ctx, screenplayID, pollOutcomeExhausted)
}

func (o *Orchestrator) finishConvergence(
	ctx context.Context,
	screenplayID types.ID,
	outcome string,
) {
	if err := o.db.ClearRestoreMarkers(ctx, screenplayID); err != nil {
		logging.From(ctx).Errorw(
			"clearing restore markers failed",
			"screenplay", screenplayID,
			"error", err,
		)
	}

	if err := o.rt.Unblock(ctx, screenplayID.String()); err != nil {
		logging.From(ctx).Warnw(
			"session unblock failed after convergence poll",
			"screenplay", screenplayID,
			"error", err,
		)
	}

	o.metrics.AddConvergencePollCompleted(outcome)
	logging.From(ctx).Infow(
		"convergence poll finished",
		"screenplay", screenplayID,
		"outcome", outcome,
	)
}
