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

// Package collaborators keeps the per-screenplay collaborator roster in sync
// with the source-control host's repository membership and answers
// authorization checks against it.
package collaborators

import (
	"context"
	"strconv"
	"time"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/server/backend/database"
	"github.com/greenroom-io/greenroom/server/logging"
)

// ReasonNotCollaborator is the reason code attached to authorization
// failures of users outside the roster.
const ReasonNotCollaborator = "not_collaborator"

// Registry reconciles and queries the collaborator roster.
type Registry struct {
	db  database.Database
	scm *github.Client
}

// New creates a new Registry.
func New(db database.Database, scm *github.Client) *Registry {
	return &Registry{
		db:  db,
		scm: scm,
	}
}

// Sync replaces the roster of the given screenplay with the repository's
// current membership list. Entries that survive the sync keep their original
// JoinedAt; newcomers are stamped with the current time.
func (r *Registry) Sync(
	ctx context.Context,
	screenplayID types.ID,
	repo string,
	token string,
) ([]types.Collaborator, error) {
	info, err := r.db.EnsureStatusInfo(ctx, screenplayID)
	if err != nil {
		return nil, err
	}

	members, err := r.scm.ListCollaborators(ctx, repo, token)
	if err != nil {
		return nil, err
	}

	joined := make(map[string]time.Time, len(info.Collaborators))
	for _, collab := range info.Collaborators {
		joined[collab.GithubUsername] = collab.JoinedAt
	}

	now := time.Now()
	roster := make([]types.Collaborator, 0, len(members))
	for _, member := range members {
		joinedAt, ok := joined[member.Login]
		if !ok {
			joinedAt = now
		}
		roster = append(roster, types.Collaborator{
			ID:             types.ID(strconv.FormatInt(member.ID, 10)),
			GithubUsername: member.Login,
			AvatarURL:      member.AvatarURL,
			JoinedAt:       joinedAt,
		})
	}

	updated, err := r.db.UpdateCollaborators(ctx, screenplayID, roster)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Infow(
		"collaborator roster synced",
		"screenplay", screenplayID,
		"members", len(updated.Collaborators),
	)
	return updated.Collaborators, nil
}

// Authorize returns the status of the given screenplay if the user is on its
// roster. Users outside the roster are rejected regardless of what they ask
// for.
func (r *Registry) Authorize(
	ctx context.Context,
	screenplayID types.ID,
	userID types.ID,
) (*database.StatusInfo, error) {
	info, err := r.db.EnsureStatusInfo(ctx, screenplayID)
	if err != nil {
		return nil, err
	}

	if !info.HasCollaborator(userID) {
		return nil, errors.Forbidden(
			"user is not a collaborator of this screenplay",
		).WithReason(ReasonNotCollaborator)
	}

	return info, nil
}
