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

package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/internal/validation"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend"
	"github.com/greenroom-io/greenroom/server/collaborators"
	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/restore"
	"github.com/greenroom-io/greenroom/server/savelock"
	"github.com/greenroom-io/greenroom/server/seedlock"
)

// handlers bundles the components the REST surface dispatches into.
type handlers struct {
	backend      *backend.Backend
	roster       *collaborators.Registry
	saveLocks    *savelock.Manager
	seedLocks    *seedlock.Coordinator
	orchestrator *restore.Orchestrator
}

func decode(r *http.Request, dto any) error {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		return errors.InvalidArgument("malformed request body")
	}
	return validation.ValidateStruct(dto)
}

func screenplayID(r *http.Request) types.ID {
	return types.ID(chi.URLParam(r, "id"))
}

// statusResponse is the coordination snapshot clients poll.
type statusResponse struct {
	ScreenplayID            types.ID               `json:"screenplayId"`
	SaveLock                *types.SaveLock        `json:"saveLock,omitempty"`
	RestoreBlock            *types.RestoreBlock    `json:"restoreBlock,omitempty"`
	PendingRestoreSHA       string                 `json:"pendingRestoreSha,omitempty"`
	RestoreError            string                 `json:"restoreError,omitempty"`
	LatestRestoredCommitSHA string                 `json:"latestRestoredCommitSha,omitempty"`
	AutosaveInterval        types.AutosaveInterval `json:"autosaveInterval,omitempty"`
	SeedCache               *types.SeedCache       `json:"seedCache,omitempty"`
	Session                 *realtime.RoomStatus   `json:"session,omitempty"`
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	info, err := h.roster.Authorize(r.Context(), screenplayID(r), caller.userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The live session view is best effort: a snapshot must not fail
	// because the realtime service is unreachable.
	session, err := h.backend.Realtime.RoomStatus(r.Context(), info.ScreenplayID.String())
	if err != nil {
		logging.From(r.Context()).Warnw("room status unavailable",
			"screenplay", info.ScreenplayID, "error", err)
		session = nil
	}

	// Expired locks are logically absent and never leak into the snapshot.
	writeJSON(w, r, http.StatusOK, statusResponse{
		ScreenplayID:            info.ScreenplayID,
		SaveLock:                info.ActiveSaveLock(time.Now()),
		RestoreBlock:            info.RestoreBlock,
		PendingRestoreSHA:       info.PendingRestoreSHA,
		RestoreError:            info.RestoreError,
		LatestRestoredCommitSHA: info.LatestRestoredCommitSHA,
		AutosaveInterval:        info.AutosaveInterval,
		SeedCache:               info.SeedCache,
		Session:                 session,
	})
}

type acquireSaveLockRequest struct {
	LockType types.LockType `json:"lockType" validate:"required,oneof=manual autosave"`
}

type saveLockConflictResponse struct {
	Reason       string    `json:"reason"`
	LockedBy     types.ID  `json:"lockedBy"`
	LockedByName string    `json:"lockedByName,omitempty"`
	LockExpiry   time.Time `json:"lockExpiry,omitempty"`
}

func (h *handlers) acquireSaveLock(w http.ResponseWriter, r *http.Request) {
	req := &acquireSaveLockRequest{}
	if err := decode(r, req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := identityFrom(r.Context())
	res, err := h.saveLocks.Acquire(
		r.Context(), screenplayID(r), caller.userID, caller.userName, req.LockType,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !res.Granted {
		writeJSON(w, r, http.StatusConflict, saveLockConflictResponse{
			Reason:       res.Reason,
			LockedBy:     res.LockedBy,
			LockedByName: res.LockedByName,
			LockExpiry:   res.LockExpiresAt,
		})
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"granted":    true,
		"lock":       res.Lock,
		"lockExpiry": res.Lock.ExpiresAt,
	})
}

func (h *handlers) releaseSaveLock(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	if err := h.saveLocks.Release(r.Context(), screenplayID(r), caller.userID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"released": true})
}

type acquireSeedLockRequest struct {
	ActorName string `json:"actorName" validate:"omitempty,max=256"`
}

func (h *handlers) acquireSeedLock(w http.ResponseWriter, r *http.Request) {
	req := &acquireSeedLockRequest{}
	if err := decode(r, req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := identityFrom(r.Context())
	actor := req.ActorName
	if actor == "" {
		actor = caller.userName
	}

	res, err := h.seedLocks.TryAcquire(r.Context(), screenplayID(r), caller.userID, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !res.Granted {
		writeJSON(w, r, http.StatusConflict, map[string]any{
			"reason": res.Reason,
			"epoch":  res.DeniedEpoch,
		})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"granted":       true,
		"epoch":         res.Epoch,
		"lockExpiresAt": res.LockExpiresAt,
	})
}

func (h *handlers) completeSeed(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	if err := h.seedLocks.MarkSeeded(r.Context(), screenplayID(r), caller.userID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"seeded": true})
}

type startRestoreRequest struct {
	TargetSHA string `json:"targetSha" validate:"required,commit_sha"`
	Repo      string `json:"repo" validate:"required,repo_path"`
	Path      string `json:"path" validate:"required"`
	Branch    string `json:"branch" validate:"required"`
}

func (h *handlers) startRestore(w http.ResponseWriter, r *http.Request) {
	req := &startRestoreRequest{}
	if err := decode(r, req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := identityFrom(r.Context())
	sha, err := h.orchestrator.Restore(r.Context(), screenplayID(r), caller.userID, restore.Params{
		TargetSHA: req.TargetSHA,
		Repo:      req.Repo,
		Path:      req.Path,
		Branch:    req.Branch,
		Token:     caller.scmToken,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Convergence confirmation still runs in the background.
	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"restoredCommitSha": sha,
	})
}

func (h *handlers) restoreProgress(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	progress, err := h.orchestrator.Progress(r.Context(), screenplayID(r), caller.userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, progress)
}

func (h *handlers) clearRestore(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	if err := h.orchestrator.ClearPending(r.Context(), screenplayID(r), caller.userID); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"cleared": true})
}

type setAutosaveRequest struct {
	Interval types.AutosaveInterval `json:"interval" validate:"required,autosave_interval"`
}

func (h *handlers) setAutosave(w http.ResponseWriter, r *http.Request) {
	req := &setAutosaveRequest{}
	if err := decode(r, req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := identityFrom(r.Context())
	id := screenplayID(r)
	if _, err := h.roster.Authorize(r.Context(), id, caller.userID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.backend.DB.SetAutosaveInterval(r.Context(), id, req.Interval); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"interval": req.Interval})
}

type syncCollaboratorsRequest struct {
	Repo string `json:"repo" validate:"required,repo_path"`
}

func (h *handlers) syncCollaborators(w http.ResponseWriter, r *http.Request) {
	req := &syncCollaboratorsRequest{}
	if err := decode(r, req); err != nil {
		writeError(w, r, err)
		return
	}

	caller := identityFrom(r.Context())
	roster, err := h.roster.Sync(r.Context(), screenplayID(r), req.Repo, caller.scmToken)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"collaborators": roster})
}

func (h *handlers) listCollaborators(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r.Context())
	info, err := h.roster.Authorize(r.Context(), screenplayID(r), caller.userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"collaborators": info.Collaborators})
}
