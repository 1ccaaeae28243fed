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
	goerrors "errors"
	"net/http"

	"github.com/greenroom-io/greenroom/internal/validation"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/server/logging"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.From(r.Context()).Warnw("encoding response failed", "error", err)
	}
}

// writeError maps a component error onto the HTTP surface. Status codes come
// from the error taxonomy; reasons ride along for client backoff decisions.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	structError := &validation.StructError{}
	if goerrors.As(err, &structError) {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: structError.Error()})
		return
	}

	status := errors.StatusOf(err)
	if status.IsServerError() {
		logging.From(r.Context()).Errorw("request failed", "error", err)
	}
	writeJSON(w, r, status.HTTPStatus(), errorBody{
		Error:  err.Error(),
		Reason: errors.ReasonOf(err),
	})
}
