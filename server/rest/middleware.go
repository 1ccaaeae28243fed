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
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/greenroom-io/greenroom/api/types"
	"github.com/greenroom-io/greenroom/internal/validation"
	"github.com/greenroom-io/greenroom/pkg/errors"
	"github.com/greenroom-io/greenroom/server/logging"
)

// Identity headers are injected by the gateway in front of this server;
// token issuance and verification happen there.
const (
	headerUserID    = "X-User-Id"
	headerUserName  = "X-User-Name"
	headerSCMToken  = "X-Github-Token"
	headerRequestID = "X-Request-Id"
)

type identityKey struct{}

type identity struct {
	userID   types.ID
	userName string
	scmToken string
}

func identityFrom(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

// withLogger attaches a request-scoped logger carrying a request id.
func withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = xid.New().String()
		}
		logger := logging.New(reqID)
		next.ServeHTTP(w, r.WithContext(logging.With(r.Context(), logger)))
	})
}

// withScreenplayID rejects requests whose screenplay id path parameter is not
// a well-formed key before any handler touches storage with it.
func withScreenplayID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateValue(chi.URLParam(r, "id"), "required,slug"); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withIdentity rejects requests without caller identity and stores the
// identity in the request context.
func withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			writeError(w, r, errors.Unauthenticated("missing caller identity"))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, identity{
			userID:   types.ID(userID),
			userName: r.Header.Get(headerUserName),
			scmToken: r.Header.Get(headerSCMToken),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
