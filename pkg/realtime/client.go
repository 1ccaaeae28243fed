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

// Package realtime provides a client for the realtime session service that
// holds live collaborative-editing state and client connections.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/greenroom-io/greenroom/pkg/errors"
)

var (
	// ErrUnavailable is returned when the realtime session service itself is
	// unreachable. It must never be conflated with a lock denial.
	ErrUnavailable = errors.Unavailable("realtime session service unreachable").WithReason("hp_unavailable")
)

const internalTokenHeader = "X-Internal-Token"

// Config is the configuration for creating a Client instance.
type Config struct {
	BaseURL        string `yaml:"BaseURL"`
	InternalToken  string `yaml:"InternalToken"`
	RequestTimeout string `yaml:"RequestTimeout"`
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf(`invalid argument "" for "--realtime-base-url" flag`)
	}

	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--realtime-request-timeout" flag: %w`,
			c.RequestTimeout,
			err,
		)
	}

	return nil
}

// ParseRequestTimeout returns the request timeout duration.
func (c *Config) ParseRequestTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 10 * time.Second
	}

	return timeout
}

// RoomStatus is the live view of a document room.
type RoomStatus struct {
	Active      bool `json:"active"`
	Connections int  `json:"connections"`
	Blocked     bool `json:"blocked"`
}

// SeedStatus is the session service's view of the seed state of a room.
// Epoch is the service's monotonically increasing lock version.
type SeedStatus struct {
	Seeded        bool      `json:"seeded"`
	Locked        bool      `json:"locked"`
	Epoch         int64     `json:"epoch"`
	LockedBy      string    `json:"lockedBy,omitempty"`
	LockExpiresAt time.Time `json:"lockExpiresAt,omitempty"`
}

// SeedGrant is a successful seed-probe result.
type SeedGrant struct {
	Epoch         int64     `json:"epoch"`
	LockExpiresAt time.Time `json:"lockExpiresAt"`
}

// SeedDenial is the session service's own rejection of a seed probe,
// surfaced verbatim to the caller.
type SeedDenial struct {
	Reason string `json:"reason"`
	Epoch  int64  `json:"epoch"`
}

// Client is a client for the realtime session service. All requests carry the
// shared internal token header.
type Client struct {
	conf       *Config
	httpClient *http.Client
}

// NewClient creates a new instance of Client.
func NewClient(conf *Config) *Client {
	return &Client{
		conf: conf,
		httpClient: &http.Client{
			Timeout: conf.ParseRequestTimeout(),
		},
	}
}

// RoomStatus returns the live status of the given room. A 404 means no active
// session and is a benign default, not an error.
func (c *Client) RoomStatus(ctx context.Context, room string) (*RoomStatus, error) {
	status := &RoomStatus{}
	found, err := c.get(ctx, fmt.Sprintf("/sessions/%s/status", room), status)
	if err != nil {
		return nil, err
	}
	if !found {
		return &RoomStatus{}, nil
	}

	return status, nil
}

// SeedStatus returns the seed state of the given room. A 404 means "not
// seeded, not locked", the safe default.
func (c *Client) SeedStatus(ctx context.Context, room string) (*SeedStatus, error) {
	status := &SeedStatus{}
	found, err := c.get(ctx, fmt.Sprintf("/sessions/%s/seed-status", room), status)
	if err != nil {
		return nil, err
	}
	if !found {
		return &SeedStatus{}, nil
	}

	return status, nil
}

// SeedProbe asks the session service to take its seed lock for the given
// actor. A 409 response is the service's own denial and is returned as such;
// transport failures return ErrUnavailable.
func (c *Client) SeedProbe(
	ctx context.Context,
	room string,
	actor string,
	requestID string,
) (*SeedGrant, *SeedDenial, error) {
	body, err := json.Marshal(map[string]string{
		"actor":     actor,
		"requestId": requestID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal seed probe: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%s/seed-probe", room), body)
	if err != nil {
		return nil, nil, fmt.Errorf("probe seed of %s: %w", room, ErrUnavailable)
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusConflict:
		denial := &SeedDenial{}
		if err := json.NewDecoder(resp.Body).Decode(denial); err != nil {
			return nil, nil, fmt.Errorf("decode seed denial of %s: %w", room, ErrUnavailable)
		}
		return nil, denial, nil
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		grant := &SeedGrant{}
		if err := json.NewDecoder(resp.Body).Decode(grant); err != nil {
			return nil, nil, fmt.Errorf("decode seed grant of %s: %w", room, ErrUnavailable)
		}
		return grant, nil, nil
	default:
		return nil, nil, fmt.Errorf("probe seed of %s: %d: %w", room, resp.StatusCode, ErrUnavailable)
	}
}

// Destroy forcibly evicts all active sessions of the given room.
func (c *Client) Destroy(ctx context.Context, room string) error {
	return c.post(ctx, fmt.Sprintf("/sessions/%s/destroy", room))
}

// Unblock lifts the session-level block of the given room.
func (c *Client) Unblock(ctx context.Context, room string) error {
	return c.post(ctx, fmt.Sprintf("/sessions/%s/unblock", room))
}

// get issues a GET and decodes the body into out. It returns false without an
// error on a 404.
func (c *Client) get(ctx context.Context, path string, out interface{}) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, ErrUnavailable)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, fmt.Errorf("get %s: %d: %w", path, resp.StatusCode, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, ErrUnavailable)
	}

	return true, nil
}

func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, ErrUnavailable)
	}
	defer closeBody(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post %s: %d: %w", path, resp.StatusCode, ErrUnavailable)
	}

	return nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body []byte,
) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.conf.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(internalTokenHeader, c.conf.InternalToken)

	return c.httpClient.Do(req)
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}
