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

// Package jobs provides a registry of keyed background jobs. At most one job
// runs per key; registering a new job under a key cancels and replaces the
// previous one.
package jobs

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/greenroom-io/greenroom/server/logging"
	"github.com/greenroom-io/greenroom/server/profiling/prometheus"
)

type routineID int32

func (c *routineID) next() string {
	next := atomic.AddInt32((*int32)(c), 1)
	return "j" + strconv.Itoa(int(next))
}

type job struct {
	cancel context.CancelFunc

	// done is closed when the job's goroutine returns.
	done chan struct{}
}

// Registry tracks keyed background jobs and waits for them on close.
type Registry struct {
	// closing is closed by registry close.
	closing chan struct{}

	// wgMu blocks concurrent WaitGroup mutation while the registry is closing.
	wgMu sync.RWMutex

	// wg is used to wait for running jobs to exit when closing the registry.
	wg sync.WaitGroup

	// mu guards jobs.
	mu   sync.Mutex
	jobs map[string]*job

	// routineID is used to generate routine ID.
	routineID routineID

	// metrics is used to collect metrics with prometheus.
	metrics *prometheus.Metrics
}

// New creates a new job registry.
func New(metrics *prometheus.Metrics) *Registry {
	return &Registry{
		closing: make(chan struct{}),
		jobs:    make(map[string]*job),
		metrics: metrics,
	}
}

// RegisterOrReplace starts fn as the job for the given key. If a job is
// already registered under the key, it is cancelled and awaited before the
// new one starts. fn's context is cancelled when the job is replaced,
// cancelled, or the registry closes.
func (r *Registry) RegisterOrReplace(
	key string,
	taskType string,
	fn func(ctx context.Context),
) {
	r.wgMu.RLock() // this blocks with ongoing close(r.closing)
	defer r.wgMu.RUnlock()
	select {
	case <-r.closing:
		logging.DefaultLogger().Warn("job registry has closed; skipping RegisterOrReplace")
		return
	default:
	}

	r.mu.Lock()
	// Re-check after re-locking: a concurrent RegisterOrReplace may have
	// installed a new job under the same key while this one awaited the
	// predecessor.
	for {
		prev, ok := r.jobs[key]
		if !ok {
			break
		}
		prev.cancel()
		r.mu.Unlock()
		<-prev.done
		r.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{cancel: cancel, done: make(chan struct{})}
	r.jobs[key] = j
	r.mu.Unlock()

	// now safe to add since WaitGroup wait has not started yet
	r.wg.Add(1)
	routineLogger := logging.New(r.routineID.next())
	r.metrics.AddBackgroundJobs(taskType)
	go func() {
		defer func() {
			close(j.done)
			r.mu.Lock()
			if r.jobs[key] == j {
				delete(r.jobs, key)
			}
			r.mu.Unlock()
			r.wg.Done()
			r.metrics.RemoveBackgroundJobs(taskType)
		}()
		fn(logging.With(ctx, routineLogger))
	}()
}

// Cancel cancels the job registered under the given key, if any, and waits
// for it to exit.
func (r *Registry) Cancel(key string) {
	r.mu.Lock()
	j, ok := r.jobs[key]
	r.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	<-j.done
}

// Close closes the registry. All running jobs are cancelled and awaited.
func (r *Registry) Close() {
	r.wgMu.Lock()
	close(r.closing)
	r.wgMu.Unlock()

	r.mu.Lock()
	for _, j := range r.jobs {
		j.cancel()
	}
	r.mu.Unlock()

	// wait for jobs before closing the registry
	r.wg.Wait()
}
