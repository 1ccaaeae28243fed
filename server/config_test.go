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

package server_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/server"
)

func TestNewConfigFromFile(t *testing.T) {
	t.Run("fail read config file test", func(t *testing.T) {
		conf := server.NewConfig()
		assert.Equal(t, conf.RESTAddr(), "localhost:"+strconv.Itoa(server.DefaultRESTPort))
		_, err := server.NewConfigFromFile("nowhere.yml")
		assert.Error(t, err)
		assert.Equal(t, conf.REST.Port, server.DefaultRESTPort)
		assert.Equal(t, conf.Profiling.Port, server.DefaultProfilingPort)

		saveLockTTL, err := time.ParseDuration(conf.Backend.SaveLockTTL)
		assert.NoError(t, err)
		assert.Equal(t, saveLockTTL, server.DefaultSaveLockTTL)
		assert.Equal(t, conf.Backend.ConvergencePollMaxAttempts, server.DefaultConvergencePollMaxAttempts)
	})

	t.Run("read config file test", func(t *testing.T) {
		conf, err := server.NewConfigFromFile("config.sample.yml")
		assert.NoError(t, err)
		assert.NoError(t, conf.Validate())

		assert.Equal(t, conf.REST.Port, server.DefaultRESTPort)
		assert.Equal(t, conf.Profiling.Port, server.DefaultProfilingPort)

		connTimeout, err := time.ParseDuration(conf.Mongo.ConnectionTimeout)
		assert.NoError(t, err)
		assert.Equal(t, connTimeout, server.DefaultMongoConnectionTimeout)
		assert.Equal(t, conf.Mongo.ConnectionURI, server.DefaultMongoConnectionURI)
		assert.Equal(t, conf.Mongo.GreenroomDatabase, server.DefaultMongoGreenroomDatabase)

		interval, err := time.ParseDuration(conf.Housekeeping.Interval)
		assert.NoError(t, err)
		assert.Equal(t, interval, server.DefaultHousekeepingInterval)
		assert.Equal(t, conf.Housekeeping.CandidatesLimit, server.DefaultHousekeepingCandidatesLimit)

		pollInterval, err := time.ParseDuration(conf.Backend.ConvergencePollInterval)
		assert.NoError(t, err)
		assert.Equal(t, pollInterval, server.DefaultConvergencePollInterval)

		assert.Equal(t, conf.Realtime.BaseURL, server.DefaultRealtimeBaseURL)
		assert.Equal(t, conf.GitHub.BaseURL, server.DefaultGitHubBaseURL)
	})

	t.Run("ensure default value test", func(t *testing.T) {
		conf := server.NewConfig()
		assert.NoError(t, conf.Validate())
		assert.Nil(t, conf.Mongo)
		assert.Equal(t, conf.Realtime.BaseURL, server.DefaultRealtimeBaseURL)
		assert.Equal(t, conf.GitHub.UserAgent, server.DefaultGitHubUserAgent)
	})
}
