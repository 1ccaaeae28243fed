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

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/greenroom-io/greenroom/pkg/github"
	"github.com/greenroom-io/greenroom/pkg/realtime"
	"github.com/greenroom-io/greenroom/server/backend"
	"github.com/greenroom-io/greenroom/server/backend/database/mongo"
	"github.com/greenroom-io/greenroom/server/backend/housekeeping"
	"github.com/greenroom-io/greenroom/server/profiling"
	"github.com/greenroom-io/greenroom/server/rest"
)

// Below are the values of the default values of Greenroom config.
const (
	DefaultRESTPort      = 8080
	DefaultProfilingPort = 8081

	DefaultHousekeepingInterval                = 30 * time.Second
	DefaultHousekeepingCandidatesLimit         = 500
	DefaultHousekeepingSeedCacheStaleThreshold = 10 * time.Minute

	DefaultMongoConnectionURI     = "mongodb://localhost:27017"
	DefaultMongoConnectionTimeout = 5 * time.Second
	DefaultMongoPingTimeout       = 5 * time.Second
	DefaultMongoGreenroomDatabase = "greenroom-meta"

	DefaultSaveLockTTL                = 15 * time.Second
	DefaultConvergencePollInterval    = 10 * time.Second
	DefaultConvergencePollMaxAttempts = 6

	DefaultRealtimeBaseURL        = "http://localhost:8090"
	DefaultRealtimeRequestTimeout = 5 * time.Second

	DefaultGitHubBaseURL        = "https://api.github.com"
	DefaultGitHubUserAgent      = "greenroom-server"
	DefaultGitHubRequestTimeout = 20 * time.Second

	DefaultHostname = ""
)

// Config is the configuration for creating a Greenroom instance.
type Config struct {
	REST         *rest.Config         `yaml:"REST"`
	Profiling    *profiling.Config    `yaml:"Profiling"`
	Housekeeping *housekeeping.Config `yaml:"Housekeeping"`
	Backend      *backend.Config      `yaml:"Backend"`
	Mongo        *mongo.Config        `yaml:"Mongo"`
	Realtime     *realtime.Config     `yaml:"Realtime"`
	GitHub       *github.Config       `yaml:"GitHub"`
}

// NewConfig returns a Config struct that contains reasonable defaults
// for most of the configurations.
func NewConfig() *Config {
	return newConfig(DefaultRESTPort, DefaultProfilingPort)
}

// NewConfigFromFile returns a Config struct for the given conf file.
func NewConfigFromFile(path string) (*Config, error) {
	conf := &Config{}
	bytes, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err = yaml.Unmarshal(bytes, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config file: %w", err)
	}

	conf.ensureDefaultValue()
	return conf, nil
}

// RESTAddr returns the REST address.
func (c *Config) RESTAddr() string {
	return fmt.Sprintf("localhost:%d", c.REST.Port)
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if err := c.REST.Validate(); err != nil {
		return err
	}

	if err := c.Profiling.Validate(); err != nil {
		return err
	}

	if err := c.Housekeeping.Validate(); err != nil {
		return err
	}

	if err := c.Backend.Validate(); err != nil {
		return err
	}

	if c.Mongo != nil {
		if err := c.Mongo.Validate(); err != nil {
			return err
		}
	}

	if err := c.Realtime.Validate(); err != nil {
		return err
	}

	if err := c.GitHub.Validate(); err != nil {
		return err
	}

	return nil
}

// ensureDefaultValue sets the value of the option to which the default value
// should be applied when the user does not input it.
func (c *Config) ensureDefaultValue() {
	if c.REST == nil {
		c.REST = &rest.Config{}
	}
	if c.REST.Port == 0 {
		c.REST.Port = DefaultRESTPort
	}

	if c.Profiling == nil {
		c.Profiling = &profiling.Config{}
	}
	if c.Profiling.Port == 0 {
		c.Profiling.Port = DefaultProfilingPort
	}

	if c.Housekeeping == nil {
		c.Housekeeping = &housekeeping.Config{}
	}
	if c.Housekeeping.Interval == "" {
		c.Housekeeping.Interval = DefaultHousekeepingInterval.String()
	}
	if c.Housekeeping.CandidatesLimit == 0 {
		c.Housekeeping.CandidatesLimit = DefaultHousekeepingCandidatesLimit
	}
	if c.Housekeeping.SeedCacheStaleThreshold == "" {
		c.Housekeeping.SeedCacheStaleThreshold = DefaultHousekeepingSeedCacheStaleThreshold.String()
	}

	if c.Backend == nil {
		c.Backend = &backend.Config{}
	}
	if c.Backend.SaveLockTTL == "" {
		c.Backend.SaveLockTTL = DefaultSaveLockTTL.String()
	}
	if c.Backend.ConvergencePollInterval == "" {
		c.Backend.ConvergencePollInterval = DefaultConvergencePollInterval.String()
	}
	if c.Backend.ConvergencePollMaxAttempts == 0 {
		c.Backend.ConvergencePollMaxAttempts = DefaultConvergencePollMaxAttempts
	}

	if c.Mongo != nil {
		if c.Mongo.ConnectionURI == "" {
			c.Mongo.ConnectionURI = DefaultMongoConnectionURI
		}
		if c.Mongo.ConnectionTimeout == "" {
			c.Mongo.ConnectionTimeout = DefaultMongoConnectionTimeout.String()
		}
		if c.Mongo.GreenroomDatabase == "" {
			c.Mongo.GreenroomDatabase = DefaultMongoGreenroomDatabase
		}
		if c.Mongo.PingTimeout == "" {
			c.Mongo.PingTimeout = DefaultMongoPingTimeout.String()
		}
	}

	if c.Realtime == nil {
		c.Realtime = &realtime.Config{}
	}
	if c.Realtime.BaseURL == "" {
		c.Realtime.BaseURL = DefaultRealtimeBaseURL
	}
	if c.Realtime.RequestTimeout == "" {
		c.Realtime.RequestTimeout = DefaultRealtimeRequestTimeout.String()
	}

	if c.GitHub == nil {
		c.GitHub = &github.Config{}
	}
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = DefaultGitHubBaseURL
	}
	if c.GitHub.UserAgent == "" {
		c.GitHub.UserAgent = DefaultGitHubUserAgent
	}
	if c.GitHub.RequestTimeout == "" {
		c.GitHub.RequestTimeout = DefaultGitHubRequestTimeout.String()
	}
}

func newConfig(port int, profilingPort int) *Config {
	return &Config{
		REST: &rest.Config{
			Port: port,
		},
		Profiling: &profiling.Config{
			Port: profilingPort,
		},
		Housekeeping: &housekeeping.Config{
			Interval:                DefaultHousekeepingInterval.String(),
			CandidatesLimit:         DefaultHousekeepingCandidatesLimit,
			SeedCacheStaleThreshold: DefaultHousekeepingSeedCacheStaleThreshold.String(),
		},
		Backend: &backend.Config{
			SaveLockTTL:                DefaultSaveLockTTL.String(),
			ConvergencePollInterval:    DefaultConvergencePollInterval.String(),
			ConvergencePollMaxAttempts: DefaultConvergencePollMaxAttempts,
		},
		Realtime: &realtime.Config{
			BaseURL:        DefaultRealtimeBaseURL,
			RequestTimeout: DefaultRealtimeRequestTimeout.String(),
		},
		GitHub: &github.Config{
			BaseURL:        DefaultGitHubBaseURL,
			UserAgent:      DefaultGitHubUserAgent,
			RequestTimeout: DefaultGitHubRequestTimeout.String(),
		},
	}
}
