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

package backend

import (
	"fmt"
	"time"
)

// Config is the configuration for creating a Backend instance.
type Config struct {
	// Hostname is the name of the host.
	Hostname string `yaml:"Hostname"`

	// SaveLockTTL is the lifetime of a save lock. Save locks are never
	// renewed; holders must finish within this window.
	SaveLockTTL string `yaml:"SaveLockTTL"`

	// ConvergencePollInterval is the time between convergence poll attempts
	// after a restore commit lands.
	ConvergencePollInterval string `yaml:"ConvergencePollInterval"`

	// ConvergencePollMaxAttempts is the number of convergence poll attempts
	// before the poller gives up and clears the restore markers anyway.
	ConvergencePollMaxAttempts int `yaml:"ConvergencePollMaxAttempts"`
}

// Validate validates this config.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.SaveLockTTL); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--save-lock-ttl" flag: %w`,
			c.SaveLockTTL,
			err,
		)
	}

	if _, err := time.ParseDuration(c.ConvergencePollInterval); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--convergence-poll-interval" flag: %w`,
			c.ConvergencePollInterval,
			err,
		)
	}

	if c.ConvergencePollMaxAttempts <= 0 {
		return fmt.Errorf(
			`invalid argument %d for "--convergence-poll-max-attempts" flag`,
			c.ConvergencePollMaxAttempts,
		)
	}

	return nil
}

// ParseSaveLockTTL returns the save lock TTL.
func (c *Config) ParseSaveLockTTL() time.Duration {
	ttl, err := time.ParseDuration(c.SaveLockTTL)
	if err != nil {
		ttl = 15 * time.Second
	}

	return ttl
}

// ParseConvergencePollInterval returns the convergence poll interval.
func (c *Config) ParseConvergencePollInterval() time.Duration {
	interval, err := time.ParseDuration(c.ConvergencePollInterval)
	if err != nil {
		interval = 10 * time.Second
	}

	return interval
}
