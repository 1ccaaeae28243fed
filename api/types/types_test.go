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

package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/greenroom-io/greenroom/api/types"
)

func TestSaveLock(t *testing.T) {
	t.Run("expiry boundary test", func(t *testing.T) {
		now := time.Now()
		lock := &types.SaveLock{
			OwnerID:    "u1",
			AcquiredAt: now,
			ExpiresAt:  now.Add(15 * time.Second),
		}

		assert.False(t, lock.Expired(now))
		assert.True(t, lock.Expired(now.Add(15*time.Second)))
		assert.True(t, lock.Expired(now.Add(16*time.Second)))
	})
}

func TestAutosaveInterval(t *testing.T) {
	t.Run("valid values test", func(t *testing.T) {
		assert.True(t, types.AutosaveInterval("none").Valid())
		assert.True(t, types.AutosaveInterval("5").Valid())
		assert.False(t, types.AutosaveInterval("0").Valid())
		assert.False(t, types.AutosaveInterval("-1").Valid())
		assert.False(t, types.AutosaveInterval("every5").Valid())
		assert.False(t, types.AutosaveInterval("").Valid())
	})

	t.Run("minutes extraction test", func(t *testing.T) {
		minutes, ok := types.AutosaveInterval("10").Minutes()
		assert.True(t, ok)
		assert.Equal(t, 10, minutes)

		_, ok = types.AutosaveInterval("none").Minutes()
		assert.False(t, ok)
	})
}

func TestLockType(t *testing.T) {
	t.Run("known kinds test", func(t *testing.T) {
		assert.True(t, types.LockTypeManual.Valid())
		assert.True(t, types.LockTypeAutosave.Valid())
		assert.False(t, types.LockType("scheduled").Valid())
	})
}
