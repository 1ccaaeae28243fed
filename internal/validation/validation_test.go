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

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStruct(t *testing.T) {
	type restoreFields struct {
		TargetSHA string `validate:"required,commit_sha"`
		Repo      string `validate:"required,repo_path"`
		Interval  string `validate:"omitempty,autosave_interval"`
	}

	t.Run("valid struct test", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(&restoreFields{
			TargetSHA: "0123abc",
			Repo:      "studio/legacy",
			Interval:  "5",
		}))
		assert.NoError(t, ValidateStruct(&restoreFields{
			TargetSHA: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
			Repo:      "studio/legacy",
			Interval:  "none",
		}))
	})

	t.Run("violations are collected and translated test", func(t *testing.T) {
		err := ValidateStruct(&restoreFields{
			TargetSHA: "not a sha",
			Repo:      "no-owner",
			Interval:  "-3",
		})
		assert.Error(t, err)

		structError := &StructError{}
		assert.ErrorAs(t, err, &structError)
		assert.Len(t, structError.Violations, 3)
		assert.Equal(t, "commit_sha", structError.Violations[0].Tag)
		assert.Contains(t, structError.Violations[0].Description, "hex hash")
	})

	t.Run("required test", func(t *testing.T) {
		err := ValidateStruct(&restoreFields{})
		structError := &StructError{}
		assert.ErrorAs(t, err, &structError)
		assert.Len(t, structError.Violations, 2)
	})
}

func TestValidateValue(t *testing.T) {
	t.Run("valid slug test", func(t *testing.T) {
		assert.NoError(t, ValidateValue("scr_1", "required,slug"))
		assert.NoError(t, ValidateValue("draft-2.fountain", "required,slug"))
	})

	t.Run("invalid slug test", func(t *testing.T) {
		for _, value := range []string{"", "SCR-1", "scr 1", "scr/1"} {
			err := ValidateValue(value, "required,slug")
			assert.Error(t, err)

			structError := &StructError{}
			assert.ErrorAs(t, err, &structError)
			assert.Len(t, structError.Violations, 1)
		}
	})
}
