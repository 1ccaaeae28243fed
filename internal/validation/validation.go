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

// Package validation provides the validation functions for user-provided
// request fields.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

const (
	// commitSHARegexString matches abbreviated and full hex revision hashes.
	commitSHARegexString = `^[0-9a-f]{7,64}$`

	// slugRegexString is referenced unreserved characters
	// (https://datatracker.ietf.org/doc/html/rfc3986#section-2.3).
	slugRegexString = `^[a-z0-9\-._~]+$`

	// repoRegexString matches "owner/name" repository paths.
	repoRegexString = `^[A-Za-z0-9\-._]+/[A-Za-z0-9\-._]+$`
)

var (
	commitSHARegex = regexp.MustCompile(commitSHARegexString)
	slugRegex      = regexp.MustCompile(slugRegexString)
	repoRegex      = regexp.MustCompile(repoRegexString)

	// ErrInvalidCommitSHA is returned when a revision hash is malformed.
	ErrInvalidCommitSHA = errors.New("revision must be a 7 to 64 character hex hash")

	// ErrInvalidSlug is returned when a key is not a lowercase slug.
	ErrInvalidSlug = errors.New("key should be lowercase alphanumeric, -, ., _ or ~")

	// ErrInvalidRepo is returned when a repository path is not owner/name.
	ErrInvalidRepo = errors.New("repository must be in owner/name form")

	// ErrInvalidAutosaveInterval is returned when an autosave interval is
	// neither "none" nor a positive number of minutes.
	ErrInvalidAutosaveInterval = errors.New(`autosave interval must be "none" or a positive number of minutes`)
)

var (
	// defaultValidator is the default validation instance used in this
	// package. Some fields are provided by the user and must be validated.
	defaultValidator = validator.New()

	// defaultEn is the default translator instance for the 'en' locale.
	defaultEn = en.New()

	// uni is the UniversalTranslator instance set with the fallback locale
	// and locales it should support.
	uni = ut.New(defaultEn, defaultEn)

	// trans is the specified translator for the given locale, or fallback
	// if not found.
	trans, _ = uni.GetTranslator(defaultEn.Locale())
)

// Violation is the error returned by the validation.
type Violation struct {
	Tag         string
	Field       string
	Err         error
	Description string
}

// Error returns the error message.
func (e Violation) Error() string {
	return e.Err.Error()
}

// StructError is the error returned by the validation of a struct.
type StructError struct {
	Violations []Violation
}

// Error returns the error message.
func (s StructError) Error() string {
	sb := strings.Builder{}
	for _, v := range s.Violations {
		sb.WriteString(v.Description)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

// RegisterValidation is a shortcut of defaultValidator.RegisterValidation
// that registers a custom validation with the given tag.
func RegisterValidation(tag string, fn validator.Func) error {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("register validation: %w", err)
	}
	return nil
}

// RegisterTranslation registers a translation against the provided tag with
// the given message.
func RegisterTranslation(tag, msg string) error {
	if err := defaultValidator.RegisterTranslation(
		tag,
		trans,
		func(ut ut.Translator) error {
			if err := ut.Add(tag, msg, true); err != nil {
				return fmt.Errorf("register translation: %w", err)
			}
			return nil
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	); err != nil {
		return fmt.Errorf("register translation: %w", err)
	}
	return nil
}

// ValidateStruct validates the given struct against its validate tags and
// returns a StructError collecting every violation.
func ValidateStruct(s interface{}) error {
	return toStructError(defaultValidator.Struct(s))
}

// ValidateValue validates a single value, such as a path parameter, against
// the given tag expression.
func ValidateValue(value interface{}, tags string) error {
	return toStructError(defaultValidator.Var(value, tags))
}

func toStructError(err error) error {
	if err == nil {
		return nil
	}

	invalidErr := &validator.InvalidValidationError{}
	if errors.As(err, &invalidErr) {
		return fmt.Errorf("validate: %w", err)
	}

	structError := &StructError{}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			structError.Violations = append(structError.Violations, Violation{
				Tag:         e.Tag(),
				Field:       e.StructField(),
				Err:         e,
				Description: e.Translate(trans),
			})
		}
	}
	return structError
}

func isValidAutosaveInterval(str string) bool {
	if str == "none" {
		return true
	}
	minutes, err := strconv.Atoi(str)
	return err == nil && minutes > 0
}

func init() {
	if err := entranslations.RegisterDefaultTranslations(defaultValidator, trans); err != nil {
		panic(err)
	}

	for _, rule := range []struct {
		tag string
		fn  validator.Func
		err error
	}{
		{
			tag: "commit_sha",
			fn: func(v validator.FieldLevel) bool {
				return commitSHARegex.MatchString(v.Field().String())
			},
			err: ErrInvalidCommitSHA,
		},
		{
			tag: "slug",
			fn: func(v validator.FieldLevel) bool {
				return slugRegex.MatchString(v.Field().String())
			},
			err: ErrInvalidSlug,
		},
		{
			tag: "repo_path",
			fn: func(v validator.FieldLevel) bool {
				return repoRegex.MatchString(v.Field().String())
			},
			err: ErrInvalidRepo,
		},
		{
			tag: "autosave_interval",
			fn: func(v validator.FieldLevel) bool {
				return isValidAutosaveInterval(v.Field().String())
			},
			err: ErrInvalidAutosaveInterval,
		},
	} {
		if err := RegisterValidation(rule.tag, rule.fn); err != nil {
			panic(err)
		}
		if err := RegisterTranslation(rule.tag, rule.err.Error()); err != nil {
			panic(err)
		}
	}
}
