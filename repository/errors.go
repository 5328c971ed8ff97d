/*
 * Copyright 2025 tomoncle.
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

package repository

import (
	"errors"
	"fmt"
)

// Operation names used in error messages and metric labels.
const (
	OpCreate       = "create"
	OpFindAll      = "findAll"
	OpFindByID     = "findById"
	OpFindByFilter = "findByFilter"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpCount        = "count"
	OpUpdateMany   = "updateMany"
	OpDeleteMany   = "deleteMany"
	OpExecuteQuery = "executeQuery"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
	// ErrClassification matches every *ClassificationError.
	ErrClassification = errors.New("classification error")
	// ErrIncompatibleHandle is returned by constructors given a handle of the wrong backend.
	ErrIncompatibleHandle = errors.New("incompatible model handle")
)

// ValidationError reports that the backend rejected the shape of written data.
type ValidationError struct {
	Entity string
	Op     string
	Err    error
}

func (e *ValidationError) Error() string { return failure(e.Op, e.Entity, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError reports a connectivity or backend-internal failure.
type StorageError struct {
	Entity string
	Op     string
	Err    error
}

func (e *StorageError) Error() string { return failure(e.Op, e.Entity, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ClassificationError is returned when no model handle was supplied for an entity.
type ClassificationError struct {
	Entity string
	Reason string
}

func (e *ClassificationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "no model handle supplied"
	}
	if e.Entity == "" {
		return "cannot classify repository: " + reason
	}
	return fmt.Sprintf("cannot classify repository for %s: %s", e.Entity, reason)
}

func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

func failure(op, entity string, err error) string {
	if err == nil {
		return fmt.Sprintf("Failed to %s %s", op, entity)
	}
	return fmt.Sprintf("Failed to %s %s: %s", op, entity, err.Error())
}

// Wrap converts a backend error into the entity-named taxonomy. Errors that
// are already classified pass through unchanged so layered calls do not nest
// the "Failed to" prefix.
func Wrap(entity, op string, err error, invalid bool) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var se *StorageError
	if errors.As(err, &ve) || errors.As(err, &se) {
		return err
	}
	if invalid {
		return &ValidationError{Entity: entity, Op: op, Err: err}
	}
	return &StorageError{Entity: entity, Op: op, Err: err}
}

// Invalid builds a ValidationError from a message.
func Invalid(entity, op, format string, args ...any) error {
	return &ValidationError{Entity: entity, Op: op, Err: fmt.Errorf(format, args...)}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

func IsClassification(err error) bool { return errors.Is(err, ErrClassification) }
