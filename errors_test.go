// errors_test.go: tests for structured error definitions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"fmt"
	"testing"

	"github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes_AreStable(t *testing.T) {
	// Error codes are part of the public contract; embedders match on them.
	assert.Equal(t, "ISOLATION_3101", ErrCodeUnitNotFound)
	assert.Equal(t, "BRIDGE_3201", ErrCodeContextAlreadySet)
	assert.Equal(t, "VERIFY_3301", ErrCodeExtractionFailed)
	assert.Equal(t, "INSTALL_3405", ErrCodeAgentAlreadyActive)
	assert.Equal(t, "CONFIG_3501", ErrCodeToggleConfigParse)
	assert.Equal(t, "HARNESS_3601", ErrCodeInvalidVersionRange)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewUnitNotFoundError("acme.Missing")))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(fmt.Errorf("plain error")))
	assert.False(t, IsNotFound(NewMalformedUnitError("acme.Broken", "bad magic")))
}

func TestNewUnitNotFoundError_IsInfoSeverity(t *testing.T) {
	err := NewUnitNotFoundError("acme.Missing")
	assert.Equal(t, errors.ErrorCode(ErrCodeUnitNotFound), err.ErrorCode())
	assert.Equal(t, "acme.Missing", err.Context["unit_name"])
	// NotFound is a normal delegation outcome, not a failure.
	assert.Equal(t, "info", err.Severity)
}

func TestNewTruncatedUnitError_CarriesByteCounts(t *testing.T) {
	err := NewTruncatedUnitError("acme.Cut", 128, 40)
	assert.Equal(t, 128, err.Context["expected_bytes"])
	assert.Equal(t, 40, err.Context["actual_bytes"])
	require.NotEmpty(t, err.UserMessage())
}

func TestWrappedErrors_PreserveCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := NewStoreUnavailableError("internal/acme/Helper.classdata", cause)
	assert.Equal(t, errors.ErrorCode(ErrCodeStoreUnavailable), err.ErrorCode())
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestHarnessErrors_AreRetryable(t *testing.T) {
	assert.True(t, NewArtifactResolutionError("com.example", "client", "2.0.0", nil).IsRetryable(),
		"transient repository failures are retryable")
	assert.True(t, NewRepositoryError("listing failed", nil).IsRetryable())
	assert.False(t, NewInvalidDirectiveError("bad directive").IsRetryable(),
		"a malformed directive will not fix itself")
}

func TestNewWrongContextError_NamesBothContexts(t *testing.T) {
	err := NewWrongContextError("extension", "host-app")
	assert.Equal(t, "extension", err.Context["expected_context"])
	assert.Equal(t, "host-app", err.Context["actual_context"])
}
