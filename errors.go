// errors.go: structured error definitions for the go-weave system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"github.com/agilira/go-errors"
)

// Error codes for the go-weave system
const (
	// Isolation errors (3100-3199)
	ErrCodeUnitNotFound       = "ISOLATION_3101"
	ErrCodeMalformedUnit      = "ISOLATION_3102"
	ErrCodeTruncatedUnit      = "ISOLATION_3103"
	ErrCodeUnitDecodeFailed   = "ISOLATION_3104"
	ErrCodeStoreUnavailable   = "ISOLATION_3105"
	ErrCodeContextNotWritable = "ISOLATION_3106"

	// Bridge errors (3200-3299)
	ErrCodeContextAlreadySet = "BRIDGE_3201"
	ErrCodeContextNotSet     = "BRIDGE_3202"

	// Extraction and verification errors (3300-3399)
	ErrCodeExtractionFailed = "VERIFY_3301"
	ErrCodeOperationRead    = "VERIFY_3302"
	ErrCodeEmptyNamespace   = "VERIFY_3303"
	ErrCodeResolverFailed   = "VERIFY_3304"

	// Module and installation errors (3400-3499)
	ErrCodeInvalidModuleName  = "INSTALL_3401"
	ErrCodeDuplicateModule    = "INSTALL_3402"
	ErrCodeHelperDeployFailed = "INSTALL_3403"
	ErrCodeHookWiringFailed   = "INSTALL_3404"
	ErrCodeAgentAlreadyActive = "INSTALL_3405"
	ErrCodeWrongContext       = "INSTALL_3406"
	ErrCodeNoCapability       = "INSTALL_3407"

	// Configuration errors (3500-3599)
	ErrCodeToggleConfigParse   = "CONFIG_3501"
	ErrCodeToggleWatcherFailed = "CONFIG_3502"

	// Harness errors (3600-3699)
	ErrCodeInvalidVersionRange = "HARNESS_3601"
	ErrCodeInvalidDirective    = "HARNESS_3602"
	ErrCodeArtifactResolution  = "HARNESS_3603"
	ErrCodeRepositoryError     = "HARNESS_3604"
)

// Isolation error constructors

func NewUnitNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodeUnitNotFound, "Unit not found").
		WithUserMessage("The requested unit is not available in this loading context or any of its parents").
		WithContext("unit_name", name).
		WithSeverity("info")
}

// IsNotFound reports whether err is the normal negative lookup result that
// enables parent delegation, as opposed to a real loading failure.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if coded, ok := err.(*errors.Error); ok {
		return coded.ErrorCode() == errors.ErrorCode(ErrCodeUnitNotFound)
	}
	return false
}

func NewMalformedUnitError(name string, detail string) *errors.Error {
	return errors.New(ErrCodeMalformedUnit, "Malformed unit entry: "+detail).
		WithUserMessage("A private unit entry is corrupt and cannot be materialized").
		WithContext("unit_name", name).
		WithSeverity("error")
}

func NewTruncatedUnitError(name string, expected, actual int) *errors.Error {
	return errors.New(ErrCodeTruncatedUnit, "Truncated unit entry").
		WithUserMessage("A private unit entry is shorter than its declared payload length").
		WithContext("unit_name", name).
		WithContext("expected_bytes", expected).
		WithContext("actual_bytes", actual).
		WithSeverity("error")
}

func NewUnitDecodeError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeUnitDecodeFailed, "Unit decode failed").
		WithUserMessage("The unit payload could not be decoded into a type descriptor").
		WithContext("unit_name", name).
		WithSeverity("error")
}

func NewStoreUnavailableError(entry string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeStoreUnavailable, "Unit store read failed").
		WithUserMessage("The private unit storage could not be read").
		WithContext("entry", entry).
		WithSeverity("error")
}

func NewContextNotWritableError(contextName string) *errors.Error {
	return errors.New(ErrCodeContextNotWritable, "Loading context is not writable").
		WithUserMessage("Helper units can only be deployed into contexts that accept unit definitions").
		WithContext("context_name", contextName).
		WithSeverity("error")
}

// Bridge error constructors

func NewContextAlreadySetError() *errors.Error {
	return errors.New(ErrCodeContextAlreadySet, "Isolated context already set").
		WithUserMessage("The bridge context reference is single-assignment and was already populated").
		WithSeverity("error")
}

func NewContextNotSetError() *errors.Error {
	return errors.New(ErrCodeContextNotSet, "Isolated context not set").
		WithUserMessage("The bridge has not been populated with an isolated context yet").
		WithSeverity("error")
}

// Extraction and verification error constructors

func NewExtractionError(unitName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeExtractionFailed, "Reference extraction failed").
		WithUserMessage("Static analysis of the injected logic unit failed").
		WithContext("unit_name", unitName).
		WithSeverity("error")
}

func NewOperationReadError(unitName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeOperationRead, "Operation read failed").
		WithUserMessage("The compiled representation of a unit could not be read").
		WithContext("unit_name", unitName).
		WithSeverity("error")
}

func NewEmptyNamespaceError(moduleName string) *errors.Error {
	return errors.New(ErrCodeEmptyNamespace, "Empty extension namespace").
		WithUserMessage("An extension module must declare the namespace that bounds reference extraction").
		WithContext("module_name", moduleName).
		WithSeverity("error")
}

func NewResolverError(typeName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeResolverFailed, "Type resolution failed").
		WithUserMessage("A type could not be resolved due to a loading failure, not a missing symbol").
		WithContext("type_name", typeName).
		WithSeverity("error")
}

// Module and installation error constructors

func NewInvalidModuleNameError(name string) *errors.Error {
	return errors.New(ErrCodeInvalidModuleName, "Invalid module name").
		WithUserMessage("Extension module names are required and cannot be empty").
		WithContext("provided_name", name).
		WithSeverity("error")
}

func NewDuplicateModuleError(name string) *errors.Error {
	return errors.New(ErrCodeDuplicateModule, "Duplicate module registration").
		WithUserMessage("An extension module with this name is already registered").
		WithContext("module_name", name).
		WithSeverity("error")
}

func NewHelperDeployError(helperName string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHelperDeployFailed, "Helper deployment failed").
		WithUserMessage("A helper unit could not be deployed into the host loading context").
		WithContext("helper_name", helperName).
		WithSeverity("warning")
}

func NewHookWiringError(target string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHookWiringFailed, "Hook wiring failed").
		WithUserMessage("Entry/exit hooks could not be installed on the matched operation").
		WithContext("target_type", target).
		WithSeverity("warning")
}

func NewAgentAlreadyActiveError() *errors.Error {
	return errors.New(ErrCodeAgentAlreadyActive, "Agent already installed").
		WithUserMessage("The process-level installation entry point must be invoked exactly once").
		WithSeverity("error")
}

func NewWrongContextError(expected, actual string) *errors.Error {
	return errors.New(ErrCodeWrongContext, "Installation from unexpected loading context").
		WithUserMessage("The agent entry point aborts when invoked outside the expected isolated context").
		WithContext("expected_context", expected).
		WithContext("actual_context", actual).
		WithSeverity("error")
}

func NewNoCapabilityError() *errors.Error {
	return errors.New(ErrCodeNoCapability, "Missing instrumentation capability").
		WithUserMessage("An instrumentation capability handle is required to install the agent").
		WithSeverity("error")
}

// Configuration error constructors

func NewToggleConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeToggleConfigParse, "Toggle configuration parse error").
		WithUserMessage("Failed to parse the module toggle configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewToggleWatcherError(message string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeToggleWatcherFailed, "Toggle watcher error: "+message).
			WithUserMessage("Module toggle configuration monitoring failed").
			WithSeverity("error")
	}
	return errors.New(ErrCodeToggleWatcherFailed, "Toggle watcher error: "+message).
		WithUserMessage("Module toggle configuration monitoring failed").
		WithSeverity("error")
}

// Harness error constructors

func NewInvalidVersionRangeError(raw string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeInvalidVersionRange, "Invalid version range").
			WithUserMessage("The version range expression could not be parsed").
			WithContext("range", raw).
			WithSeverity("error")
	}
	return errors.New(ErrCodeInvalidVersionRange, "Invalid version range").
		WithUserMessage("The version range expression could not be parsed").
		WithContext("range", raw).
		WithSeverity("error")
}

func NewInvalidDirectiveError(message string) *errors.Error {
	return errors.New(ErrCodeInvalidDirective, "Invalid harness directive: "+message).
		WithUserMessage("A harness directive is missing required fields or is inconsistent").
		WithSeverity("error")
}

func NewArtifactResolutionError(group, module, version string, cause error) *errors.Error {
	err := errors.New(ErrCodeArtifactResolution, "Artifact resolution failed")
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeArtifactResolution, "Artifact resolution failed")
	}
	return err.
		WithUserMessage("A candidate library version could not be fetched; recorded as skipped, not failed").
		WithContext("group", group).
		WithContext("module", module).
		WithContext("version", version).
		WithSeverity("warning").
		AsRetryable()
}

func NewRepositoryError(message string, cause error) *errors.Error {
	err := errors.New(ErrCodeRepositoryError, "Repository error: "+message)
	if cause != nil {
		err = errors.Wrap(cause, ErrCodeRepositoryError, "Repository error: "+message)
	}
	return err.
		WithUserMessage("The artifact repository could not be queried").
		WithSeverity("error").
		AsRetryable()
}
