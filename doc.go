// Package goweave provides an in-process instrumentation core for attaching
// cross-cutting logic (telemetry capture, auditing) to operations of third-party
// libraries already loaded in a host process, without modifying those libraries
// and without assuming a fixed library version.
//
// Key Features:
//   - Isolated loading contexts with parent delegation and private unit storage
//   - Static symbol-reference extraction from injected logic
//   - Reference verification against the exact library version the host loaded
//   - Extension module registration with type matching and entry/exit hooks
//   - Fail-safe installation: a rejected module leaves the host untouched
//   - Cross-version compatibility harness for build-time verification matrices
//   - Hot-reloading of module enable/disable configuration
//
// Basic Usage:
//
//	// Register an extension module (typically from an init function)
//	goweave.Register(&myModule{})
//
//	// Bootstrap the agent once per process
//	agent, err := goweave.InstallAgent("debug=false", capability,
//		goweave.WithLogger(logger),
//		goweave.WithOperationReader(reader))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// When the host is about to activate a type, ask the installer to
//	// match, verify, and wire hooks for it
//	agent.Installer().Install(typeDescriptor, hostContext)
//
// Safety:
// The library is designed so that it can never be the reason a host application
// crashes or misbehaves. Verification mismatches and hook-wiring failures reject
// the module for that loading context only; the host continues unmodified.
//
// Verification:
// Before any hooks are wired, every external type, method, and field the injected
// logic references is statically resolved against the candidate loading context,
// including visibility checks. Verdicts are cached per context identity.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package goweave
