// entrypoint.go: process-level agent installation
//
// InstallAgent is the single bootstrap entry point: it accepts an opaque
// agent-arguments string and the instrumentation capability handle, builds
// the bridge and installer, and registers the isolated context. It must be
// invoked exactly once per process and aborts, leaving the host untouched,
// when invoked from any loading context other than the expected isolated
// one.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"strings"
	"sync/atomic"
)

// agentActive guards the exactly-once process-level installation.
var agentActive atomic.Bool

// Agent is the live handle returned by a successful installation.
type Agent struct {
	bridge    *Bridge
	installer *Installer
	args      map[string]string
	logger    Logger
}

// Bridge returns the agent's bridge.
func (a *Agent) Bridge() *Bridge { return a.bridge }

// Installer returns the agent's installer.
func (a *Agent) Installer() *Installer { return a.installer }

// Arg returns one parsed agent argument and whether it was present.
func (a *Agent) Arg(key string) (string, bool) {
	v, ok := a.args[key]
	return v, ok
}

// agentConfig collects the bootstrap options.
type agentConfig struct {
	logger          Logger
	metrics         MetricsCollector
	reader          OperationReader
	isolated        LoadingContext
	expectedContext LoadingContext
	callerContext   LoadingContext
	toggles         *ToggleWatcher
	modules         []ExtensionModule
}

// AgentOption customizes agent installation.
type AgentOption func(*agentConfig)

// WithLogger sets the agent logger.
func WithLogger(logger any) AgentOption {
	return func(c *agentConfig) { c.logger = NewLogger(logger) }
}

// WithMetrics sets the agent metrics collector.
func WithMetrics(collector MetricsCollector) AgentOption {
	return func(c *agentConfig) { c.metrics = collector }
}

// WithOperationReader sets the compiled-representation reader used for
// reference extraction.
func WithOperationReader(reader OperationReader) AgentOption {
	return func(c *agentConfig) { c.reader = reader }
}

// WithIsolatedContext supplies the isolated context registered on the
// bridge at bootstrap.
func WithIsolatedContext(ctx LoadingContext) AgentOption {
	return func(c *agentConfig) { c.isolated = ctx }
}

// WithExpectedContext declares the loading context installation must be
// invoked from. Paired with WithCallerContext; installation aborts when the
// two differ.
func WithExpectedContext(ctx LoadingContext) AgentOption {
	return func(c *agentConfig) { c.expectedContext = ctx }
}

// WithCallerContext declares the loading context the caller is running in.
func WithCallerContext(ctx LoadingContext) AgentOption {
	return func(c *agentConfig) { c.callerContext = ctx }
}

// WithModuleToggles gates module matching behind a hot-reloadable toggle
// configuration.
func WithModuleToggles(toggles *ToggleWatcher) AgentOption {
	return func(c *agentConfig) { c.toggles = toggles }
}

// WithAgentModules overrides the registry-discovered module list.
func WithAgentModules(modules ...ExtensionModule) AgentOption {
	return func(c *agentConfig) { c.modules = modules }
}

// InstallAgent performs the process-level installation.
//
// The args string is an opaque comma-separated key=value list, e.g.
// "debug=true,profile=startup". Bootstrap failures abort extension startup
// entirely but never corrupt the host's own operation: nothing is wired
// before every precondition has passed.
func InstallAgent(args string, capability Instrumentation, opts ...AgentOption) (*Agent, error) {
	if capability == nil {
		return nil, NewNoCapabilityError()
	}

	cfg := &agentConfig{
		logger:  DefaultLogger(),
		metrics: NewNoOpMetricsCollector(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.expectedContext != nil {
		actual := "unknown"
		if cfg.callerContext != nil {
			actual = cfg.callerContext.Name()
		}
		if cfg.callerContext == nil || cfg.callerContext.ID() != cfg.expectedContext.ID() {
			return nil, NewWrongContextError(cfg.expectedContext.Name(), actual)
		}
	}

	if !agentActive.CompareAndSwap(false, true) {
		return nil, NewAgentAlreadyActiveError()
	}

	bridge := NewBridge(cfg.logger)
	if cfg.isolated != nil {
		if err := bridge.SetContext(cfg.isolated); err != nil {
			agentActive.Store(false)
			return nil, err
		}
	}

	installerOpts := []InstallerOption{
		WithInstallerLogger(cfg.logger),
		WithInstallerMetrics(cfg.metrics),
	}
	if cfg.toggles != nil {
		installerOpts = append(installerOpts, WithToggleWatcher(cfg.toggles))
	}
	if cfg.modules != nil {
		installerOpts = append(installerOpts, WithModules(cfg.modules...))
	}

	reader := cfg.reader
	if reader == nil {
		reader = emptyOperationReader{}
	}

	installer, err := NewInstaller(bridge, capability, reader, installerOpts...)
	if err != nil {
		agentActive.Store(false)
		return nil, err
	}

	bridge.RecordInstall()
	parsed := parseAgentArgs(args)
	cfg.logger.Info("Agent installed",
		"modules", len(installer.modules), "args", len(parsed))

	return &Agent{
		bridge:    bridge,
		installer: installer,
		args:      parsed,
		logger:    cfg.logger,
	}, nil
}

// resetAgentActive clears the process-level guard. Test use only.
func resetAgentActive() {
	agentActive.Store(false)
}

// parseAgentArgs splits an opaque "k=v,k=v" argument string. Malformed
// segments are kept as value-less keys rather than rejected; the argument
// string is advisory, never load-bearing.
func parseAgentArgs(args string) map[string]string {
	parsed := make(map[string]string)
	for _, segment := range strings.Split(args, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if key, value, found := strings.Cut(segment, "="); found {
			parsed[strings.TrimSpace(key)] = strings.TrimSpace(value)
		} else {
			parsed[segment] = ""
		}
	}
	return parsed
}

// emptyOperationReader backs agents whose modules carry no advice units to
// analyze; every unit reads as an empty operation stream.
type emptyOperationReader struct{}

func (emptyOperationReader) ReadOperations(unitName string) ([]Operation, error) {
	return nil, nil
}
