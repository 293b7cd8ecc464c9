// config_watcher.go: hot-reloadable module toggle configuration via Argus
//
// Operators enable or disable individual extension modules through a small
// JSON or YAML file watched with Argus. Toggle changes affect future
// matching only: a module already installed in a context stays installed,
// consistent with Installed being terminal for that context.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// ModuleToggleConfig declares which extension modules may match new types.
type ModuleToggleConfig struct {
	// DefaultEnabled is the verdict for modules named in neither list.
	DefaultEnabled bool `json:"default_enabled" yaml:"default_enabled"`

	// Enabled lists modules that may match even when DefaultEnabled is
	// false.
	Enabled []string `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Disabled lists modules that must stay inert. Disabled wins over
	// Enabled on conflict.
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ModuleEnabled evaluates the toggle verdict for one module name.
func (c *ModuleToggleConfig) ModuleEnabled(name string) bool {
	for _, disabled := range c.Disabled {
		if disabled == name {
			return false
		}
	}
	for _, enabled := range c.Enabled {
		if enabled == name {
			return true
		}
	}
	return c.DefaultEnabled
}

// ToggleOptions configures the toggle watcher.
type ToggleOptions struct {
	// PollInterval is how often Argus checks the file for changes.
	PollInterval time.Duration

	// CacheTTL bounds stat caching inside Argus.
	CacheTTL time.Duration

	// AuditConfig optionally enables an Argus audit trail of toggle
	// changes.
	AuditConfig argus.AuditConfig
}

// DefaultToggleOptions returns options tuned for toggle files, which change
// rarely but should apply quickly when they do.
func DefaultToggleOptions() ToggleOptions {
	return ToggleOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     1 * time.Second,
		AuditConfig: argus.AuditConfig{
			Enabled:       false,
			MinLevel:      argus.AuditInfo,
			BufferSize:    1000,
			FlushInterval: 10 * time.Second,
		},
	}
}

// ToggleWatcher watches a module toggle file and exposes the current
// configuration atomically.
type ToggleWatcher struct {
	configPath  string
	options     ToggleOptions
	logger      Logger
	watcher     *argus.Watcher
	auditLogger *argus.AuditLogger

	current  atomic.Pointer[ModuleToggleConfig]
	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewToggleWatcher creates a watcher over the given toggle file. Call Start
// to load the initial configuration and begin watching.
func NewToggleWatcher(configPath string, options ToggleOptions, logger any) (*ToggleWatcher, error) {
	internalLogger := NewLogger(logger)

	argusConfig := argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      2, // the toggle file and nothing else
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, path string) {
			internalLogger.Error("Toggle file watching error", "error", err, "file", path)
		},
	}
	watcher := argus.New(argusConfig)

	var auditLogger *argus.AuditLogger
	if options.AuditConfig.Enabled {
		var err error
		auditLogger, err = argus.NewAuditLogger(options.AuditConfig)
		if err != nil {
			return nil, NewToggleWatcherError("failed to create audit logger", err)
		}
	}

	tw := &ToggleWatcher{
		configPath:  configPath,
		options:     options,
		logger:      internalLogger,
		watcher:     watcher,
		auditLogger: auditLogger,
	}
	// Until Start loads the file every module stays enabled.
	tw.current.Store(&ModuleToggleConfig{DefaultEnabled: true})
	return tw, nil
}

// Start loads the initial configuration and begins watching the file.
func (tw *ToggleWatcher) Start() error {
	if tw.stopped.Load() {
		return NewToggleWatcherError("toggle watcher is already stopped", nil)
	}
	if !tw.enabled.CompareAndSwap(false, true) {
		return NewToggleWatcherError("toggle watcher is already running", nil)
	}

	initial, err := loadToggleConfig(tw.configPath)
	if err != nil {
		tw.enabled.Store(false)
		return err
	}
	tw.current.Store(initial)

	if err := tw.watcher.Watch(tw.configPath, tw.handleChange); err != nil {
		tw.enabled.Store(false)
		return NewToggleWatcherError("failed to watch toggle file", err)
	}
	if err := tw.watcher.Start(); err != nil {
		tw.enabled.Store(false)
		return NewToggleWatcherError("failed to start Argus watcher", err)
	}

	tw.logger.Info("Module toggle watcher started",
		"config_path", tw.configPath,
		"poll_interval", tw.options.PollInterval,
		"default_enabled", initial.DefaultEnabled)
	tw.auditEvent("module_toggles_loaded", map[string]interface{}{
		"config_path":     tw.configPath,
		"default_enabled": initial.DefaultEnabled,
		"enabled_count":   len(initial.Enabled),
		"disabled_count":  len(initial.Disabled),
	})
	return nil
}

// Stop permanently stops the watcher. The last loaded configuration stays in
// effect.
func (tw *ToggleWatcher) Stop() error {
	if tw.stopped.Load() {
		return NewToggleWatcherError("toggle watcher is already stopped", nil)
	}

	var stopErr error
	tw.stopOnce.Do(func() {
		if !tw.enabled.CompareAndSwap(true, false) {
			stopErr = NewToggleWatcherError("toggle watcher is not running", nil)
			return
		}
		tw.stopped.Store(true)

		if err := tw.watcher.Stop(); err != nil {
			stopErr = NewToggleWatcherError("failed to stop Argus watcher", err)
			return
		}
		if tw.auditLogger != nil {
			if err := tw.auditLogger.Close(); err != nil {
				tw.logger.Warn("Failed to close audit logger during shutdown", "error", err)
			}
		}
		tw.logger.Info("Module toggle watcher stopped")
	})
	return stopErr
}

// IsRunning reports whether the watcher is active.
func (tw *ToggleWatcher) IsRunning() bool {
	return tw.enabled.Load() && !tw.stopped.Load()
}

// Current returns the configuration in effect.
func (tw *ToggleWatcher) Current() *ModuleToggleConfig {
	return tw.current.Load()
}

// ModuleEnabled evaluates the current toggle verdict for one module.
func (tw *ToggleWatcher) ModuleEnabled(name string) bool {
	return tw.current.Load().ModuleEnabled(name)
}

// handleChange processes toggle file changes reported by Argus. A broken
// configuration file never disturbs the running agent: the previous
// configuration stays in effect and the failure is logged and audited.
func (tw *ToggleWatcher) handleChange(event argus.ChangeEvent) {
	if event.IsDelete {
		tw.logger.Warn("Toggle file was deleted, keeping current configuration", "path", event.Path)
		tw.auditEvent("module_toggle_file_deleted", map[string]interface{}{"path": event.Path})
		return
	}

	next, err := loadToggleConfig(event.Path)
	if err != nil {
		tw.logger.Error("Failed to reload toggle configuration", "error", err, "path", event.Path)
		tw.auditEvent("module_toggle_reload_failed", map[string]interface{}{
			"path":  event.Path,
			"error": err.Error(),
		})
		return
	}

	tw.current.Store(next)
	tw.logger.Info("Module toggle configuration reloaded",
		"path", event.Path,
		"default_enabled", next.DefaultEnabled,
		"enabled_count", len(next.Enabled),
		"disabled_count", len(next.Disabled))
	tw.auditEvent("module_toggles_reloaded", map[string]interface{}{
		"path":            event.Path,
		"default_enabled": next.DefaultEnabled,
		"enabled_count":   len(next.Enabled),
		"disabled_count":  len(next.Disabled),
	})
}

func (tw *ToggleWatcher) auditEvent(eventType string, context map[string]interface{}) {
	if tw.auditLogger != nil {
		tw.auditLogger.LogSecurityEvent(eventType, "Module toggle change", context)
	}
}

// loadToggleConfig reads and parses a toggle file with format detection.
func loadToggleConfig(path string) (*ModuleToggleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewToggleConfigParseError(path, err)
	}

	var config ModuleToggleConfig
	switch argus.DetectFormat(path) {
	case argus.FormatJSON:
		err = json.Unmarshal(raw, &config)
	case argus.FormatYAML:
		err = yaml.Unmarshal(raw, &config)
	default:
		// Toggle files without a recognized extension are treated as JSON,
		// the library's canonical format.
		err = json.Unmarshal(raw, &config)
	}
	if err != nil {
		return nil, NewToggleConfigParseError(path, err)
	}
	return &config, nil
}
