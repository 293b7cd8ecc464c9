// harness.go: cross-version compatibility harness
//
// The harness is the build-time tool behind release confidence: for every
// version of a target library inside a directive's range it fetches the
// artifact, builds a throwaway candidate loading context for exactly that
// version, verifies every module's reference set against it, and compares
// the observed verdict with the directive's assertion. Version-resolution
// failures are recorded as skipped, never as verification failures, and one
// bad version never aborts the remaining matrix.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Artifact is the unit payload of one library version: dotted type name to
// descriptor.
type Artifact map[string]*TypeDescriptor

// ArtifactRepository resolves library versions and their unit payloads.
// Resolution is the only part of the system allowed to touch the network,
// and only at build time.
type ArtifactRepository interface {
	// Versions lists the published versions of a library, newest last.
	Versions(ctx context.Context, group, module string) ([]string, error)

	// Fetch retrieves the unit payload of one version.
	Fetch(ctx context.Context, group, module, version string) (Artifact, error)
}

// MemoryArtifactRepository is an in-memory repository for tests and local
// matrices.
type MemoryArtifactRepository struct {
	mu       sync.RWMutex
	versions map[string][]string
	payloads map[string]Artifact
}

// NewMemoryArtifactRepository creates an empty in-memory repository.
func NewMemoryArtifactRepository() *MemoryArtifactRepository {
	return &MemoryArtifactRepository{
		versions: make(map[string][]string),
		payloads: make(map[string]Artifact),
	}
}

// Publish stores one version's unit payload.
func (r *MemoryArtifactRepository) Publish(group, module, version string, artifact Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := group + ":" + module
	r.versions[key] = append(r.versions[key], version)
	r.payloads[key+":"+version] = artifact
}

// Versions implements ArtifactRepository.
func (r *MemoryArtifactRepository) Versions(ctx context.Context, group, module string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.versions[group+":"+module]
	if !ok {
		return nil, NewRepositoryError("unknown library "+group+":"+module, nil)
	}
	out := make([]string, len(versions))
	copy(out, versions)
	return out, nil
}

// Fetch implements ArtifactRepository.
func (r *MemoryArtifactRepository) Fetch(ctx context.Context, group, module, version string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewArtifactResolutionError(group, module, version, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	artifact, ok := r.payloads[group+":"+module+":"+version]
	if !ok {
		return nil, NewArtifactResolutionError(group, module, version, nil)
	}
	// Callers merge extra dependencies into the fetched payload; hand out a
	// copy so the published artifact stays pristine.
	out := make(Artifact, len(artifact))
	for name, desc := range artifact {
		out[name] = desc
	}
	return out, nil
}

// HTTPArtifactRepository fetches versions and unit payloads from a
// repository URL layout:
//
//	<base>/<group>/<module>/versions.json        {"versions": ["1.0.0", ...]}
//	<base>/<group>/<module>/<version>/units.json {"units": {"name": {...}}}
type HTTPArtifactRepository struct {
	BaseURL string
	Client  *http.Client
	logger  Logger
}

// NewHTTPArtifactRepository creates a repository client for the given base
// URL.
func NewHTTPArtifactRepository(baseURL string, logger any) *HTTPArtifactRepository {
	return &HTTPArtifactRepository{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
		logger:  NewLogger(logger),
	}
}

func (r *HTTPArtifactRepository) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Debug("Failed to close repository response body", "url", url, "error", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("repository returned status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Versions implements ArtifactRepository.
func (r *HTTPArtifactRepository) Versions(ctx context.Context, group, module string) ([]string, error) {
	var payload struct {
		Versions []string `json:"versions"`
	}
	url := fmt.Sprintf("%s/%s/%s/versions.json", r.BaseURL, group, module)
	if err := r.get(ctx, url, &payload); err != nil {
		return nil, NewRepositoryError("version listing failed", err)
	}
	return payload.Versions, nil
}

// Fetch implements ArtifactRepository.
func (r *HTTPArtifactRepository) Fetch(ctx context.Context, group, module, version string) (Artifact, error) {
	var payload struct {
		Units Artifact `json:"units"`
	}
	url := fmt.Sprintf("%s/%s/%s/%s/units.json", r.BaseURL, group, module, version)
	if err := r.get(ctx, url, &payload); err != nil {
		return nil, NewArtifactResolutionError(group, module, version, err)
	}
	return payload.Units, nil
}

// VersionResult is the outcome of checking one directive against one
// version.
type VersionResult struct {
	Group   string `json:"group"`
	Module  string `json:"module"`
	Version string `json:"version"`

	// Skipped marks a version-resolution failure; it counts toward neither
	// pass nor fail totals.
	Skipped         bool   `json:"skipped,omitempty"`
	ResolutionError string `json:"resolution_error,omitempty"`

	// Passed is the observed verdict and Expected the directive's
	// assertion.
	Passed     bool     `json:"passed"`
	Expected   bool     `json:"expected"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Disagrees reports whether the observed verdict contradicts the
// directive's assertion.
func (r VersionResult) Disagrees() bool {
	return !r.Skipped && r.Passed != r.Expected
}

// Report aggregates a harness run.
type Report struct {
	Results []VersionResult `json:"results"`
}

// Failures returns every directive-version pair whose observed verdict
// disagreed with the assertion.
func (r *Report) Failures() []VersionResult {
	var out []VersionResult
	for _, res := range r.Results {
		if res.Disagrees() {
			out = append(out, res)
		}
	}
	return out
}

// SkippedVersions returns the versions recorded as resolution failures.
func (r *Report) SkippedVersions() []VersionResult {
	var out []VersionResult
	for _, res := range r.Results {
		if res.Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Failed reports whether the run must produce a non-zero result.
func (r *Report) Failed() bool {
	return len(r.Failures()) > 0
}

// Summary renders a human-readable report: every disagreeing pair with its
// concrete mismatch list, then the skip list.
func (r *Report) Summary() string {
	var b strings.Builder
	failures := r.Failures()
	fmt.Fprintf(&b, "%d versions checked, %d failures, %d skipped\n",
		len(r.Results)-len(r.SkippedVersions()), len(failures), len(r.SkippedVersions()))
	for _, f := range failures {
		fmt.Fprintf(&b, "FAIL %s:%s:%s expected pass=%t observed pass=%t\n",
			f.Group, f.Module, f.Version, f.Expected, f.Passed)
		for _, m := range f.Mismatches {
			fmt.Fprintf(&b, "  - %s\n", m)
		}
	}
	for _, s := range r.SkippedVersions() {
		fmt.Fprintf(&b, "SKIP %s:%s:%s %s\n", s.Group, s.Module, s.Version, s.ResolutionError)
	}
	return b.String()
}

// Harness runs directive matrices against an artifact repository.
type Harness struct {
	repo      ArtifactRepository
	extractor *Extractor
	modules   []ExtensionModule
	platform  LoadingContext
	logger    Logger
	metrics   MetricsCollector

	// versionTimeout bounds a single version check; a timeout is a
	// resolution failure for that version only.
	versionTimeout time.Duration

	mu      sync.Mutex
	refSets map[string]*ReferenceSet
}

// HarnessOption customizes a harness.
type HarnessOption func(*Harness)

// WithHarnessLogger sets the harness logger.
func WithHarnessLogger(logger any) HarnessOption {
	return func(h *Harness) { h.logger = NewLogger(logger) }
}

// WithHarnessMetrics sets the harness metrics collector.
func WithHarnessMetrics(collector MetricsCollector) HarnessOption {
	return func(h *Harness) { h.metrics = collector }
}

// WithHarnessModules overrides the registry-discovered module list.
func WithHarnessModules(modules ...ExtensionModule) HarnessOption {
	return func(h *Harness) { h.modules = modules }
}

// WithPlatform sets the parent context for candidate contexts; it should
// expose the same platform types the runtime's isolated context delegates
// to.
func WithPlatform(platform LoadingContext) HarnessOption {
	return func(h *Harness) { h.platform = platform }
}

// WithVersionTimeout bounds a single version's resolution.
func WithVersionTimeout(timeout time.Duration) HarnessOption {
	return func(h *Harness) { h.versionTimeout = timeout }
}

// NewHarness creates a harness over the given repository and operation
// reader.
func NewHarness(repo ArtifactRepository, reader OperationReader, opts ...HarnessOption) *Harness {
	h := &Harness{
		repo:           repo,
		modules:        Modules(),
		logger:         DefaultLogger(),
		metrics:        NewNoOpMetricsCollector(),
		versionTimeout: 60 * time.Second,
		refSets:        make(map[string]*ReferenceSet),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.extractor = NewExtractor(reader, h.logger)
	return h
}

// Run executes every directive against every version its range selects.
func (h *Harness) Run(ctx context.Context, directives []Directive) (*Report, error) {
	report := &Report{}
	for i := range directives {
		if err := h.runDirective(ctx, &directives[i], report); err != nil {
			return nil, err
		}
	}
	h.logger.Info("Harness run complete",
		"checked", len(report.Results), "failures", len(report.Failures()), "skipped", len(report.SkippedVersions()))
	return report, nil
}

// runDirective expands one directive into per-version results.
func (h *Harness) runDirective(ctx context.Context, d *Directive, report *Report) error {
	vrange, err := d.Validate()
	if err != nil {
		return err
	}

	available, err := h.repo.Versions(ctx, d.Group, d.Module)
	if err != nil {
		return NewRepositoryError("cannot list versions for "+d.Group+":"+d.Module, err)
	}

	for _, version := range available {
		parsed, parseErr := semver.NewVersion(version)
		if parseErr != nil || !vrange.Contains(parsed) || d.skipped(version) {
			continue
		}
		report.Results = append(report.Results, h.checkVersion(ctx, d, version))
	}
	return nil
}

// checkVersion builds one candidate context and verifies every module
// against it. The candidate context is scoped to this check and discarded
// afterwards.
func (h *Harness) checkVersion(ctx context.Context, d *Directive, version string) VersionResult {
	result := VersionResult{
		Group:    d.Group,
		Module:   d.Module,
		Version:  version,
		Expected: d.AssertPass,
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.versionTimeout)
	defer cancel()

	artifact, err := h.repo.Fetch(fetchCtx, d.Group, d.Module, version)
	if err != nil {
		result.Skipped = true
		result.ResolutionError = err.Error()
		h.metrics.IncrementCounter("goweave_harness_resolution_failures_total",
			map[string]string{"group": d.Group, "module": d.Module}, 1)
		h.logger.Warn("Version resolution failed, skipping",
			"group", d.Group, "module", d.Module, "version", version, "error", err)
		return result
	}

	for _, coord := range d.ExtraDeps {
		extra, extraErr := h.fetchCoordinate(fetchCtx, coord)
		if extraErr != nil {
			result.Skipped = true
			result.ResolutionError = extraErr.Error()
			return result
		}
		for name, desc := range extra {
			if _, shadowed := artifact[name]; !shadowed {
				artifact[name] = desc
			}
		}
	}

	candidate, err := h.buildCandidate(d, version, artifact)
	if err != nil {
		result.Skipped = true
		result.ResolutionError = err.Error()
		return result
	}

	passed := true
	var mismatches []string
	for _, module := range h.modules {
		set, setErr := h.referenceSetFor(module)
		if setErr != nil {
			result.Skipped = true
			result.ResolutionError = setErr.Error()
			return result
		}
		verdict := NewVerifier(set, WithVerifierLogger(h.logger)).Verify(candidate)
		if !verdict.Passed {
			passed = false
			for _, m := range verdict.Mismatches {
				mismatches = append(mismatches, module.Name()+": "+m)
			}
		}
	}

	result.Passed = passed
	result.Mismatches = mismatches
	return result
}

// buildCandidate materializes one version's candidate context, honoring the
// directive's dependency exclusions.
func (h *Harness) buildCandidate(d *Directive, version string, artifact Artifact) (LoadingContext, error) {
	store := NewMapUnitStore()
	for name, desc := range artifact {
		if excludedDep(name, d.ExcludedDeps) {
			continue
		}
		if desc.Name == "" {
			// Repositories may serve shared descriptor pointers; name a copy
			// so the published payload stays pristine across runs.
			named := *desc
			named.Name = name
			desc = &named
		}
		if err := store.PutUnit(desc); err != nil {
			return nil, err
		}
	}
	name := fmt.Sprintf("candidate:%s:%s:%s", d.Group, d.Module, version)
	return NewIsolatedContext(name, store, h.platform, h.logger), nil
}

// fetchCoordinate fetches one "group:module:version" extra dependency.
func (h *Harness) fetchCoordinate(ctx context.Context, coord string) (Artifact, error) {
	parts := strings.Split(coord, ":")
	if len(parts) != 3 {
		return nil, NewInvalidDirectiveError("extra dependency must be group:module:version, got " + coord)
	}
	return h.repo.Fetch(ctx, parts[0], parts[1], parts[2])
}

// referenceSetFor lazily extracts and caches one module's reference set.
func (h *Harness) referenceSetFor(module ExtensionModule) (*ReferenceSet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.refSets[module.Name()]; ok {
		return set, nil
	}
	if module.Namespace() == "" {
		return nil, NewEmptyNamespaceError(module.Name())
	}
	owned := NewNamespaceSet(module.Namespace())

	var refs []SymbolReference
	for _, binding := range module.Bindings() {
		set, err := h.extractor.Extract(binding.AdviceUnit, owned)
		if err != nil {
			return nil, NewExtractionError(binding.AdviceUnit, err)
		}
		refs = append(refs, set.References()...)
	}
	set := NewReferenceSet(refs)
	h.refSets[module.Name()] = set
	return set, nil
}

// excludedDep reports whether a dotted name matches any excluded prefix.
func excludedDep(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}
