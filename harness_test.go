// harness_test.go: tests for the cross-version compatibility harness
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listClientArtifact builds the payload of a target library version that
// does or does not carry ArrayList-compatible surface.
func listClientArtifact(withAdd bool) Artifact {
	methods := []MethodDescriptor{publicMethod("<init>", nil, "void")}
	if withAdd {
		methods = append(methods, publicMethod("add", []string{"java.lang.Object"}, "boolean"))
	}
	return Artifact{
		"com.example.Client": &TypeDescriptor{
			Name:       "com.example.Client",
			Visibility: VisibilityPublic,
			Methods:    methods,
		},
	}
}

// clientAdviceModule binds advice referencing com.example.Client#add.
func clientAdviceModule() *StaticModule {
	return &StaticModule{
		ModuleName:      "client-telemetry",
		ModuleNamespace: "acme.telemetry",
		ModuleBindings: []Binding{{
			Matcher:    MatchNamed("com.example.Client"),
			Operation:  MemberSignature{Name: "add", Params: []string{"java.lang.Object"}},
			AdviceUnit: "acme.telemetry.ClientAdvice",
		}},
	}
}

func clientAdviceReader() *mapOperationReader {
	reader := newMapOperationReader()
	reader.ops["acme.telemetry.ClientAdvice"] = []Operation{
		{Kind: OpInvoke, TargetType: "com.example.Client", Member: MemberSignature{Name: "add", Params: []string{"java.lang.Object"}}, Line: 9},
	}
	return reader
}

func TestHarness_PassAndFailRanges(t *testing.T) {
	repo := NewMemoryArtifactRepository()
	// 1.x lacks add(Object); 2.x carries it.
	repo.Publish("com.example", "client", "1.0.0", listClientArtifact(false))
	repo.Publish("com.example", "client", "1.5.0", listClientArtifact(false))
	repo.Publish("com.example", "client", "2.0.0", listClientArtifact(true))
	repo.Publish("com.example", "client", "2.1.0", listClientArtifact(true))

	harness := NewHarness(repo, clientAdviceReader(),
		WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,)", AssertPass: true},
		{Group: "com.example", Module: "client", VersionRange: "(,2.0.0)", AssertPass: false},
	})
	require.NoError(t, err)

	assert.False(t, report.Failed(), "both assertions hold: %s", report.Summary())
	assert.Len(t, report.Results, 4)
	assert.Empty(t, report.SkippedVersions())
}

func TestHarness_DisagreementListsEveryVersion(t *testing.T) {
	repo := NewMemoryArtifactRepository()
	// Neither version carries the referenced member, so an assert-pass range
	// over both must report both.
	repo.Publish("com.example", "client", "2.0.0", listClientArtifact(false))
	repo.Publish("com.example", "client", "2.1.0", listClientArtifact(false))

	harness := NewHarness(repo, clientAdviceReader(),
		WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,)", AssertPass: true},
	})
	require.NoError(t, err)

	require.True(t, report.Failed())
	failures := report.Failures()
	require.Len(t, failures, 2, "every disagreeing version is listed")
	for _, f := range failures {
		assert.True(t, f.Expected)
		assert.False(t, f.Passed)
		require.NotEmpty(t, f.Mismatches, "failures carry concrete mismatches")
		assert.Contains(t, f.Mismatches[0], "missing method: com.example.Client#add(java.lang.Object)")
		assert.Contains(t, f.Mismatches[0], "client-telemetry: ", "mismatches name the module")
	}
	assert.Contains(t, report.Summary(), "FAIL com.example:client:2.0.0")
}

func TestHarness_ResolutionFailureIsSkippedNotFailed(t *testing.T) {
	repo := NewMemoryArtifactRepository()
	repo.Publish("com.example", "client", "2.0.0", listClientArtifact(true))
	// 2.1.0 is listed but its payload is missing, so fetching it fails.
	repo.versions["com.example:client"] = append(repo.versions["com.example:client"], "2.1.0")

	harness := NewHarness(repo, clientAdviceReader(),
		WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,)", AssertPass: true},
	})
	require.NoError(t, err, "one broken version never aborts the matrix")

	assert.False(t, report.Failed(), "a skipped version counts toward neither verdict")
	require.Len(t, report.SkippedVersions(), 1)
	skipped := report.SkippedVersions()[0]
	assert.Equal(t, "2.1.0", skipped.Version)
	assert.NotEmpty(t, skipped.ResolutionError)
}

func TestHarness_SkipVersionsExcluded(t *testing.T) {
	repo := NewMemoryArtifactRepository()
	repo.Publish("com.example", "client", "2.0.0", listClientArtifact(true))
	repo.Publish("com.example", "client", "2.3.0", listClientArtifact(false)) // known-broken artifact
	repo.Publish("com.example", "client", "2.4.0", listClientArtifact(true))

	harness := NewHarness(repo, clientAdviceReader(),
		WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,)", AssertPass: true, SkipVersions: []string{"2.3.0"}},
	})
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Len(t, report.Results, 2, "skip-listed versions never enter the matrix")
}

func TestHarness_ExtraDepsMergedIntoCandidate(t *testing.T) {
	repo := NewMemoryArtifactRepository()
	// The client artifact alone misses the transport type the advice needs.
	repo.Publish("com.example", "client", "2.0.0", listClientArtifact(true))
	repo.Publish("com.example", "transport", "1.1.0", Artifact{
		"com.example.transport.Channel": publicType("com.example.transport.Channel",
			publicMethod("send", []string{"java.lang.Object"}, "void")),
	})

	reader := clientAdviceReader()
	reader.ops["acme.telemetry.ClientAdvice"] = append(reader.ops["acme.telemetry.ClientAdvice"],
		Operation{Kind: OpInvoke, TargetType: "com.example.transport.Channel", Member: MemberSignature{Name: "send", Params: []string{"java.lang.Object"}}, Line: 15})

	harness := NewHarness(repo, reader, WithHarnessModules(clientAdviceModule()))

	// Without the extra dependency the directive fails.
	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,]", AssertPass: true},
	})
	require.NoError(t, err)
	require.True(t, report.Failed())

	// With it, the candidate context is complete.
	report, err = harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,]", AssertPass: true,
			ExtraDeps: []string{"com.example:transport:1.1.0"}},
	})
	require.NoError(t, err)
	assert.False(t, report.Failed(), "summary: %s", report.Summary())
}

func TestHarness_ExcludedDepsPruned(t *testing.T) {
	artifact := listClientArtifact(true)
	artifact["com.example.shaded.Bundled"] = publicType("com.example.shaded.Bundled")

	repo := NewMemoryArtifactRepository()
	repo.Publish("com.example", "client", "2.0.0", artifact)

	reader := clientAdviceReader()
	reader.ops["acme.telemetry.ClientAdvice"] = append(reader.ops["acme.telemetry.ClientAdvice"],
		Operation{Kind: OpTypeUse, TargetType: "com.example.shaded.Bundled", Line: 22})

	harness := NewHarness(repo, reader, WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,]", AssertPass: false,
			ExcludedDeps: []string{"com.example.shaded"}},
	})
	require.NoError(t, err)
	assert.False(t, report.Failed(),
		"with the shaded prefix pruned the candidate misses Bundled and the fail-assertion holds")
}

func TestHarness_InvalidDirectiveAbortsRun(t *testing.T) {
	harness := NewHarness(NewMemoryArtifactRepository(), newMapOperationReader(),
		WithHarnessModules(clientAdviceModule()))

	_, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "not-a-range"},
	})
	assert.Error(t, err)
}

func TestHTTPArtifactRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/com.example/client/versions.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]string{"versions": {"2.0.0", "2.1.0"}})
	})
	mux.HandleFunc("/com.example/client/2.0.0/units.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]Artifact{"units": listClientArtifact(true)})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	repo := NewHTTPArtifactRepository(server.URL, nil)

	versions, err := repo.Versions(context.Background(), "com.example", "client")
	require.NoError(t, err)
	assert.Equal(t, []string{"2.0.0", "2.1.0"}, versions)

	artifact, err := repo.Fetch(context.Background(), "com.example", "client", "2.0.0")
	require.NoError(t, err)
	require.Contains(t, artifact, "com.example.Client")
	assert.NotNil(t, artifact["com.example.Client"].Method("add", []string{"java.lang.Object"}))

	_, err = repo.Fetch(context.Background(), "com.example", "client", "9.9.9")
	assert.Error(t, err, "a 404 payload is a resolution failure")
}

func TestHarness_EndToEndOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/com.example/client/versions.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]string{"versions": {"1.0.0", "2.0.0"}})
	})
	mux.HandleFunc("/com.example/client/1.0.0/units.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]Artifact{"units": listClientArtifact(false)})
	})
	mux.HandleFunc("/com.example/client/2.0.0/units.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]Artifact{"units": listClientArtifact(true)})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	harness := NewHarness(NewHTTPArtifactRepository(server.URL, nil), clientAdviceReader(),
		WithHarnessModules(clientAdviceModule()))

	report, err := harness.Run(context.Background(), []Directive{
		{Group: "com.example", Module: "client", VersionRange: "[2.0.0,)", AssertPass: true},
		{Group: "com.example", Module: "client", VersionRange: "(,2.0.0)", AssertPass: false},
	})
	require.NoError(t, err)
	assert.False(t, report.Failed(), "summary: %s", report.Summary())
	assert.Len(t, report.Results, 2)
}

func TestHarness_CandidateBuildLeavesPublishedArtifactPristine(t *testing.T) {
	// Published without a name; the candidate build fills it in from the key.
	desc := &TypeDescriptor{Visibility: VisibilityPublic}
	repo := NewMemoryArtifactRepository()
	repo.Publish("com.example", "client", "1.0.0", Artifact{"com.example.Client": desc})

	harness := NewHarness(repo, clientAdviceReader(), WithHarnessModules(clientAdviceModule()))
	directive := Directive{Group: "com.example", Module: "client", VersionRange: "[1.0.0,)"}

	artifact, err := repo.Fetch(t.Context(), "com.example", "client", "1.0.0")
	require.NoError(t, err)
	candidate, err := harness.buildCandidate(&directive, "1.0.0", artifact)
	require.NoError(t, err)

	unit, err := candidate.LoadUnit("com.example.Client")
	require.NoError(t, err)
	assert.Equal(t, "com.example.Client", unit.Descriptor.Name)
	assert.Empty(t, desc.Name, "naming the candidate's copy must not mutate the published descriptor")
}
