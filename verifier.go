// verifier.go: reference verification against candidate loading contexts
//
// The verifier answers one question: does every symbol a module's injected
// logic references exist, with a compatible kind and visibility, in the
// exact library version a loading context exposes? It never short-circuits;
// all mismatches are collected in one pass so a single verification run
// yields complete diagnostics. Verdicts are cached per context identity
// under the assumption that a context's visible symbol set is immutable
// after it is first observed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// TypeResolver resolves a dotted type name through a loading context,
// delegating through the context's parent chain exactly as a normal lookup
// would. Custom resolvers exist mainly for tests and for call-count probes.
type TypeResolver interface {
	ResolveType(name string, ctx LoadingContext) (*TypeDescriptor, error)
}

// contextTypeResolver is the default resolver: a plain LoadUnit through the
// context, surfacing the decoded descriptor.
type contextTypeResolver struct{}

func (contextTypeResolver) ResolveType(name string, ctx LoadingContext) (*TypeDescriptor, error) {
	unit, err := ctx.LoadUnit(name)
	if err != nil {
		return nil, err
	}
	if unit.Descriptor == nil {
		return nil, NewMalformedUnitError(name, "unit has no type descriptor")
	}
	return unit.Descriptor, nil
}

// Verdict is the outcome of checking one reference set against one loading
// context. Passed is true exactly when Mismatches is empty.
type Verdict struct {
	Passed     bool      `json:"passed"`
	Mismatches []string  `json:"mismatches,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Verifier checks one reference set against loading contexts, memoizing the
// verdict per context identity.
//
// Concurrency: concurrent Verify calls against the same context may compute
// the verdict redundantly rather than block; verdicts are pure functions of
// (reference set, context), so redundant computation is wasted work, not a
// correctness hazard. The first stored verdict wins and is returned to every
// later caller.
type Verifier struct {
	set      *ReferenceSet
	resolver TypeResolver
	logger   Logger
	metrics  MetricsCollector

	mu       sync.RWMutex
	verdicts map[uint64]Verdict
}

// VerifierOption customizes a verifier.
type VerifierOption func(*Verifier)

// WithTypeResolver replaces the default context-backed type resolver.
func WithTypeResolver(resolver TypeResolver) VerifierOption {
	return func(v *Verifier) { v.resolver = resolver }
}

// WithVerifierLogger sets the verifier's logger.
func WithVerifierLogger(logger any) VerifierOption {
	return func(v *Verifier) { v.logger = NewLogger(logger) }
}

// WithVerifierMetrics sets the metrics collector for verification counters.
func WithVerifierMetrics(collector MetricsCollector) VerifierOption {
	return func(v *Verifier) { v.metrics = collector }
}

// NewVerifier creates a verifier bound to one immutable reference set.
func NewVerifier(set *ReferenceSet, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		set:      set,
		resolver: contextTypeResolver{},
		logger:   DefaultLogger(),
		metrics:  NewNoOpMetricsCollector(),
		verdicts: make(map[uint64]Verdict),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the reference set against the given context, returning the
// cached verdict when the context was already verified. Repeated calls
// against the same unchanged context are deterministic and do not re-resolve
// symbols.
func (v *Verifier) Verify(ctx LoadingContext) Verdict {
	id := ctx.ID()

	v.mu.RLock()
	verdict, cached := v.verdicts[id]
	v.mu.RUnlock()
	if cached {
		return verdict
	}

	verdict = v.compute(ctx)

	v.mu.Lock()
	if prior, raced := v.verdicts[id]; raced {
		// A concurrent verification finished first; keep its verdict.
		verdict = prior
	} else {
		v.verdicts[id] = verdict
	}
	v.mu.Unlock()

	return verdict
}

// Mismatches returns the mismatch descriptions for the given context,
// computing and caching the verdict if needed.
func (v *Verifier) Mismatches(ctx LoadingContext) []string {
	return v.Verify(ctx).Mismatches
}

// compute performs one full, non-cached verification pass.
func (v *Verifier) compute(ctx LoadingContext) Verdict {
	var mismatches []string

	order, grouped := v.set.BySymbol()
	for _, key := range order {
		sites := grouped[key]
		if msg, ok := v.checkSymbol(sites, ctx); !ok {
			mismatches = append(mismatches, msg)
		}
	}

	verdict := Verdict{
		Passed:     len(mismatches) == 0,
		Mismatches: mismatches,
		CheckedAt:  timecache.CachedTime(),
	}

	labels := map[string]string{"context": ctx.Name()}
	v.metrics.IncrementCounter("goweave_verifications_total", labels, 1)
	if !verdict.Passed {
		v.metrics.IncrementCounter("goweave_verification_mismatches_total", labels, int64(len(mismatches)))
		v.logger.Debug("Reference verification failed",
			"context", ctx.Name(), "context_id", ctx.ID(), "mismatches", len(mismatches))
	}
	return verdict
}

// checkSymbol verifies one underlying symbol. All sites reference the same
// symbol; the first site is used for the diagnostic location and the
// strictest required visibility across sites is enforced.
func (v *Verifier) checkSymbol(sites []SymbolReference, ctx LoadingContext) (string, bool) {
	ref := sites[0]
	required := ref.RequiredVisibility
	for _, site := range sites[1:] {
		if site.RequiredVisibility > required {
			required = site.RequiredVisibility
		}
	}

	desc, err := v.resolver.ResolveType(ref.TargetType, ctx)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Sprintf("type not found: %s (referenced from %s)", ref.TargetType, ref.Site()), false
		}
		// A resolution failure is a loading problem, not a missing symbol;
		// the mismatch carries the wrapped cause so the two stay
		// distinguishable in reports.
		return fmt.Sprintf("type %s could not be resolved: %v (referenced from %s)",
			ref.TargetType, NewResolverError(ref.TargetType, err), ref.Site()), false
	}

	switch ref.Kind {
	case KindTypeUse:
		if !desc.Visibility.Satisfies(required) {
			return fmt.Sprintf("type %s is %s, %s access required (referenced from %s)",
				ref.TargetType, desc.Visibility, required, ref.Site()), false
		}
		return "", true
	case KindMethodCall:
		method, owner := v.findMethod(desc, ref.Signature, ctx)
		if method == nil {
			return fmt.Sprintf("missing method: %s#%s (referenced from %s)",
				ref.TargetType, ref.Signature, ref.Site()), false
		}
		if !method.Visibility.Satisfies(required) {
			return fmt.Sprintf("method %s#%s is %s on %s, %s access required (referenced from %s)",
				ref.TargetType, ref.Signature, method.Visibility, owner, required, ref.Site()), false
		}
		return "", true
	default:
		field, owner := v.findField(desc, ref.Signature.Name, ctx)
		if field == nil {
			return fmt.Sprintf("missing field: %s#%s (referenced from %s)",
				ref.TargetType, ref.Signature.Name, ref.Site()), false
		}
		if !field.Visibility.Satisfies(required) {
			return fmt.Sprintf("field %s#%s is %s on %s, %s access required (referenced from %s)",
				ref.TargetType, ref.Signature.Name, field.Visibility, owner, required, ref.Site()), false
		}
		return "", true
	}
}

// findMethod searches the type's own declared methods and then ascends the
// supertype chain, matching by exact name and parameter shapes.
func (v *Verifier) findMethod(desc *TypeDescriptor, sig MemberSignature, ctx LoadingContext) (*MethodDescriptor, string) {
	for current := desc; current != nil; {
		if m := current.Method(sig.Name, sig.Params); m != nil {
			return m, current.Name
		}
		if current.Super == "" {
			return nil, ""
		}
		next, err := v.resolver.ResolveType(current.Super, ctx)
		if err != nil {
			// An unresolvable ancestor terminates the search; the member is
			// reported missing rather than the walk erroring out.
			return nil, ""
		}
		current = next
	}
	return nil, ""
}

// findField searches declared fields and then the supertype chain, matching
// by name.
func (v *Verifier) findField(desc *TypeDescriptor, name string, ctx LoadingContext) (*FieldDescriptor, string) {
	for current := desc; current != nil; {
		if f := current.Field(name); f != nil {
			return f, current.Name
		}
		if current.Super == "" {
			return nil, ""
		}
		next, err := v.resolver.ResolveType(current.Super, ctx)
		if err != nil {
			return nil, ""
		}
		current = next
	}
	return nil, ""
}
