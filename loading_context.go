// loading_context.go: isolated code-loading boundaries with parent delegation
//
// A loading context is an addressable code-loading boundary. Lookups resolve
// against the context's private storage first and then delegate to a single
// parent; NotFound is a normal negative result, never a failure. The isolated
// context's parent is always the platform context, never the host
// application's own context, which is what keeps the extension's bundled
// dependencies and the host's dependencies mutually invisible.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// nextContextID hands out process-unique context identities. Verdict caches
// key on this identity, so two contexts with equal names never share cached
// results.
var nextContextID atomic.Uint64

// LoadingContext is an addressable code-loading boundary.
//
// LoadUnit and LoadResource resolve locally first and then delegate to the
// parent chain. A unit that exists nowhere yields a NotFound error (check
// with IsNotFound); malformed private entries yield real loading errors.
type LoadingContext interface {
	// Name returns the human-readable context name used in diagnostics.
	Name() string

	// ID returns the process-unique context identity.
	ID() uint64

	// LoadUnit resolves a dotted unit name to its compiled unit.
	LoadUnit(name string) (*CompiledUnit, error)

	// LoadResource resolves a non-code payload by resource name, remapping
	// standard <name>.class lookups onto the private entry shape.
	LoadResource(name string) ([]byte, error)

	// Parent returns the delegation parent, or nil for a root context.
	Parent() LoadingContext
}

// UnitDefiner is implemented by contexts that accept unit definitions, which
// is how helper units are deployed into a host context. Definition is
// idempotent: the first completed definition wins and later definers discard
// their redundant work.
type UnitDefiner interface {
	DefineUnit(unit *CompiledUnit) error
}

// UnitStore abstracts the private storage area backing an isolated context.
type UnitStore interface {
	// Get returns the raw bytes for a storage entry. The boolean reports
	// presence; an error means the store itself failed, not that the entry
	// is absent.
	Get(entry string) ([]byte, bool, error)
}

// MapUnitStore is an in-memory unit store. It backs candidate contexts in
// the harness and tests.
type MapUnitStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMapUnitStore creates an empty in-memory store.
func NewMapUnitStore() *MapUnitStore {
	return &MapUnitStore{entries: make(map[string][]byte)}
}

// Put stores raw bytes under a storage entry name.
func (s *MapUnitStore) Put(entry string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry] = raw
}

// PutUnit encodes a type descriptor and stores it under its private entry.
func (s *MapUnitStore) PutUnit(desc *TypeDescriptor) error {
	raw, err := EncodeUnit(desc)
	if err != nil {
		return err
	}
	s.Put(PrivateEntryName(desc.Name), raw)
	return nil
}

// Get implements UnitStore.
func (s *MapUnitStore) Get(entry string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.entries[entry]
	return raw, ok, nil
}

// DirUnitStore reads private entries from a directory tree rooted at Root.
// Entry names map directly onto relative file paths.
type DirUnitStore struct {
	Root string
}

// Get implements UnitStore.
func (s *DirUnitStore) Get(entry string) ([]byte, bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(entry)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, NewStoreUnavailableError(entry, err)
	}
	return raw, true, nil
}

// IsolatedContext is a loading context with a private storage area and a
// single delegation parent.
//
// Resolution order for LoadUnit(name):
//  1. a private entry under the storage root (invisible to ordinary host
//     lookups by construction of the entry naming)
//  2. the parent context
//  3. NotFound
//
// Successfully loaded units are cached for the life of the context and never
// re-materialized. Concurrent loads of the same unit are collapsed; when a
// race does slip through, the first completed definition wins.
type IsolatedContext struct {
	name   string
	id     uint64
	parent LoadingContext
	store  UnitStore
	logger Logger

	cache     sync.Map // unit name -> *CompiledUnit
	resources sync.Map // storage entry -> []byte
	group     singleflight.Group
}

// NewIsolatedContext creates an isolated context over the given private
// store, delegating unresolved lookups to parent. The parent should be the
// platform context for the agent's own isolation domain; candidate contexts
// in the harness follow the same rule.
func NewIsolatedContext(name string, store UnitStore, parent LoadingContext, logger any) *IsolatedContext {
	return &IsolatedContext{
		name:   name,
		id:     nextContextID.Add(1),
		parent: parent,
		store:  store,
		logger: NewLogger(logger),
	}
}

// Name implements LoadingContext.
func (c *IsolatedContext) Name() string { return c.name }

// ID implements LoadingContext.
func (c *IsolatedContext) ID() uint64 { return c.id }

// Parent implements LoadingContext.
func (c *IsolatedContext) Parent() LoadingContext { return c.parent }

// LoadUnit implements LoadingContext.
func (c *IsolatedContext) LoadUnit(name string) (*CompiledUnit, error) {
	if cached, ok := c.cache.Load(name); ok {
		return cached.(*CompiledUnit), nil
	}

	// Collapse concurrent materializations of the same unit. Losing racers
	// receive the winner's unit and discard their own work.
	v, err, _ := c.group.Do(name, func() (any, error) {
		return c.materialize(name)
	})
	if err != nil {
		return nil, err
	}

	unit := v.(*CompiledUnit)
	if prior, raced := c.cache.LoadOrStore(name, unit); raced {
		unit = prior.(*CompiledUnit)
	}
	return unit, nil
}

// materialize resolves one unit without consulting the cache.
func (c *IsolatedContext) materialize(name string) (*CompiledUnit, error) {
	entry := PrivateEntryName(name)
	raw, present, err := c.store.Get(entry)
	if err != nil {
		return nil, err
	}
	if present {
		unit, decodeErr := DecodeUnit(name, raw)
		if decodeErr != nil {
			c.logger.Error("Failed to materialize private unit entry",
				"context", c.name, "unit", name, "entry", entry, "error", decodeErr)
			return nil, decodeErr
		}
		c.logger.Debug("Materialized private unit", "context", c.name, "unit", name)
		return unit, nil
	}

	if c.parent != nil {
		return c.parent.LoadUnit(name)
	}
	return nil, NewUnitNotFoundError(name)
}

// LoadResource implements LoadingContext. Standard <name>.class lookups are
// remapped to the private entry shape; other internal/ resources pass
// through unchanged.
func (c *IsolatedContext) LoadResource(name string) ([]byte, error) {
	entry := RemapResourceName(name)
	if cached, ok := c.resources.Load(entry); ok {
		return cached.([]byte), nil
	}

	raw, present, err := c.store.Get(entry)
	if err != nil {
		return nil, err
	}
	if present {
		if prior, raced := c.resources.LoadOrStore(entry, raw); raced {
			raw = prior.([]byte)
		}
		return raw, nil
	}

	if c.parent != nil {
		return c.parent.LoadResource(name)
	}
	return nil, NewUnitNotFoundError(name)
}

// DefineUnit implements UnitDefiner. The first completed definition wins;
// a unit already loaded or defined under the same name is left untouched and
// the redundant definition is discarded without error.
func (c *IsolatedContext) DefineUnit(unit *CompiledUnit) error {
	if unit == nil || unit.Descriptor == nil {
		return NewMalformedUnitError("", "unit definition without descriptor")
	}
	if _, raced := c.cache.LoadOrStore(unit.Name, unit); raced {
		c.logger.Debug("Discarded redundant unit definition", "context", c.name, "unit", unit.Name)
	}
	return nil
}

// PlatformContext is the parentless root of a delegation chain. It exposes a
// fixed set of platform types (the stand-in for language-runtime internals)
// and nothing else: no private storage, no resources, no definitions.
type PlatformContext struct {
	name  string
	id    uint64
	types map[string]*TypeDescriptor
}

// NewPlatformContext creates a root context exposing exactly the given
// types. The visible symbol set is immutable after construction, which is
// what makes per-context verdict caching sound.
func NewPlatformContext(name string, types []*TypeDescriptor) *PlatformContext {
	indexed := make(map[string]*TypeDescriptor, len(types))
	for _, t := range types {
		indexed[t.Name] = t
	}
	return &PlatformContext{
		name:  name,
		id:    nextContextID.Add(1),
		types: indexed,
	}
}

// Name implements LoadingContext.
func (p *PlatformContext) Name() string { return p.name }

// ID implements LoadingContext.
func (p *PlatformContext) ID() uint64 { return p.id }

// Parent implements LoadingContext. Platform contexts are roots.
func (p *PlatformContext) Parent() LoadingContext { return nil }

// LoadUnit implements LoadingContext, synthesizing units from the fixed
// platform type set.
func (p *PlatformContext) LoadUnit(name string) (*CompiledUnit, error) {
	if desc, ok := p.types[name]; ok {
		return &CompiledUnit{Name: name, Descriptor: desc}, nil
	}
	return nil, NewUnitNotFoundError(name)
}

// LoadResource implements LoadingContext. Platform contexts carry no
// resources.
func (p *PlatformContext) LoadResource(name string) ([]byte, error) {
	return nil, NewUnitNotFoundError(name)
}
