// unit.go: compiled unit model, classdata codec, and private-entry naming
//
// Units are the currency of the loading layer: every type an extension or a
// target library contributes is carried as a compiled unit whose payload
// decodes into a type descriptor. Units deployed into an isolated context's
// private storage use a naming shape that ordinary resource lookups never
// produce, which is what keeps them invisible to the host's own loading.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goweave

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
)

// classdataMagic prefixes every private unit entry. A payload that does not
// start with it is malformed, not merely absent.
var classdataMagic = []byte{'W', 'V', 'U', '1'}

// classdataHeaderSize is magic plus a big-endian uint32 payload length.
const classdataHeaderSize = 8

const (
	privateEntryPrefix = "internal/"
	privateEntrySuffix = ".classdata"
	standardUnitSuffix = ".class"
)

// MethodDescriptor describes one declared method of a type: its name, the
// type names of its parameters in order, and its return type name.
type MethodDescriptor struct {
	Name       string     `json:"name"`
	Params     []string   `json:"params,omitempty"`
	Returns    string     `json:"returns,omitempty"`
	Visibility Visibility `json:"visibility"`
}

// FieldDescriptor describes one declared field of a type.
type FieldDescriptor struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Visibility Visibility `json:"visibility"`
}

// TypeDescriptor is the decoded form of a compiled unit: the type's dotted
// name, its supertype (empty for roots), its own visibility, and its declared
// members. Member lookup during verification searches declared members first
// and only then ascends the supertype chain.
type TypeDescriptor struct {
	Name       string             `json:"name"`
	Super      string             `json:"super,omitempty"`
	Visibility Visibility         `json:"visibility"`
	Methods    []MethodDescriptor `json:"methods,omitempty"`
	Fields     []FieldDescriptor  `json:"fields,omitempty"`
}

// Method returns the declared method with the given name and exact parameter
// shapes, or nil. Return types are deliberately not part of the match key.
func (d *TypeDescriptor) Method(name string, params []string) *MethodDescriptor {
	for i := range d.Methods {
		m := &d.Methods[i]
		if m.Name != name || len(m.Params) != len(params) {
			continue
		}
		match := true
		for j, p := range params {
			if m.Params[j] != p {
				match = false
				break
			}
		}
		if match {
			return m
		}
	}
	return nil
}

// Field returns the declared field with the given name, or nil.
func (d *TypeDescriptor) Field(name string) *FieldDescriptor {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// CompiledUnit is one loadable unit of code: its dotted name, the raw entry
// bytes it was materialized from (nil for synthesized platform units), and
// its decoded type descriptor.
type CompiledUnit struct {
	Name       string
	Raw        []byte
	Descriptor *TypeDescriptor
}

// PrivateEntryName maps a dotted unit name to its private storage entry:
// internal/<dotted-name-with-slashes>.classdata. The shape is deliberately
// unrelated to standard unit naming so host tooling can never resolve it by
// accident.
func PrivateEntryName(unitName string) string {
	return privateEntryPrefix + strings.ReplaceAll(unitName, ".", "/") + privateEntrySuffix
}

// RemapResourceName maps standard resource lookups for <name>.class onto the
// private entry shape. Any other resource name under the internal/ prefix is
// passed through unchanged, as is anything that is not a .class lookup.
func RemapResourceName(resource string) string {
	if !strings.HasSuffix(resource, standardUnitSuffix) {
		return resource
	}
	stem := strings.TrimSuffix(resource, standardUnitSuffix)
	if strings.HasPrefix(stem, privateEntryPrefix) {
		return resource
	}
	return privateEntryPrefix + stem + privateEntrySuffix
}

// EncodeUnit serializes a type descriptor into classdata entry bytes.
func EncodeUnit(desc *TypeDescriptor) ([]byte, error) {
	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, NewUnitDecodeError(desc.Name, err)
	}
	buf := make([]byte, 0, classdataHeaderSize+len(payload))
	buf = append(buf, classdataMagic...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

// DecodeUnit materializes a compiled unit from classdata entry bytes.
//
// Failure semantics: a missing magic marker or a payload shorter than the
// declared length is a descriptive loading error carrying expected vs actual
// byte counts. Decode errors are never swallowed into a NotFound.
func DecodeUnit(name string, raw []byte) (*CompiledUnit, error) {
	if len(raw) < classdataHeaderSize {
		return nil, NewTruncatedUnitError(name, classdataHeaderSize, len(raw))
	}
	if !bytes.Equal(raw[:len(classdataMagic)], classdataMagic) {
		return nil, NewMalformedUnitError(name, "missing classdata magic")
	}
	declared := int(binary.BigEndian.Uint32(raw[len(classdataMagic):classdataHeaderSize]))
	payload := raw[classdataHeaderSize:]
	if len(payload) < declared {
		return nil, NewTruncatedUnitError(name, declared, len(payload))
	}
	var desc TypeDescriptor
	if err := json.Unmarshal(payload[:declared], &desc); err != nil {
		return nil, NewUnitDecodeError(name, err)
	}
	if desc.Name == "" {
		desc.Name = name
	}
	return &CompiledUnit{Name: name, Raw: raw, Descriptor: &desc}, nil
}

// packagePath returns everything before the last dot of a dotted type name,
// or "" for unqualified names.
func packagePath(typeName string) string {
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		return typeName[:idx]
	}
	return ""
}
