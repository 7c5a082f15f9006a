// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// hardenedBit marks a derivation index as hardened, preventing public-key-only
// derivation of its children.
const hardenedBit uint32 = 0x80000000

// maxPathComponents is the most indices a single wire-encoded path can carry;
// the count prefix is one byte.
const maxPathComponents = 255

// DerivationPath is the binary form of a BIP-32 hierarchical derivation path.
// Hardened components carry the high bit.
//
// The canonical textual form is m/purpose'/coin'/account'/change/index, e.g.
// m/44'/60'/0'/0/0 for the first account of an Ethereum-class chain.
type DerivationPath []uint32

// DefaultRootDerivationPath is the prefix prepended to relative paths.
var DefaultRootDerivationPath = DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit + 0, 0}

// DefaultBaseDerivationPath is the path of the first account; iterate the last
// component for the rest.
var DefaultBaseDerivationPath = DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit + 0, 0, 0}

// ParseDerivationPath converts a user supplied path string into its binary
// representation. Absolute paths start with "m/"; anything else is treated as
// relative to DefaultRootDerivationPath. Hardened components are suffixed with
// one of ', h or H. Surrounding whitespace is ignored.
func ParseDerivationPath(path string) (DerivationPath, error) {
	var result DerivationPath

	components := strings.Split(path, "/")
	switch {
	case len(components) == 0 || strings.TrimSpace(path) == "":
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)

	case strings.TrimSpace(components[0]) == "":
		return nil, fmt.Errorf("%w: use 'm/' for absolute paths, no leading '/' for relative ones", ErrInvalidPath)

	case strings.TrimSpace(components[0]) == "m":
		components = components[1:]

	default:
		result = append(result, DefaultRootDerivationPath...)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, component := range components {
		component = strings.TrimSpace(component)

		var hardened bool
		switch {
		case strings.HasSuffix(component, "'"):
			hardened = true
			component = strings.TrimSpace(strings.TrimSuffix(component, "'"))
		case strings.HasSuffix(component, "h"), strings.HasSuffix(component, "H"):
			hardened = true
			component = strings.TrimSpace(component[:len(component)-1])
		}
		value, err := strconv.ParseUint(component, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q", ErrInvalidPath, component)
		}
		// Raw indices must leave room for the hardened bit.
		if value >= uint64(hardenedBit) {
			return nil, fmt.Errorf("%w: component %d out of range [0, %d]", ErrInvalidPath, value, hardenedBit-1)
		}
		index := uint32(value)
		if hardened {
			index |= hardenedBit
		}
		result = append(result, index)
	}
	if len(result) > maxPathComponents {
		return nil, fmt.Errorf("%w: too many components (%d)", ErrInvalidPath, len(result))
	}
	return result, nil
}

// String renders the canonical textual form of the path.
func (path DerivationPath) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, component := range path {
		hardened := component >= hardenedBit
		if hardened {
			component -= hardenedBit
		}
		fmt.Fprintf(&sb, "/%d", component)
		if hardened {
			sb.WriteString("'")
		}
	}
	return sb.String()
}

// Serialize flattens the path into the device wire form: a one byte component
// count followed by each index as a big-endian uint32, hardened bit included.
func (path DerivationPath) Serialize() ([]byte, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if len(path) > maxPathComponents {
		return nil, fmt.Errorf("%w: too many components (%d)", ErrInvalidPath, len(path))
	}
	out := make([]byte, 1+4*len(path))
	out[0] = byte(len(path))
	for i, component := range path {
		binary.BigEndian.PutUint32(out[1+4*i:], component)
	}
	return out, nil
}

// MarshalJSON encodes the path as its canonical string form.
func (path DerivationPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(path.String())
}

// UnmarshalJSON decodes a path from its string form.
func (path *DerivationPath) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDerivationPath(s)
	if err != nil {
		return err
	}
	*path = parsed
	return nil
}

// DefaultIterator returns successive account paths by incrementing the last
// component of base: m/44'/60'/0'/0/0, m/44'/60'/0'/0/1, ...
func DefaultIterator(base DerivationPath) func() DerivationPath {
	path := make(DerivationPath, len(base))
	copy(path, base)
	// Step back once so the first call yields the base itself.
	path[len(path)-1]--
	return func() DerivationPath {
		path[len(path)-1]++
		out := make(DerivationPath, len(path))
		copy(out, path)
		return out
	}
}

// LedgerLiveIterator returns successive account paths the way Ledger Live
// does, incrementing the hardened account component instead of the index:
// m/44'/60'/0'/0/0, m/44'/60'/1'/0/0, ...
func LedgerLiveIterator(base DerivationPath) func() DerivationPath {
	path := make(DerivationPath, len(base))
	copy(path, base)
	path[2]--
	return func() DerivationPath {
		path[2]++
		out := make(DerivationPath, len(path))
		copy(out, path)
		return out
	}
}
