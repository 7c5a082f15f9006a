// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		input string
		want  DerivationPath
	}{
		{"m/44'/60'/0'/0/0", DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit, 0, 0}},
		{"m/44'/60'/0'/0", DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit, 0}},
		{"m/2147483647'/0", DerivationPath{hardenedBit + 2147483647, 0}},
		{"m/44h/60H/0'/0/0", DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit, 0, 0}},
		{"m / 44' / 60' / 0' / 0", DerivationPath{hardenedBit + 44, hardenedBit + 60, hardenedBit, 0}},
		// Relative paths extend the default root.
		{"0", append(append(DerivationPath{}, DefaultRootDerivationPath...), 0)},
		{"1'/2", append(append(DerivationPath{}, DefaultRootDerivationPath...), hardenedBit+1, 2)},
	}
	for _, tt := range tests {
		got, err := ParseDerivationPath(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestParseDerivationPathInvalid(t *testing.T) {
	inputs := []string{
		"",
		"m",
		"m/",
		"/44'/60'/0'/0",
		"m/44'/60'/x",
		"m/44''",
		"m/-44/60",
		"m/2147483648/0", // raw index must stay below the hardened bit
		"m/2147483648'/0",
		"m/4294967296/0",
	}
	for _, input := range inputs {
		_, err := ParseDerivationPath(input)
		assert.ErrorIs(t, err, ErrInvalidPath, "input %q", input)
	}
}

func TestDerivationPathRoundTrip(t *testing.T) {
	paths := []string{
		"m/44'/60'/0'/0/0",
		"m/44'/60'/0'/0",
		"m/0",
		"m/2147483647'/2147483647",
	}
	for _, s := range paths {
		parsed, err := ParseDerivationPath(s)
		require.NoError(t, err)
		assert.Equal(t, s, parsed.String())

		again, err := ParseDerivationPath(parsed.String())
		require.NoError(t, err)
		assert.Equal(t, parsed, again)
	}
}

func TestDerivationPathSerialize(t *testing.T) {
	path, err := ParseDerivationPath("m/44'/60'/0'/0/1")
	require.NoError(t, err)

	wire, err := path.Serialize()
	require.NoError(t, err)

	want := []byte{
		5,
		0x80, 0x00, 0x00, 0x2c, // 44'
		0x80, 0x00, 0x00, 0x3c, // 60'
		0x80, 0x00, 0x00, 0x00, // 0'
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
	}
	assert.Equal(t, want, wire)
}

func TestDerivationPathSerializeEmpty(t *testing.T) {
	_, err := DerivationPath{}.Serialize()
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDerivationPathJSON(t *testing.T) {
	path, err := ParseDerivationPath("m/44'/60'/1'/0/7")
	require.NoError(t, err)

	blob, err := json.Marshal(path)
	require.NoError(t, err)
	assert.Equal(t, `"m/44'/60'/1'/0/7"`, string(blob))

	var decoded DerivationPath
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, path, decoded)
}

func TestPathIterators(t *testing.T) {
	next := DefaultIterator(DefaultBaseDerivationPath)
	assert.Equal(t, "m/44'/60'/0'/0/0", next().String())
	assert.Equal(t, "m/44'/60'/0'/0/1", next().String())
	assert.Equal(t, "m/44'/60'/0'/0/2", next().String())

	live := LedgerLiveIterator(DefaultBaseDerivationPath)
	assert.Equal(t, "m/44'/60'/0'/0/0", live().String())
	assert.Equal(t, "m/44'/60'/1'/0/0", live().String())
	assert.Equal(t, "m/44'/60'/2'/0/0", live().String())
}
