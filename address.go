// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of a derived account address.
const AddressLength = 20

// Address is a fixed-length account address derived from a device-reported
// public key. It is a pure value: deriving twice from the same key yields the
// same address.
type Address [AddressLength]byte

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte { return a[:] }

// String implements fmt.Stringer, rendering the checksummed form.
func (a Address) String() string { return a.Hex() }

// Hex returns the 0x-prefixed mixed-case address. The casing of each hex
// character encodes a checksum: the lowercase hex form is hashed and a
// character is uppercased when the corresponding checksum nibble is >= 8.
func (a Address) Hex() string {
	return "0x" + string(checksumHex(a[:], sha3.NewLegacyKeccak256))
}

func checksumHex(addr []byte, newHash func() hash.Hash) []byte {
	buf := make([]byte, len(addr)*2)
	hex.Encode(buf, addr)

	h := newHash()
	h.Write(buf)
	sum := h.Sum(nil)
	for i := 0; i < len(buf); i++ {
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if buf[i] > '9' && nibble&0xf >= 8 {
			buf[i] -= 32 // lowercase letter to uppercase
		}
	}
	return buf
}

// AddressDeriver turns device-reported public keys into addresses. The hash
// function is a configuration point for chains that diverge from the default;
// New must return a digest of at least AddressLength bytes.
type AddressDeriver struct {
	New func() hash.Hash
}

// DefaultAddressDeriver hashes with legacy Keccak-256, the convention of
// Ethereum-class chains.
var DefaultAddressDeriver = AddressDeriver{New: sha3.NewLegacyKeccak256}

// Derive computes the address for an uncompressed public key. The key may
// carry the 0x04 uncompressed prefix (65 bytes) or be the raw 64-byte X||Y
// coordinates, and must be a valid curve point. The coordinates are hashed
// and the trailing AddressLength digest bytes become the address. Pure: no
// device interaction, identical input always yields the identical address.
func (d AddressDeriver) Derive(pub []byte) (Address, error) {
	var addr Address

	raw := pub
	switch len(raw) {
	case 65:
		if raw[0] != 0x04 {
			return addr, fmt.Errorf("%w: unexpected public key prefix 0x%02x", ErrSigningFailed, raw[0])
		}
	case 64:
		raw = append([]byte{0x04}, raw...)
	default:
		return addr, fmt.Errorf("%w: public key must be 64 or 65 bytes, got %d", ErrSigningFailed, len(pub))
	}
	if _, err := secp256k1.ParsePubKey(raw); err != nil {
		return addr, fmt.Errorf("%w: public key is not on the curve: %v", ErrSigningFailed, err)
	}
	h := d.New()
	h.Write(raw[1:])
	sum := h.Sum(nil)
	if len(sum) < AddressLength {
		return addr, fmt.Errorf("%w: address digest too short (%d bytes)", ErrSigningFailed, len(sum))
	}
	copy(addr[:], sum[len(sum)-AddressLength:])
	return addr, nil
}

// DeriveAddress derives an address with the default hash function.
func DeriveAddress(pub []byte) (Address, error) {
	return DefaultAddressDeriver.Derive(pub)
}
