// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SignatureLength is the byte length of a normalized r||s signature.
const SignatureLength = 64

var (
	curveOrder     = secp256k1.S256().Params().N
	halfCurveOrder = new(big.Int).Rsh(curveOrder, 1)
)

// Signature is a normalized 64-byte (r, s) pair with an optional recovery
// indicator. S is always canonical (low-S): at most half the curve order, so
// one logical signature has exactly one encoding.
type Signature struct {
	R [32]byte
	S [32]byte

	// V is the recovery indicator (0 or 1) when the device reported one.
	V           byte
	HasRecovery bool
}

// Bytes returns the 64-byte r||s form.
func (sig Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], sig.R[:])
	copy(out[32:], sig.S[:])
	return out
}

// Hex returns the 128-character hex encoding of r||s.
func (sig Signature) Hex() string {
	return hex.EncodeToString(sig.Bytes())
}

// parseSignature normalizes the formats hardware devices return into a
// Signature:
//
//   - 64 bytes: r||s fixed components
//   - 65 bytes: v||r||s, the recovery byte first (family A devices)
//   - DER: 0x30 len 0x02 lenR R 0x02 lenS S
//
// The observed DER output only ever uses single-byte length fields; a length
// byte with the long-form bit set (>= 0x80) is rejected rather than
// mis-parsed. The result is not yet canonicalized.
func parseSignature(raw []byte) (Signature, error) {
	var sig Signature
	switch {
	case len(raw) == SignatureLength:
		copy(sig.R[:], raw[:32])
		copy(sig.S[:], raw[32:])
		return sig, nil

	case len(raw) == SignatureLength+1 && raw[0] != 0x30:
		// Devices report either the bare recovery id or the legacy 27+recid
		// form; both collapse to a 0/1 indicator.
		v := raw[0]
		if v >= 27 {
			v -= 27
		}
		sig.V = v & 1
		sig.HasRecovery = true
		copy(sig.R[:], raw[1:33])
		copy(sig.S[:], raw[33:])
		return sig, nil

	case len(raw) > 2 && raw[0] == 0x30:
		return parseDERSignature(raw)

	default:
		return sig, fmt.Errorf("%w: unrecognized signature encoding (%d bytes)", ErrSigningFailed, len(raw))
	}
}

func parseDERSignature(raw []byte) (Signature, error) {
	var sig Signature

	if raw[1] >= 0x80 {
		return sig, fmt.Errorf("%w: multi-byte DER length not supported", ErrSigningFailed)
	}
	if int(raw[1]) != len(raw)-2 {
		return sig, fmt.Errorf("%w: DER length mismatch", ErrSigningFailed)
	}
	rest := raw[2:]

	r, rest, err := parseDERInt(rest)
	if err != nil {
		return sig, err
	}
	s, rest, err := parseDERInt(rest)
	if err != nil {
		return sig, err
	}
	if len(rest) != 0 {
		return sig, fmt.Errorf("%w: trailing bytes after DER signature", ErrSigningFailed)
	}
	copy(sig.R[32-len(r):], r)
	copy(sig.S[32-len(s):], s)
	return sig, nil
}

// parseDERInt consumes one 0x02-tagged integer, stripping the sign padding
// byte and returning at most 32 value bytes.
func parseDERInt(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 2 || buf[0] != 0x02 {
		return nil, nil, fmt.Errorf("%w: malformed DER integer tag", ErrSigningFailed)
	}
	if buf[1] >= 0x80 {
		return nil, nil, fmt.Errorf("%w: multi-byte DER length not supported", ErrSigningFailed)
	}
	length := int(buf[1])
	if length == 0 || len(buf) < 2+length {
		return nil, nil, fmt.Errorf("%w: truncated DER integer", ErrSigningFailed)
	}
	value = buf[2 : 2+length]
	// A leading zero is sign padding for a high first bit.
	if value[0] == 0x00 {
		value = value[1:]
	}
	if len(value) > 32 {
		return nil, nil, fmt.Errorf("%w: DER component exceeds 32 bytes", ErrSigningFailed)
	}
	return value, buf[2+length:], nil
}

// canonicalize enforces the low-S convention: when s exceeds half the curve
// order it is replaced with order-s, flipping the recovery bit to match.
func (sig Signature) canonicalize() Signature {
	s := new(big.Int).SetBytes(sig.S[:])
	if s.Cmp(halfCurveOrder) <= 0 {
		return sig
	}
	s.Sub(curveOrder, s)

	out := sig
	out.S = [32]byte{}
	s.FillBytes(out.S[:])
	if out.HasRecovery {
		out.V ^= 1
	}
	return out
}

// normalizeSignature parses a raw device signature and returns its canonical
// low-S form.
func normalizeSignature(raw []byte) (Signature, error) {
	sig, err := parseSignature(raw)
	if err != nil {
		return Signature{}, err
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(curveOrder) >= 0 || s.Cmp(curveOrder) >= 0 {
		return Signature{}, fmt.Errorf("%w: signature component out of range", ErrSigningFailed)
	}
	return sig.canonicalize(), nil
}
