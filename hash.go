// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// messagePrefix namespaces personal message signatures so a signed message can
// never be replayed as a transaction.
const messagePrefix = "\x19Ethereum Signed Message:\n"

// keccak256 hashes the concatenation of the inputs with legacy Keccak-256.
func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// canonicalJSON serializes a payload deterministically: the value is
// normalized through an interface tree so JSON objects always emit their keys
// in sorted order, independent of input field order or source formatting.
func canonicalJSON(payload any) ([]byte, error) {
	first, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload not serializable: %v", ErrSigningFailed, err)
	}
	var normalized any
	if err := json.Unmarshal(first, &normalized); err != nil {
		return nil, fmt.Errorf("%w: payload not serializable: %v", ErrSigningFailed, err)
	}
	// Maps marshal with sorted keys, which is the canonical form.
	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: payload not serializable: %v", ErrSigningFailed, err)
	}
	return out, nil
}

// hashTransaction produces the digest submitted to the device for a
// transaction payload.
func hashTransaction(payload any) ([]byte, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return nil, err
	}
	return keccak256(canonical), nil
}

// hashMessage produces the digest submitted to the device for a personal
// message, applying the length-prefixed namespace header.
func hashMessage(msg []byte) []byte {
	return keccak256([]byte(fmt.Sprintf("%s%d", messagePrefix, len(msg))), msg)
}
