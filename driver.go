// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import "context"

// Family selects which hardware device family a session talks to.
type Family string

const (
	// FamilyLedger covers USB HID devices speaking the framed command
	// protocol directly.
	FamilyLedger Family = "ledger"

	// FamilyTrezor covers devices reached through the vendor's out-of-process
	// bridge service.
	FamilyTrezor Family = "trezor"
)

// DeviceAdmin enumerates and opens family-A devices. Implementations are
// build-tagged so environments without a USB stack can substitute a mock.
type DeviceAdmin interface {
	// CountDevices reports how many candidate wallet devices are attached.
	CountDevices() int

	// ListDevices describes the attached candidate devices.
	ListDevices() ([]string, error)

	// Connect opens the idx-th candidate device and claims its wallet
	// interface.
	Connect(idx int) (Transport, error)
}

// Transport moves one command frame to a device and returns the raw response,
// status word included. A Transport is single-stream: callers must serialize
// Exchange calls. After an Exchange error the transport is torn down and must
// not be reused.
type Transport interface {
	Exchange(ctx context.Context, command []byte) ([]byte, error)
	Close() error
}

// driver is the vendor-specific half of a session: it owns the command
// encoding for one device family and reports results in module value types.
// Drivers return taxonomy errors only.
type driver interface {
	// Open establishes the device connection and probes that the right
	// companion app is active and the device is unlocked.
	Open(ctx context.Context) error

	// Close releases the device connection. Idempotent.
	Close() error

	// Status describes the current device state for diagnostics.
	Status() string

	// Derive returns the uncompressed public key at path, optionally pausing
	// for on-device confirmation.
	Derive(ctx context.Context, path DerivationPath, confirm bool) ([]byte, error)

	// SignHash submits a 32-byte transaction digest for signing and blocks
	// until the user confirms, rejects, or the exchange times out. The raw
	// vendor signature encoding is returned for normalization by the caller.
	SignHash(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error)

	// SignPersonal submits a personal message digest, which the device
	// presents under its message-signing flow rather than the transaction
	// flow.
	SignPersonal(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error)
}
