// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import "errors"

// Every failure that crosses the public API is one of the errors below,
// possibly wrapped with extra detail. Raw status words and vendor failure
// payloads never leave the session boundary.
var (
	// ErrNotSupported means the requested transport or device family is not
	// available in this environment (e.g. no USB stack, unknown family).
	ErrNotSupported = errors.New("hwwallet: not supported")

	// ErrNotInitialized means an operation was attempted before Connect.
	ErrNotInitialized = errors.New("hwwallet: not initialized")

	// ErrDeviceNotConnected means the session lost its device and must be
	// reconnected before further operations.
	ErrDeviceNotConnected = errors.New("hwwallet: device not connected")

	// ErrUserCancelled means the user declined the operation on the device.
	// This is an expected outcome, not a fault: the session stays connected.
	ErrUserCancelled = errors.New("hwwallet: user cancelled on device")

	// ErrLocked means the device is PIN locked or the passphrase was wrong.
	ErrLocked = errors.New("hwwallet: device locked or wrong passphrase")

	// ErrCommunication is a transport level fault. The session is torn down
	// and must be reconnected; there are no automatic retries.
	ErrCommunication = errors.New("hwwallet: device communication error")

	// ErrInvalidPath means the derivation path string or component range is
	// malformed.
	ErrInvalidPath = errors.New("hwwallet: invalid derivation path")

	// ErrSigningFailed means the device returned a signature the module
	// refuses to interpret, or rejected the signing payload.
	ErrSigningFailed = errors.New("hwwallet: signing failed")

	// ErrDeviceBusy means another operation is already in flight on this
	// session. Calls are rejected immediately rather than queued.
	ErrDeviceBusy = errors.New("hwwallet: device busy")

	// ErrFirmwareOutdated means the device firmware is below the minimum
	// supported version.
	ErrFirmwareOutdated = errors.New("hwwallet: firmware outdated")

	// ErrWrongApp means the expected companion application is not open on
	// the device.
	ErrWrongApp = errors.New("hwwallet: wrong companion app")
)

var hints = map[error]string{
	ErrNotSupported:       "hardware wallets are not supported in this environment",
	ErrNotInitialized:     "connect a device before requesting addresses or signatures",
	ErrDeviceNotConnected: "plug in and unlock your device, then reconnect",
	ErrUserCancelled:      "the request was declined on the device",
	ErrLocked:             "unlock your device and try again",
	ErrCommunication:      "communication with the device failed, reconnect and try again",
	ErrInvalidPath:        "the derivation path is malformed",
	ErrSigningFailed:      "the device produced an unusable signature, try again",
	ErrDeviceBusy:         "another device operation is in progress, wait for it to finish",
	ErrFirmwareOutdated:   "update your device firmware to continue",
	ErrWrongApp:           "open the correct application on your device",
}

// Hint returns a single actionable message for a module error, suitable for
// direct display to the user. Unrecognized errors fall back to a generic hint.
func Hint(err error) string {
	for sentinel, hint := range hints {
		if errors.Is(err, sentinel) {
			return hint
		}
	}
	return "an unexpected wallet error occurred"
}
