// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Family-B driver: wraps the vendor bridge service behind the same driver
// contract the family-A HID driver implements, so the session layer stays
// agnostic to which family is active.

package hwwallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// minBridgeFirmware is the oldest device firmware the driver accepts.
var minBridgeFirmware = [3]int{2, 1, 0}

// bridgeManifest announces this module to the bridge allowlist.
var bridgeManifest = BridgeManifest{Name: "hwwallet", Version: "1.0.0"}

type trezorDriver struct {
	bridge   Bridge
	features *BridgeFeatures
}

func newTrezorDriver(bridge Bridge) driver {
	return &trezorDriver{bridge: bridge}
}

// Open registers the manifest and verifies device features: the device must
// be set up, unlocked and on supported firmware before any operation runs.
func (d *trezorDriver) Open(ctx context.Context) error {
	if err := d.bridge.Initialize(ctx, bridgeManifest); err != nil {
		return translateBridgeError(err)
	}
	features, err := d.bridge.Features(ctx)
	if err != nil {
		return translateBridgeError(err)
	}
	switch {
	case !features.Initialized:
		return fmt.Errorf("%w: device has no seed configured", ErrLocked)
	case !features.Unlocked:
		return fmt.Errorf("%w: enter the PIN on the device", ErrLocked)
	}
	version := [3]int{features.MajorVersion, features.MinorVersion, features.PatchVersion}
	if firmwareBelow(version, minBridgeFirmware) {
		return fmt.Errorf("%w: firmware v%d.%d.%d, need at least v%d.%d.%d",
			ErrFirmwareOutdated, version[0], version[1], version[2],
			minBridgeFirmware[0], minBridgeFirmware[1], minBridgeFirmware[2])
	}
	d.features = features
	log.Infof("%s %s firmware v%d.%d.%d online", features.Vendor, features.Model,
		version[0], version[1], version[2])
	return nil
}

func (d *trezorDriver) Close() error {
	if d.features == nil {
		return nil
	}
	d.features = nil

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.bridge.Release(ctx); err != nil {
		log.Debugf("bridge session release failed: %v", err)
	}
	return nil
}

func (d *trezorDriver) Status() string {
	if d.features == nil {
		return "offline"
	}
	return fmt.Sprintf("%s %s firmware v%d.%d.%d online", d.features.Vendor, d.features.Model,
		d.features.MajorVersion, d.features.MinorVersion, d.features.PatchVersion)
}

func (d *trezorDriver) Derive(ctx context.Context, path DerivationPath, confirm bool) ([]byte, error) {
	if _, err := path.Serialize(); err != nil {
		return nil, err
	}
	result, err := d.bridge.PublicKey(ctx, path, confirm)
	if err != nil {
		return nil, translateBridgeError(err)
	}
	pub, err := hex.DecodeString(result.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bridge returned malformed public key", ErrCommunication)
	}
	if len(pub) != 65 || pub[0] != 0x04 {
		return nil, fmt.Errorf("%w: unexpected public key layout (%d bytes)", ErrCommunication, len(pub))
	}
	return pub, nil
}

func (d *trezorDriver) SignHash(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.sign(ctx, path, digest, false)
}

func (d *trezorDriver) SignPersonal(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.sign(ctx, path, digest, true)
}

func (d *trezorDriver) sign(ctx context.Context, path DerivationPath, digest []byte, personal bool) ([]byte, error) {
	if len(digest) != digestLength {
		return nil, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrSigningFailed, digestLength, len(digest))
	}
	if _, err := path.Serialize(); err != nil {
		return nil, err
	}
	result, err := d.bridge.SignHash(ctx, path, digest, personal)
	if err != nil {
		return nil, translateBridgeError(err)
	}
	raw, err := hex.DecodeString(result.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: bridge returned malformed signature", ErrSigningFailed)
	}
	return raw, nil
}

// translateBridgeError converts vendor failure codes into the module error
// taxonomy. Errors already carrying a taxonomy sentinel pass through.
func translateBridgeError(err error) error {
	var failure *BridgeFailure
	if !errors.As(err, &failure) {
		for _, sentinel := range []error{ErrCommunication, ErrUserCancelled, ErrLocked,
			ErrWrongApp, ErrFirmwareOutdated, ErrNotInitialized, ErrSigningFailed} {
			if errors.Is(err, sentinel) {
				return err
			}
		}
		return fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	switch failure.Code {
	case bridgeFailureCancelled:
		return ErrUserCancelled
	case bridgeFailurePinInvalid, bridgeFailurePinCancelled, bridgeFailurePinExpected:
		return fmt.Errorf("%w: %s", ErrLocked, failure.Message)
	case bridgeFailureUnexpectedMsg, bridgeFailureInvalidSession:
		return fmt.Errorf("%w: %s", ErrWrongApp, failure.Message)
	case bridgeFailureFirmware:
		return fmt.Errorf("%w: %s", ErrFirmwareOutdated, failure.Message)
	case bridgeFailureNotInitialized:
		return fmt.Errorf("%w: %s", ErrNotInitialized, failure.Message)
	default:
		return fmt.Errorf("%w: bridge failure %s", ErrCommunication, failure.Code)
	}
}

func firmwareBelow(v, min [3]int) bool {
	for i := range v {
		if v[i] != min[i] {
			return v[i] < min[i]
		}
	}
	return false
}
