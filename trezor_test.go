// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge scripts the vendor bridge contract.
type fakeBridge struct {
	features    *BridgeFeatures
	publicKey   string
	signature   string
	initErr     error
	featuresErr error
	opErr       error

	initialized  bool
	released     bool
	lastPath     string
	lastShow     bool
	lastDigest   []byte
	lastPersonal bool
}

func workingFeatures() *BridgeFeatures {
	return &BridgeFeatures{
		Vendor:       "acme",
		Model:        "model-t",
		MajorVersion: 2,
		MinorVersion: 4,
		PatchVersion: 3,
		Initialized:  true,
		Unlocked:     true,
		App:          "wallet",
	}
}

func (b *fakeBridge) Initialize(ctx context.Context, manifest BridgeManifest) error {
	if b.initErr != nil {
		return b.initErr
	}
	b.initialized = true
	return nil
}

func (b *fakeBridge) Features(ctx context.Context) (*BridgeFeatures, error) {
	if b.featuresErr != nil {
		return nil, b.featuresErr
	}
	return b.features, nil
}

func (b *fakeBridge) PublicKey(ctx context.Context, path DerivationPath, confirm bool) (*BridgePublicKey, error) {
	if b.opErr != nil {
		return nil, b.opErr
	}
	b.lastPath, b.lastShow = path.String(), confirm
	return &BridgePublicKey{PublicKey: b.publicKey}, nil
}

func (b *fakeBridge) SignHash(ctx context.Context, path DerivationPath, digest []byte, personal bool) (*BridgeSignature, error) {
	if b.opErr != nil {
		return nil, b.opErr
	}
	b.lastPath, b.lastDigest, b.lastPersonal = path.String(), digest, personal
	return &BridgeSignature{Signature: b.signature}, nil
}

func (b *fakeBridge) Release(ctx context.Context) error {
	b.released = true
	return nil
}

func TestTrezorOpen(t *testing.T) {
	bridge := &fakeBridge{features: workingFeatures()}
	drv := newTrezorDriver(bridge)

	require.NoError(t, drv.Open(context.Background()))
	assert.True(t, bridge.initialized)
	assert.Equal(t, "acme model-t firmware v2.4.3 online", drv.Status())

	require.NoError(t, drv.Close())
	assert.True(t, bridge.released)
	assert.Equal(t, "offline", drv.Status())
}

func TestTrezorOpenLocked(t *testing.T) {
	features := workingFeatures()
	features.Unlocked = false
	drv := newTrezorDriver(&fakeBridge{features: features})

	assert.ErrorIs(t, drv.Open(context.Background()), ErrLocked)
}

func TestTrezorOpenNoSeed(t *testing.T) {
	features := workingFeatures()
	features.Initialized = false
	drv := newTrezorDriver(&fakeBridge{features: features})

	assert.ErrorIs(t, drv.Open(context.Background()), ErrLocked)
}

func TestTrezorOpenOldFirmware(t *testing.T) {
	features := workingFeatures()
	features.MajorVersion, features.MinorVersion, features.PatchVersion = 2, 0, 9
	drv := newTrezorDriver(&fakeBridge{features: features})

	assert.ErrorIs(t, drv.Open(context.Background()), ErrFirmwareOutdated)
}

func TestTrezorOpenBridgeDown(t *testing.T) {
	drv := newTrezorDriver(&fakeBridge{initErr: fmt.Errorf("%w: bridge unreachable", ErrCommunication)})
	assert.ErrorIs(t, drv.Open(context.Background()), ErrCommunication)
}

func TestTrezorDerive(t *testing.T) {
	bridge := &fakeBridge{features: workingFeatures(), publicKey: generatorPubHex}
	drv := newTrezorDriver(bridge)
	require.NoError(t, drv.Open(context.Background()))

	pub, err := drv.Derive(context.Background(), DefaultBaseDerivationPath, true)
	require.NoError(t, err)
	assert.Equal(t, generatorPubHex, hex.EncodeToString(pub))
	assert.Equal(t, "m/44'/60'/0'/0/0", bridge.lastPath)
	assert.True(t, bridge.lastShow)
}

func TestTrezorDeriveMalformedKey(t *testing.T) {
	bridge := &fakeBridge{features: workingFeatures(), publicKey: "02abcd"}
	drv := newTrezorDriver(bridge)
	require.NoError(t, drv.Open(context.Background()))

	_, err := drv.Derive(context.Background(), DefaultBaseDerivationPath, false)
	assert.ErrorIs(t, err, ErrCommunication)
}

func TestTrezorSignHash(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, 32)
	raw = append(raw, append(bytes.Repeat([]byte{0x00}, 31), 0x01)...)

	bridge := &fakeBridge{features: workingFeatures(), signature: hex.EncodeToString(raw)}
	drv := newTrezorDriver(bridge)
	require.NoError(t, drv.Open(context.Background()))

	digest := bytes.Repeat([]byte{0xd5}, digestLength)
	got, err := drv.SignHash(context.Background(), DefaultBaseDerivationPath, digest)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, digest, bridge.lastDigest)
	assert.False(t, bridge.lastPersonal)

	_, err = drv.SignPersonal(context.Background(), DefaultBaseDerivationPath, digest)
	require.NoError(t, err)
	assert.True(t, bridge.lastPersonal)
}

// Vendor failure codes must translate into the module taxonomy; raw codes
// never surface.
func TestTranslateBridgeError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{bridgeFailureCancelled, ErrUserCancelled},
		{bridgeFailurePinInvalid, ErrLocked},
		{bridgeFailurePinCancelled, ErrLocked},
		{bridgeFailurePinExpected, ErrLocked},
		{bridgeFailureUnexpectedMsg, ErrWrongApp},
		{bridgeFailureInvalidSession, ErrWrongApp},
		{bridgeFailureFirmware, ErrFirmwareOutdated},
		{bridgeFailureNotInitialized, ErrNotInitialized},
		{"Failure_SomethingNew", ErrCommunication},
	}
	for _, tt := range tests {
		err := translateBridgeError(&BridgeFailure{Code: tt.code, Message: "detail"})
		assert.ErrorIs(t, err, tt.want, "code %s", tt.code)
	}
}

func TestTrezorUserRejectionDuringSign(t *testing.T) {
	bridge := &fakeBridge{features: workingFeatures()}
	drv := newTrezorDriver(bridge)
	require.NoError(t, drv.Open(context.Background()))

	bridge.opErr = &BridgeFailure{Code: bridgeFailureCancelled}
	_, err := drv.SignHash(context.Background(), DefaultBaseDerivationPath, bytes.Repeat([]byte{0xd6}, digestLength))
	assert.ErrorIs(t, err, ErrUserCancelled)
}
