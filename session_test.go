// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver scripts the driver contract directly, bypassing any transport.
type fakeDriver struct {
	mu      sync.Mutex
	openErr error
	pub     []byte
	sig     []byte
	closed  bool
}

func (d *fakeDriver) Open(ctx context.Context) error { return d.openErr }

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) Status() string { return "fake" }

func (d *fakeDriver) Derive(ctx context.Context, path DerivationPath, confirm bool) ([]byte, error) {
	return d.pub, nil
}

func (d *fakeDriver) SignHash(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.sig, nil
}

func (d *fakeDriver) SignPersonal(ctx context.Context, path DerivationPath, digest []byte) ([]byte, error) {
	return d.SignHash(ctx, path, digest)
}

func (d *fakeDriver) wasClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func TestSessionLifecycle(t *testing.T) {
	var s session
	assert.Equal(t, StateDisconnected, s.currentState())

	drv := &fakeDriver{}
	require.NoError(t, s.connect(context.Background(), FamilyLedger, drv))
	assert.Equal(t, StateConnected, s.currentState())
	assert.True(t, s.isConnected())

	got, err := s.begin()
	require.NoError(t, err)
	assert.Same(t, drv, got.(*fakeDriver))
	assert.Equal(t, StateBusy, s.currentState())

	s.end(nil)
	assert.Equal(t, StateConnected, s.currentState())

	s.disconnect()
	assert.Equal(t, StateDisconnected, s.currentState())
	assert.True(t, drv.wasClosed())
}

func TestSessionConnectFailure(t *testing.T) {
	var s session
	drv := &fakeDriver{openErr: fmt.Errorf("%w: pin required", ErrLocked)}

	err := s.connect(context.Background(), FamilyLedger, drv)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, StateDisconnected, s.currentState())
	assert.True(t, drv.wasClosed(), "failed connect must release the driver")

	// A failed probe leaves the session reusable.
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))
}

func TestSessionRejectsSecondConnect(t *testing.T) {
	var s session
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))

	err := s.connect(context.Background(), FamilyLedger, &fakeDriver{})
	assert.ErrorIs(t, err, ErrDeviceBusy)
}

func TestSessionBeginBeforeConnect(t *testing.T) {
	var s session
	_, err := s.begin()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSessionBeginAfterDisconnect(t *testing.T) {
	var s session
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))
	s.disconnect()

	_, err := s.begin()
	assert.ErrorIs(t, err, ErrDeviceNotConnected)
}

func TestSessionBusyRejectsSecondOperation(t *testing.T) {
	var s session
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))

	_, err := s.begin()
	require.NoError(t, err)

	_, err = s.begin()
	assert.ErrorIs(t, err, ErrDeviceBusy)
}

func TestSessionUserRejectionKeepsConnection(t *testing.T) {
	var s session
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))

	_, err := s.begin()
	require.NoError(t, err)
	s.end(ErrUserCancelled)

	assert.Equal(t, StateConnected, s.currentState())
}

func TestSessionCommFailureDisconnects(t *testing.T) {
	var s session
	drv := &fakeDriver{}
	require.NoError(t, s.connect(context.Background(), FamilyLedger, drv))

	_, err := s.begin()
	require.NoError(t, err)
	s.end(fmt.Errorf("%w: exchange timed out", ErrCommunication))

	assert.Equal(t, StateDisconnected, s.currentState())
	assert.True(t, drv.wasClosed(), "transport must be released on a communication fault")

	_, err = s.begin()
	assert.ErrorIs(t, err, ErrDeviceNotConnected)
}

func TestSessionDisconnectIdempotent(t *testing.T) {
	var s session
	s.disconnect()
	s.disconnect()
	assert.Equal(t, StateDisconnected, s.currentState())

	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))
	s.disconnect()
	s.disconnect()
	assert.False(t, s.isConnected())

	// The session reconnects without any process-level reset.
	require.NoError(t, s.connect(context.Background(), FamilyLedger, &fakeDriver{}))
	assert.True(t, s.isConnected())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "busy", StateBusy.String())
}
