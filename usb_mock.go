//go:build hwwallet_mock
// +build hwwallet_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"context"
	"fmt"
	"time"
)

// Mock device admin for environments without a USB stack. Every exchange
// reports success with an empty payload.

type mockAdmin struct{}

func NewDeviceAdmin() DeviceAdmin {
	return &mockAdmin{}
}

func NewDeviceAdminWithTimeout(time.Duration) DeviceAdmin {
	return &mockAdmin{}
}

func (admin *mockAdmin) CountDevices() int {
	return 1
}

func (admin *mockAdmin) ListDevices() ([]string, error) {
	return []string{"mock"}, nil
}

func (admin *mockAdmin) Connect(idx int) (Transport, error) {
	if idx != 0 {
		return nil, fmt.Errorf("%w: no device at index %d", ErrDeviceNotConnected, idx)
	}
	return &mockTransport{}, nil
}

type mockTransport struct{}

func (t *mockTransport) Exchange(ctx context.Context, command []byte) ([]byte, error) {
	return []byte{0x90, 0x00}, nil
}

func (t *mockTransport) Close() error {
	return nil
}
