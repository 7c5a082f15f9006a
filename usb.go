//go:build !hwwallet_mock
// +build !hwwallet_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/hid"
)

const (
	// vendorLedger is the USB vendor id candidate devices must report.
	vendorLedger = 0x2c97

	// usagePageWallet is the HID usage page the wallet interface advertises.
	// Opening a device claims this interface specifically.
	usagePageWallet = 0xffa0

	// defaultExchangeTimeout bounds one full command/response round trip,
	// including the wait for physical user confirmation.
	defaultExchangeTimeout = 30 * time.Second
)

// supportedProductID maps the product-id model byte to the interface number
// carrying the wallet endpoint, for firmware that reports an empty usage page.
var supportedProductID = map[uint8]int{
	0x10: 0, // Nano S
	0x40: 0, // Nano X
	0x50: 0, // Nano S Plus
	0x60: 0, // Stax
	0x70: 0, // Flex
}

type usbAdmin struct {
	timeout time.Duration
}

// NewDeviceAdmin returns the HID-backed device admin for family-A devices.
func NewDeviceAdmin() DeviceAdmin {
	return &usbAdmin{timeout: defaultExchangeTimeout}
}

// NewDeviceAdminWithTimeout returns a HID admin whose transports use a custom
// exchange timeout.
func NewDeviceAdminWithTimeout(timeout time.Duration) DeviceAdmin {
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	return &usbAdmin{timeout: timeout}
}

func isWalletDevice(d hid.DeviceInfo) bool {
	if d.UsagePage == usagePageWallet {
		return true
	}
	// Workaround for firmware reporting an empty usage page.
	model := uint8(d.ProductID >> 8)
	iface, supported := supportedProductID[model]
	return supported && iface == d.Interface
}

func (admin *usbAdmin) enumerate() []hid.DeviceInfo {
	var found []hid.DeviceInfo
	for _, d := range hid.Enumerate(0, 0) {
		if d.VendorID == vendorLedger && isWalletDevice(d) {
			found = append(found, d)
		}
	}
	return found
}

func (admin *usbAdmin) CountDevices() int {
	return len(admin.enumerate())
}

func (admin *usbAdmin) ListDevices() ([]string, error) {
	devices := admin.enumerate()
	if len(devices) == 0 {
		log.Debug("no devices found; a locked device or another program may hold the interface")
	}
	list := make([]string, 0, len(devices))
	for _, d := range devices {
		log.Debugf("device %s vendor=%04x product=%04x usage=%04x iface=%d",
			d.Path, d.VendorID, d.ProductID, d.UsagePage, d.Interface)
		list = append(list, fmt.Sprintf("%s %s (%s)", d.Manufacturer, d.Product, d.Path))
	}
	return list, nil
}

func (admin *usbAdmin) Connect(idx int) (Transport, error) {
	devices := admin.enumerate()
	if idx < 0 || idx >= len(devices) {
		return nil, fmt.Errorf("%w: no device at index %d", ErrDeviceNotConnected, idx)
	}
	device, err := devices[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening device: %v", ErrCommunication, err)
	}
	t := &usbTransport{
		device:  device,
		timeout: admin.timeout,
		frames:  make(chan []byte, 16),
		quit:    make(chan struct{}),
	}
	return t, nil
}

// usbTransport exchanges command frames with one open HID device. A single
// background goroutine drains the device into a frame channel; Exchange
// consumes frames from it under a deadline.
type usbTransport struct {
	device  *hid.Device
	timeout time.Duration

	readOnce  sync.Once
	frames    chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func (t *usbTransport) readLoop() {
	defer close(t.frames)
	for {
		frame := make([]byte, frameSize)
		n, err := t.device.Read(frame)
		if err != nil {
			return
		}
		select {
		case t.frames <- frame[:n]:
		case <-t.quit:
			return
		}
	}
}

func (t *usbTransport) write(frame []byte) error {
	written := 0
	for written < len(frame) {
		n, err := t.device.Write(frame)
		if err != nil {
			return fmt.Errorf("%w: writing link frame: %v", ErrCommunication, err)
		}
		written += n
	}
	return nil
}

// Exchange sends one command frame and reassembles the response. The whole
// round trip, user confirmation wait included, races against the transport
// timeout and ctx; on either expiring the device is closed and the interface
// released before returning, so a stuck exchange can never leak the handle.
func (t *usbTransport) Exchange(ctx context.Context, command []byte) (raw []byte, err error) {
	if len(command) < 5 {
		return nil, fmt.Errorf("%w: command frame shorter than its header", ErrCommunication)
	}
	// Any transport failure poisons the device handle; release it before the
	// caller sees the error.
	defer func() {
		if err != nil {
			t.Close()
		}
	}()

	log.Debugf("=> %x", command)

	frames, err := wrapFrames(command)
	if err != nil {
		return nil, err
	}
	for _, frame := range frames {
		if err := t.write(frame); err != nil {
			return nil, err
		}
	}

	t.readOnce.Do(func() { go t.readLoop() })

	deadline := time.NewTimer(t.timeout)
	defer deadline.Stop()

	reassembler := newFrameReassembler()
	for {
		select {
		case frame, ok := <-t.frames:
			if !ok {
				return nil, fmt.Errorf("%w: device read stream closed", ErrCommunication)
			}
			done, err := reassembler.feed(frame)
			if err != nil {
				return nil, err
			}
			if done {
				raw = reassembler.bytes()
				log.Debugf("<= %x", raw)
				return raw, nil
			}
		case <-deadline.C:
			return nil, fmt.Errorf("%w: exchange timed out after %s", ErrCommunication, t.timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCommunication, ctx.Err())
		}
	}
}

func (t *usbTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.quit)
		err = t.device.Close()
	})
	return err
}
