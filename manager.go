// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

// Package hwwallet delegates private key custody to external hardware
// signing devices. It frames commands over a byte-oriented USB transport
// (family A) or a vendor bridge service (family B), derives checksummed
// addresses from device-reported public keys and normalizes device
// signatures to their canonical low-S form. Private keys never leave the
// device.

package hwwallet

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Manager is the public facade over one device session. It exposes only
// value types (DerivationPath, Address, Signature) and taxonomy errors;
// transports and codecs never leak to callers.
//
// A Manager holds exactly one session and allows one in-flight device
// operation; concurrent calls fail fast with ErrDeviceBusy.
type Manager struct {
	session session
	feed    eventFeed

	admin   DeviceAdmin
	bridge  Bridge
	deriver AddressDeriver
	timeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeviceAdmin injects the family-A device admin, e.g. a test double.
func WithDeviceAdmin(admin DeviceAdmin) Option {
	return func(m *Manager) { m.admin = admin }
}

// WithBridge injects the family-B bridge, e.g. a test double.
func WithBridge(bridge Bridge) Option {
	return func(m *Manager) { m.bridge = bridge }
}

// WithAddressDeriver overrides the address hash function for chains that
// diverge from the default.
func WithAddressDeriver(deriver AddressDeriver) Option {
	return func(m *Manager) { m.deriver = deriver }
}

// WithExchangeTimeout bounds each device exchange, user confirmation wait
// included. Ignored when a DeviceAdmin is injected.
func WithExchangeTimeout(timeout time.Duration) Option {
	return func(m *Manager) { m.timeout = timeout }
}

// NewManager returns a Manager with the real transports for both families
// unless overridden by options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		deriver: DefaultAddressDeriver,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.admin == nil {
		m.admin = NewDeviceAdminWithTimeout(m.timeout)
	}
	if m.bridge == nil {
		m.bridge = NewHTTPBridge("", nil)
	}
	return m
}

// Subscribe registers a lifecycle event listener. Events are delivered
// best-effort; a stalled listener drops events rather than blocking device
// traffic.
func (m *Manager) Subscribe() *EventSub {
	return m.feed.subscribe()
}

// Connect opens a session to the first available device of the given family
// and verifies it is unlocked with the right companion app active.
func (m *Manager) Connect(ctx context.Context, family Family) error {
	var drv driver
	switch family {
	case FamilyLedger:
		drv = newLedgerDriver(m.admin)
	case FamilyTrezor:
		drv = newTrezorDriver(m.bridge)
	default:
		err := fmt.Errorf("%w: unknown device family %q", ErrNotSupported, family)
		m.emitError(family, err)
		return err
	}
	m.feed.send(Event{Kind: EventConnecting, Family: family, Message: "connecting to device"})

	if err := m.session.connect(ctx, family, drv); err != nil {
		m.emitError(family, err)
		return err
	}
	log.Infow("device connected", "family", family, "status", m.session.status())
	m.feed.send(Event{Kind: EventConnected, Family: family, Message: m.session.status()})
	return nil
}

// Disconnect tears the session down. Valid in any state and idempotent.
func (m *Manager) Disconnect() {
	family := m.session.currentFamily()
	m.session.disconnect()
	m.feed.send(Event{Kind: EventDisconnected, Family: family, Message: "device disconnected"})
}

// IsConnected reports whether a device session is live.
func (m *Manager) IsConnected() bool {
	return m.session.isConnected()
}

// State returns the session lifecycle state.
func (m *Manager) State() State {
	return m.session.currentState()
}

// Status describes the connected device for diagnostics.
func (m *Manager) Status() string {
	return m.session.status()
}

// Address derives the account address at path from the device-reported
// public key. With confirm set the device displays the address and waits for
// physical approval before returning.
func (m *Manager) Address(ctx context.Context, path DerivationPath, confirm bool) (Address, error) {
	drv, err := m.session.begin()
	if err != nil {
		return Address{}, err
	}
	pub, err := drv.Derive(ctx, path, confirm)
	m.finishOp(err)
	if err != nil {
		return Address{}, err
	}
	return m.deriver.Derive(pub)
}

// SignTransaction canonically serializes and hashes payload, submits the
// digest for on-device review and returns the normalized low-S signature.
// The call blocks until the user confirms, rejects, or the exchange times
// out.
func (m *Manager) SignTransaction(ctx context.Context, path DerivationPath, payload any) (Signature, error) {
	digest, err := hashTransaction(payload)
	if err != nil {
		return Signature{}, err
	}
	return m.signDigest(ctx, path, digest, false)
}

// SignMessage signs a personal message: the message is namespaced with the
// signed-message prefix, hashed and submitted under the device's
// message-signing flow.
func (m *Manager) SignMessage(ctx context.Context, path DerivationPath, msg []byte) (Signature, error) {
	return m.signDigest(ctx, path, hashMessage(msg), true)
}

func (m *Manager) signDigest(ctx context.Context, path DerivationPath, digest []byte, personal bool) (Signature, error) {
	drv, err := m.session.begin()
	if err != nil {
		return Signature{}, err
	}
	family := m.session.currentFamily()
	m.feed.send(Event{Kind: EventSigning, Family: family, Message: "confirm the request on your device"})

	var raw []byte
	if personal {
		raw, err = drv.SignPersonal(ctx, path, digest)
	} else {
		raw, err = drv.SignHash(ctx, path, digest)
	}
	m.finishOp(err)
	if err != nil {
		return Signature{}, err
	}
	sig, err := normalizeSignature(raw)
	if err != nil {
		m.emitError(family, err)
		return Signature{}, err
	}
	m.feed.send(Event{Kind: EventSigned, Family: family, Message: "signature produced"})
	return sig, nil
}

// finishOp releases the in-flight slot and emits the matching lifecycle
// events. A user rejection is an expected outcome: the session stays
// connected and nothing error-severity is emitted or logged. A communication
// fault has already torn the session down, so it is surfaced as an error
// followed by a disconnect.
func (m *Manager) finishOp(err error) {
	m.session.end(err)
	if err == nil || errors.Is(err, ErrUserCancelled) {
		return
	}
	family := m.session.currentFamily()
	m.emitError(family, err)
	if errors.Is(err, ErrCommunication) {
		m.feed.send(Event{Kind: EventDisconnected, Family: family, Message: "device disconnected"})
	}
}

func (m *Manager) emitError(family Family, err error) {
	log.Warnw("device operation failed", "family", family, "err", err)
	m.feed.send(Event{Kind: EventError, Family: family, Message: Hint(err), Err: err})
}
